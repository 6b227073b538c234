// Package exchangetest — биржа в памяти для тестов движка.
package exchangetest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"nado_bot/internal/models"
	"nado_bot/internal/normalize"
	"nado_bot/internal/signer"
)

const TestKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// Placed — принятый биржей ордер.
type Placed struct {
	ProductID int64
	Signed    signer.Signed
	Price     decimal.Decimal
	Amount    decimal.Decimal // со знаком
	IOC       bool
}

// Stub исполняет IOC сразу в позицию, остальные кладёт в книгу открытых ордеров.
type Stub struct {
	mu sync.Mutex

	network models.Network
	signer  signer.Signer

	prices   map[int64]models.MarketPrice
	priceErr error

	rejects   []error
	rejectAll error

	placed    []Placed
	attempts  []signer.Signed
	rows      []models.PositionRow
	dupRows   bool
	orders    map[int64][]models.OpenOrder
	cancelled []string
	balance   models.Balance
}

func NewStub(network models.Network) *Stub {
	s, err := signer.NewEIP712(TestKey, 763373)
	if err != nil {
		panic(err)
	}
	return &Stub{
		network: network,
		signer:  s,
		prices:  make(map[int64]models.MarketPrice),
		orders:  make(map[int64][]models.OpenOrder),
		balance: models.Balance{Exists: true, Balances: map[int64]decimal.Decimal{
			models.QuoteProductID: decimal.NewFromInt(10_000),
		}},
	}
}

func (s *Stub) Network() models.Network { return s.network }
func (s *Stub) Signer() signer.Signer   { return s.signer }

func (s *Stub) SetPrice(productID int64, bid, ask string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, a := decimal.RequireFromString(bid), decimal.RequireFromString(ask)
	s.prices[productID] = models.MarketPrice{Bid: b, Ask: a, Mid: b.Add(a).Div(decimal.NewFromInt(2))}
}

func (s *Stub) SetMid(productID int64, mid string) { s.SetPrice(productID, mid, mid) }

func (s *Stub) SetPriceErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceErr = err
}

// RejectNext ставит ошибки в очередь на следующие PlaceOrder; nil — принять.
func (s *Stub) RejectNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = append(s.rejects, errs...)
}

func (s *Stub) RejectAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = err
}

func (s *Stub) SetBalance(b models.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = b
}

// SetRows задаёт сырые строки позиций; dup — отдавать каждую строку дважды, как из двух списков.
func (s *Stub) SetRows(dup bool, rows ...models.PositionRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.dupRows = dup
}

func (s *Stub) AddOpenOrders(productID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.orders[productID] = append(s.orders[productID], models.OpenOrder{
			Digest:    fmt.Sprintf("0x%064x", len(s.orders[productID])+1000),
			ProductID: productID,
		})
	}
}

func (s *Stub) Placed() []Placed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Placed(nil), s.placed...)
}

// Attempts — все подписанные ордера, включая отклонённые.
func (s *Stub) Attempts() []signer.Signed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signer.Signed(nil), s.attempts...)
}

func (s *Stub) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

func (s *Stub) MarketPrice(_ context.Context, productID int64) (models.MarketPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priceErr != nil {
		return models.MarketPrice{}, s.priceErr
	}
	p, ok := s.prices[productID]
	if !ok {
		return models.MarketPrice{}, fmt.Errorf("no price for product %d", productID)
	}
	return p, nil
}

func isIOC(sig signer.Signed) bool {
	return new(big.Int).Rsh(sig.Order.Appendix, 9).Int64()&3 == 1
}

func (s *Stub) PlaceOrder(_ context.Context, productID int64, sig signer.Signed) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, sig)
	if s.rejectAll != nil {
		return "", s.rejectAll
	}
	if len(s.rejects) > 0 {
		err := s.rejects[0]
		s.rejects = s.rejects[1:]
		if err != nil {
			return "", err
		}
	}

	p := Placed{
		ProductID: productID,
		Signed:    sig,
		Price:     normalize.FromX18(sig.Order.PriceX18),
		Amount:    normalize.FromX18(sig.Order.Amount),
		IOC:       isIOC(sig),
	}
	s.placed = append(s.placed, p)
	if p.IOC {
		s.fillLocked(productID, p.Amount, p.Price)
	} else {
		s.orders[productID] = append(s.orders[productID], models.OpenOrder{
			Digest: sig.Digest, ProductID: productID, Amount: p.Amount, Price: p.Price,
		})
	}
	return sig.Digest, nil
}

// fillLocked сворачивает позицию продукта в одну строку с новым нетто.
func (s *Stub) fillLocked(productID int64, amount, price decimal.Decimal) {
	net := amount
	kept := s.rows[:0:0]
	for _, r := range s.rows {
		if r.ProductID == productID {
			net = net.Add(r.Signed())
			continue
		}
		kept = append(kept, r)
	}
	if !net.IsZero() {
		side := models.Long
		if net.IsNegative() {
			side = models.Short
		}
		kept = append(kept, models.PositionRow{ProductID: productID, Side: side, Amount: net.Abs(), Price: price})
	}
	s.rows = kept
}

func (s *Stub) Positions(context.Context) ([]models.PositionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.PositionRow(nil), s.rows...)
	if s.dupRows {
		out = append(out, s.rows...)
	}
	return out, nil
}

func (s *Stub) OpenOrders(_ context.Context, productID int64) ([]models.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OpenOrder(nil), s.orders[productID]...), nil
}

func (s *Stub) CancelOrders(_ context.Context, productID int64, digests []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(digests))
	for _, d := range digests {
		drop[d] = struct{}{}
		s.cancelled = append(s.cancelled, d)
	}
	kept := s.orders[productID][:0:0]
	for _, o := range s.orders[productID] {
		if _, ok := drop[o.Digest]; !ok {
			kept = append(kept, o)
		}
	}
	s.orders[productID] = kept
	return nil
}

func (s *Stub) CancelAll(ctx context.Context, productID int64) (int, error) {
	orders, _ := s.OpenOrders(ctx, productID)
	digests := make([]string, 0, len(orders))
	for _, o := range orders {
		digests = append(digests, o.Digest)
	}
	return len(digests), s.CancelOrders(ctx, productID, digests)
}

func (s *Stub) Balance(context.Context) (models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}
