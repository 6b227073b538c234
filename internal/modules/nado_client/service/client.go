package service

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"nado_bot/internal/models"
	"nado_bot/internal/normalize"
	"nado_bot/internal/signer"
)

// Client — приватная часть биржи для одного аккаунта в одной сети.
type Client struct {
	gw      *Gateway
	network models.Network
	signer  signer.Signer
	now     func() time.Time
}

func NewClient(gw *Gateway, network models.Network, s signer.Signer) *Client {
	return &Client{gw: gw, network: network, signer: s, now: time.Now}
}

func (c *Client) Network() models.Network { return c.network }
func (c *Client) Signer() signer.Signer   { return c.signer }

func (c *Client) subaccount() string {
	return signer.SubaccountHex(c.signer.Subaccount())
}

func (c *Client) query(ctx context.Context, q Query, out any) error {
	return c.gw.query(ctx, c.network, q, out)
}

func (c *Client) execute(ctx context.Context, payload any, out any) error {
	tr, err := c.gw.Transport(c.network)
	if err != nil {
		return err
	}
	return tr.Execute(ctx, payload, out)
}

func (c *Client) MarketPrice(ctx context.Context, productID int64) (models.MarketPrice, error) {
	return c.gw.MarketPrice(ctx, c.network, productID)
}

// Balance — спотовые балансы сабаккаунта.
func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	var data subaccountInfoData
	if err := c.query(ctx, Query{"type": "subaccount_info", "subaccount": c.subaccount()}, &data); err != nil {
		return models.Balance{}, errors.Wrap(err, "subaccount_info")
	}
	out := models.Balance{Balances: make(map[int64]decimal.Decimal, len(data.SpotBalances))}
	for _, sb := range data.SpotBalances {
		if sb.Balance.Amount.Valid() {
			out.Balances[sb.ProductID] = normalize.FromX18(sb.Balance.Amount.Int)
		}
	}
	if data.Exists != nil {
		out.Exists = *data.Exists
	} else {
		out.Exists = len(out.Balances) > 0
	}
	return out, nil
}

// Positions — сырые строки позиций из всех списков ответа.
// Дубли между списками не убираются, это делает агрегатор.
func (c *Client) Positions(ctx context.Context) ([]models.PositionRow, error) {
	var data subaccountInfoData
	if err := c.query(ctx, Query{"type": "subaccount_info", "subaccount": c.subaccount()}, &data); err != nil {
		return nil, errors.Wrap(err, "subaccount_info")
	}
	var rows []models.PositionRow
	for _, list := range [][]rawPosition{data.PerpPositions, data.Positions, data.PerpBalances} {
		for _, p := range list {
			if row, ok := p.row(); ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func (p rawPosition) row() (models.PositionRow, bool) {
	if p.ProductID == nil {
		return models.PositionRow{}, false
	}
	var amountRaw, vQuote *big.Int
	if p.Balance != nil {
		amountRaw = nonZero(p.Balance.Amount)
		vQuote = p.Balance.VQuoteBalance.Int
	}
	if amountRaw == nil {
		amountRaw = nonZero(p.Amount, p.AmountX18, p.Size, p.SizeX18)
	}
	if amountRaw == nil || amountRaw.Sign() == 0 {
		return models.PositionRow{}, false
	}
	amount := normalize.FromX18(amountRaw)

	var price decimal.Decimal
	if raw := nonZero(p.EntryPriceX18, p.AvgEntryPriceX18, p.PriceX18, p.EntryPrice); raw != nil {
		price = normalize.FromX18(raw)
	}
	if !price.IsPositive() && vQuote != nil {
		price = normalize.FromX18(vQuote).Div(amount).Abs()
	}

	side := models.Long
	if amount.IsNegative() {
		side = models.Short
	}
	return models.PositionRow{
		ProductID: *p.ProductID,
		Side:      side,
		Amount:    amount.Abs(),
		Price:     price,
	}, true
}

// OpenOrders — висящие ордера сабаккаунта по продукту.
func (c *Client) OpenOrders(ctx context.Context, productID int64) ([]models.OpenOrder, error) {
	var data subaccountOrdersData
	q := Query{"type": "subaccount_orders", "sender": c.subaccount(), "product_id": productID}
	if err := c.query(ctx, q, &data); err != nil {
		return nil, errors.Wrapf(err, "subaccount_orders %d", productID)
	}
	out := make([]models.OpenOrder, 0, len(data.Orders))
	for _, o := range data.Orders {
		oo := models.OpenOrder{Digest: o.Digest, ProductID: productID}
		if o.Amount.Valid() {
			oo.Amount = normalize.FromX18(o.Amount.Int)
		}
		if o.PriceX18.Valid() {
			oo.Price = normalize.FromX18(o.PriceX18.Int)
		}
		out = append(out, oo)
	}
	return out, nil
}

func nonZero(vals ...X18) *big.Int {
	for _, v := range vals {
		if v.Valid() && v.Sign() != 0 {
			return v.Int
		}
	}
	return nil
}
