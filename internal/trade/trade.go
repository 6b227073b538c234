// Package trade — ручные сделки: валидация, рыночные и лимитные ордера, закрытие позиций.
// Этим же сервисом пользуется рантайм стратегий.
package trade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/positions"
	"nado_bot/internal/submitter"
	"nado_bot/pkg/logger"
)

// Exchange — полный клиент биржи одного аккаунта в одной сети.
type Exchange interface {
	positions.Exchange
	Balance(ctx context.Context) (models.Balance, error)
	OpenOrders(ctx context.Context, productID int64) ([]models.OpenOrder, error)
	CancelOrders(ctx context.Context, productID int64, digests []string) error
	CancelAll(ctx context.Context, productID int64) (int, error)
}

type Limits struct {
	MaxLeverage  int
	MinNotional  decimal.Decimal
	MarginBuffer decimal.Decimal
	RateLimit    time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxLeverage:  50,
		MinNotional:  decimal.NewFromInt(1),
		MarginBuffer: decimal.RequireFromString("0.95"),
		RateLimit:    60 * time.Second,
	}
}

// Request — намерение сделки до валидации.
type Request struct {
	AccountID int64                            `validate:"required"`
	Product   string                           `validate:"required"`
	Side      models.Side                      `validate:"required,oneof=buy sell"`
	Size      decimal.Decimal                  `validate:"-"`
	Leverage  float64                          `validate:"gte=0"`
	Price     optional.Option[decimal.Decimal] `validate:"-"` // пусто — рыночный
	Slippage  float64                          `validate:"gte=0"`
	// Manual — сделка пользователя; только на них действует rate limit.
	Manual bool
}

// Checked — результат валидации.
type Checked struct {
	Product  models.Product
	Mid      decimal.Decimal
	Notional decimal.Decimal
	Margin   decimal.Decimal
}

type Service struct {
	sub      *submitter.Submitter
	agg      *positions.Aggregator
	limits   Limits
	validate *validator.Validate
	now      func() time.Time

	mu        sync.Mutex
	lastTrade map[int64]time.Time
}

func NewService(sub *submitter.Submitter, agg *positions.Aggregator, limits Limits) *Service {
	return &Service{
		sub:       sub,
		agg:       agg,
		limits:    limits,
		validate:  validator.New(),
		now:       time.Now,
		lastTrade: make(map[int64]time.Time),
	}
}

func (s *Service) Submitter() *submitter.Submitter   { return s.sub }
func (s *Service) Aggregator() *positions.Aggregator { return s.agg }

func availableProducts() string {
	names := make([]string, 0, len(models.Products))
	for _, p := range models.PerpProducts() {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

// Validate проверяет сделку в том же порядке, что и показываем ошибки пользователю.
func (s *Service) Validate(ctx context.Context, ex Exchange, req Request) (Checked, error) {
	if err := s.validate.Struct(req); err != nil {
		return Checked{}, errkind.Wrap(errkind.Validation, "Invalid trade request.", err)
	}
	product, ok := models.LookupProduct(req.Product)
	if !ok || product.Kind != models.ProductPerp {
		return Checked{}, errkind.Newf(errkind.Validation, "Unknown product '%s'. Available: %s", req.Product, availableProducts())
	}
	if !req.Size.IsPositive() {
		return Checked{}, errkind.New(errkind.Validation, "Trade size must be positive.")
	}
	if req.Leverage > float64(s.limits.MaxLeverage) {
		return Checked{}, errkind.Newf(errkind.Validation, "Max leverage is %dx.", s.limits.MaxLeverage)
	}
	if req.Leverage < 1 {
		return Checked{}, errkind.New(errkind.Validation, "Leverage must be at least 1x.")
	}

	balance, err := ex.Balance(ctx)
	if err != nil {
		return Checked{}, errkind.Wrap(errkind.TransientNetwork, "Could not fetch balance.", err)
	}
	if !balance.Exists {
		return Checked{}, errkind.New(errkind.FatalAccountState, "Subaccount not found. Please deposit funds first on Nado.")
	}

	mp, err := ex.MarketPrice(ctx, product.ID)
	if err != nil || !mp.Mid.IsPositive() {
		return Checked{}, errkind.Wrap(errkind.TransientNetwork,
			fmt.Sprintf("Could not fetch %s price. Market may be unavailable.", product.Name), err)
	}

	notional := req.Size.Mul(mp.Mid)
	margin := notional
	if req.Leverage > 1 {
		margin = notional.Div(decimal.NewFromFloat(req.Leverage))
	}
	available := balance.Quote()
	if margin.GreaterThan(available.Mul(s.limits.MarginBuffer)) {
		return Checked{}, errkind.Newf(errkind.InsufficientMargin,
			"Insufficient margin.\nRequired: ~$%s\nAvailable: $%s\n(Using %s%% safety buffer)",
			margin.StringFixed(2), available.StringFixed(2), s.limits.MarginBuffer.Mul(decimal.NewFromInt(100)).String())
	}
	if notional.LessThan(s.limits.MinNotional) {
		return Checked{}, errkind.Newf(errkind.Validation, "Minimum trade size is $%s.", s.limits.MinNotional.String())
	}

	if req.Manual {
		if wait := s.rateLimitWait(req.AccountID); wait > 0 {
			return Checked{}, errkind.Newf(errkind.RateLimited, "Rate limit: wait %ds before next trade.", int(wait.Seconds()))
		}
	}
	return Checked{Product: product, Mid: mp.Mid, Notional: notional, Margin: margin}, nil
}

func (s *Service) rateLimitWait(accountID int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastTrade[accountID]
	if !ok || s.limits.RateLimit <= 0 {
		return 0
	}
	elapsed := s.now().Sub(last)
	if elapsed >= s.limits.RateLimit {
		return 0
	}
	return s.limits.RateLimit - elapsed
}

func (s *Service) markTrade(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTrade[accountID] = s.now()
}

// Execute — валидация и ордер: рыночный IOC без цены, лимитный GTC с ценой.
func (s *Service) Execute(ctx context.Context, ex Exchange, req Request) models.OrderResult {
	checked, err := s.Validate(ctx, ex, req)
	if err != nil {
		return models.OrderResult{Side: req.Side, Size: req.Size, Err: err}
	}

	order := models.OrderRequest{
		ProductID: checked.Product.ID,
		Side:      req.Side,
		Size:      req.Size,
		Price:     req.Price,
		Leverage:  req.Leverage,
		Slippage:  req.Slippage,
	}
	var res models.OrderResult
	if req.Price.IsSome() {
		order.TimeInForce = models.GTC
		res = s.sub.PlaceLimit(ctx, ex, order)
	} else {
		order.TimeInForce = models.IOC
		res = s.sub.PlaceMarket(ctx, ex, order)
	}

	log := logger.L().With(
		zap.Int64("account_id", req.AccountID),
		zap.String("network", ex.Network().String()),
		zap.String("product", checked.Product.Name),
		zap.String("side", string(req.Side)),
	)
	if res.Success {
		if req.Manual {
			s.markTrade(req.AccountID)
		}
		log.Info("trade placed",
			zap.String("digest", res.OrderID),
			zap.String("size", res.Size.String()),
			zap.String("price", res.FilledPrice.String()),
			zap.Int("attempts", res.Attempts))
	} else {
		log.Warn("trade failed", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
	}
	return res
}

// ClosePosition закрывает нетто по одному инструменту.
func (s *Service) ClosePosition(ctx context.Context, ex Exchange, product string, slippagePct float64) models.OrderResult {
	p, ok := models.LookupProduct(product)
	if !ok {
		return models.OrderResult{Err: errkind.Newf(errkind.Validation, "Unknown product '%s'.", product)}
	}
	return s.agg.CloseOne(ctx, ex, p.ID, slippagePct)
}

func (s *Service) CloseAll(ctx context.Context, ex Exchange, slippagePct float64) (positions.CloseAllResult, error) {
	return s.agg.CloseAll(ctx, ex, slippagePct)
}

// CancelOrder снимает один ордер по digest.
func (s *Service) CancelOrder(ctx context.Context, ex Exchange, productID int64, digest string) error {
	if err := ex.CancelOrders(ctx, productID, []string{digest}); err != nil {
		return classify(err, "Could not cancel order.")
	}
	return nil
}

// CancelAll снимает все висящие ордера по продукту.
func (s *Service) CancelAll(ctx context.Context, ex Exchange, productID int64) (int, error) {
	n, err := ex.CancelAll(ctx, productID)
	if err != nil {
		return n, classify(err, "Could not cancel orders.")
	}
	return n, nil
}

// Positions — нетто по открытым позициям аккаунта.
func (s *Service) Positions(ctx context.Context, ex Exchange) ([]models.NetPosition, error) {
	nets, err := s.agg.Net(ctx, ex)
	if err != nil {
		return nil, err
	}
	return positions.Open(nets), nil
}
