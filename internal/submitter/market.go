package submitter

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
)

var (
	minSlippage = decimal.RequireFromString("0.1")
	maxSlippage = decimal.NewFromInt(10)
	hundred     = decimal.NewFromInt(100)
)

// ClampSlippage ограничивает допуск проскальзывания диапазоном [0.1, 10] %.
func ClampSlippage(pct float64) decimal.Decimal {
	v := decimal.NewFromFloat(pct)
	if v.LessThan(minSlippage) {
		return minSlippage
	}
	if v.GreaterThan(maxSlippage) {
		return maxSlippage
	}
	return v
}

// MarketLimit — цена агрессивного ордера: ask*(1+s) на покупку, bid/(1+s) на продажу.
func MarketLimit(p models.MarketPrice, side models.Side, slippagePct float64) decimal.Decimal {
	mult := decimal.NewFromInt(1).Add(ClampSlippage(slippagePct).Div(hundred))
	if side.IsBuy() {
		return p.Ask.Mul(mult)
	}
	return p.Bid.Div(mult)
}

// PlaceMarket — IOC-ордер по лучшей цене с допуском проскальзывания.
func (s *Submitter) PlaceMarket(ctx context.Context, ex Exchange, req models.OrderRequest) models.OrderResult {
	mp, err := ex.MarketPrice(ctx, req.ProductID)
	if err != nil {
		return failed(req, 0, errkind.Wrap(errkind.TransientNetwork, "Could not fetch market price", err))
	}
	if !mp.Mid.IsPositive() {
		return failed(req, 0, errkind.New(errkind.TransientNetwork, "Could not fetch market price"))
	}
	req.TimeInForce = models.IOC
	req.Price = optional.Some(MarketLimit(mp, req.Side, req.Slippage))
	return s.Submit(ctx, ex, req)
}

// PlaceLimit — лежащий GTC-ордер.
func (s *Submitter) PlaceLimit(ctx context.Context, ex Exchange, req models.OrderRequest) models.OrderResult {
	if req.TimeInForce == "" {
		req.TimeInForce = models.GTC
	}
	return s.Submit(ctx, ex, req)
}
