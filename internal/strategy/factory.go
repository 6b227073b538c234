package strategy

import (
	"github.com/shopspring/decimal"

	"nado_bot/internal/models"
)

var (
	gridMinSpread = decimal.NewFromInt(8)
	dnMinSpread   = decimal.NewFromInt(2)
	dnMaxSpread   = decimal.NewFromInt(4)
)

// MarketMaking — спред как есть.
type MarketMaking struct{}

func (MarketMaking) Kind() models.StrategyKind                 { return models.StrategyMM }
func (MarketMaking) Spread(bp decimal.Decimal) decimal.Decimal { return bp }
func (m MarketMaking) Quote(mid, notional, bp decimal.Decimal) Quote {
	return quote(m, mid, notional, bp)
}

// Grid расширяет спред минимум до 8 bp.
type Grid struct{}

func (Grid) Kind() models.StrategyKind { return models.StrategyGrid }
func (Grid) Spread(bp decimal.Decimal) decimal.Decimal {
	return decimal.Max(bp, gridMinSpread)
}
func (g Grid) Quote(mid, notional, bp decimal.Decimal) Quote {
	return quote(g, mid, notional, bp)
}

// DeltaNeutral зажимает спред в [2, 4] bp.
type DeltaNeutral struct{}

func (DeltaNeutral) Kind() models.StrategyKind { return models.StrategyDN }
func (DeltaNeutral) Spread(bp decimal.Decimal) decimal.Decimal {
	return decimal.Max(dnMinSpread, decimal.Min(bp, dnMaxSpread))
}
func (d DeltaNeutral) Quote(mid, notional, bp decimal.Decimal) Quote {
	return quote(d, mid, notional, bp)
}

// NewEngine — движок по виду стратегии; неизвестный вид котируется как mm.
func NewEngine(kind models.StrategyKind) Engine {
	switch kind {
	case models.StrategyGrid:
		return Grid{}
	case models.StrategyDN:
		return DeltaNeutral{}
	default:
		return MarketMaking{}
	}
}
