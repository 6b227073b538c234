// Package strategy — котирование мейкер-стратегий: одна заявка на покупку и одна на продажу за цикл.
package strategy

import (
	"github.com/shopspring/decimal"

	"nado_bot/internal/models"
)

var (
	// MinSize — нижняя граница объёма котировки
	MinSize = decimal.RequireFromString("0.0001")

	bpDivisor = decimal.NewFromInt(10_000)
	one       = decimal.NewFromInt(1)
)

// Quote — пара мейкер-заявок вокруг mid.
type Quote struct {
	Size     decimal.Decimal
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	SpreadBp decimal.Decimal // после поправки стратегии
}

// Engine — то, что дергает рантайм на каждом цикле.
type Engine interface {
	Kind() models.StrategyKind
	// Spread — эффективный спред в bp с учётом ограничений стратегии.
	Spread(bp decimal.Decimal) decimal.Decimal
	Quote(mid, notional, spreadBp decimal.Decimal) Quote
}

// quote — общая часть: size = max(notional/mid, MinSize), цены mid*(1∓bp/10000).
func quote(e Engine, mid, notional, spreadBp decimal.Decimal) Quote {
	size := MinSize
	if mid.IsPositive() {
		size = decimal.Max(notional.Div(mid), MinSize)
	}
	bp := e.Spread(spreadBp)
	half := bp.Div(bpDivisor)
	return Quote{
		Size:     size,
		Bid:      mid.Mul(one.Sub(half)),
		Ask:      mid.Mul(one.Add(half)),
		SpreadBp: bp,
	}
}
