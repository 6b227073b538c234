package models

import "github.com/shopspring/decimal"

type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// PositionRow — сырая строка позиции как её отдаёт биржа.
// Одна и та же позиция может прийти из нескольких списков ответа.
type PositionRow struct {
	ProductID int64
	Side      PositionSide
	Amount    decimal.Decimal // модуль
	Price     decimal.Decimal
}

// Signed — amount со знаком стороны.
func (r PositionRow) Signed() decimal.Decimal {
	if r.Side == Short {
		return r.Amount.Abs().Neg()
	}
	return r.Amount.Abs()
}

// NetPosition — итоговая экспозиция по инструменту после дедупликации.
type NetPosition struct {
	ProductID int64
	Name      string
	Amount    decimal.Decimal // >0 лонг, <0 шорт
}

func (p NetPosition) Side() PositionSide {
	if p.Amount.IsNegative() {
		return Short
	}
	return Long
}

// Balance — ответ subaccount_info по спотовым балансам.
type Balance struct {
	Exists   bool
	Balances map[int64]decimal.Decimal
}

func (b Balance) Quote() decimal.Decimal {
	return b.Balances[QuoteProductID]
}

// MarketPrice — bid/ask/mid в десятичном виде.
type MarketPrice struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
	Mid decimal.Decimal
}
