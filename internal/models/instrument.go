package models

import "github.com/shopspring/decimal"

// Increments — шаг цены и шаг объёма инструмента.
// Нулевое значение означает "ещё не известно", выравнивание в этом случае не делается.
type Increments struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (i Increments) PriceKnown() bool { return i.Price.IsPositive() }
func (i Increments) SizeKnown() bool  { return i.Size.IsPositive() }
func (i Increments) Complete() bool   { return i.PriceKnown() && i.SizeKnown() }

// Instrument — продукт каталога вместе с известными шагами.
type Instrument struct {
	Product
	Increments
}
