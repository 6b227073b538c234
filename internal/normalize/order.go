package normalize

import (
	"math/big"

	"github.com/shopspring/decimal"

	"nado_bot/internal/models"
)

// Aligned — ордер после выравнивания, в decimal и в x18.
type Aligned struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	PriceX18  *big.Int
	AmountX18 *big.Int // со знаком: <0 продажа
}

// Order выравнивает цену и объём под известные шаги.
// Неизвестный шаг (ноль) пропускает соответствующее выравнивание.
func Order(price, size decimal.Decimal, side models.Side, tif models.TimeInForce, inc models.Increments) (Aligned, error) {
	alignedSize, err := Size(size, inc.Size)
	if err != nil {
		return Aligned{}, err
	}
	alignedPrice := AlignPrice(price, inc.Price, side, tif.Aggressive())

	amount := alignedSize
	if !side.IsBuy() {
		amount = amount.Neg()
	}
	return Aligned{
		Price:     alignedPrice,
		Size:      alignedSize,
		PriceX18:  ToX18(alignedPrice),
		AmountX18: ToX18(amount),
	}, nil
}
