// Package normalize выравнивает цену и объём под шаги инструмента.
// Все функции чистые: никакого состояния и сетевых вызовов.
package normalize

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
)

type rounding int

const (
	roundFloor rounding = iota
	roundCeil
	roundHalfUp // половина — от нуля
)

var (
	x18Scale = decimal.New(1, 18)
	two      = decimal.NewFromInt(2)
)

// toTicks делит value на inc нацело с нужным округлением.
func toTicks(value, inc decimal.Decimal, mode rounding) decimal.Decimal {
	q, r := value.QuoRem(inc, 0)
	if r.IsZero() {
		return q
	}
	switch mode {
	case roundFloor:
		if r.IsNegative() {
			return q.Sub(decimal.NewFromInt(1))
		}
		return q
	case roundCeil:
		if r.IsPositive() {
			return q.Add(decimal.NewFromInt(1))
		}
		return q
	default:
		if r.Abs().Mul(two).GreaterThanOrEqual(inc.Abs()) {
			if value.IsNegative() {
				return q.Sub(decimal.NewFromInt(1))
			}
			return q.Add(decimal.NewFromInt(1))
		}
		return q
	}
}

// AlignPrice — агрессивный ордер округляется "через стакан" (buy вверх, sell вниз),
// лежащий — к ближайшему кратному.
func AlignPrice(price, inc decimal.Decimal, side models.Side, aggressive bool) decimal.Decimal {
	if !inc.IsPositive() {
		return price
	}
	mode := roundHalfUp
	if aggressive {
		mode = roundFloor
		if side.IsBuy() {
			mode = roundCeil
		}
	}
	return toTicks(price, inc, mode).Mul(inc)
}

// AlignSize всегда округляет вниз: объём никогда не больше запрошенного.
func AlignSize(size, inc decimal.Decimal) decimal.Decimal {
	if !inc.IsPositive() {
		return size
	}
	return toTicks(size, inc, roundFloor).Mul(inc)
}

// Size — AlignSize с проверкой, что после выравнивания что-то осталось.
func Size(size, inc decimal.Decimal) (decimal.Decimal, error) {
	aligned := AlignSize(size, inc)
	if !aligned.IsPositive() {
		return decimal.Zero, errkind.Newf(errkind.InsufficientIncrement,
			"Order size %s is below minimum increment (size increment %s).", size.String(), inc.String())
	}
	return aligned, nil
}

// ToX18 — decimal -> целое * 10^18, половина от нуля.
func ToX18(v decimal.Decimal) *big.Int {
	return v.Mul(x18Scale).Round(0).BigInt()
}

func FromX18(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -18)
}

// AlignX18 срезает модуль до кратного шага, знак сохраняется.
func AlignX18(v, inc *big.Int) *big.Int {
	if inc == nil || inc.Sign() <= 0 {
		return new(big.Int).Set(v)
	}
	abs := new(big.Int).Abs(v)
	abs.Quo(abs, inc).Mul(abs, inc)
	if v.Sign() < 0 {
		abs.Neg(abs)
	}
	return abs
}

// LadderIncrements — типовые лоты 1/2/5 * 10^n для n от -8 до 0.
func LadderIncrements() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, 27)
	for exp := int32(-8); exp <= 0; exp++ {
		for _, m := range []int64{1, 2, 5} {
			out = append(out, decimal.New(m, exp))
		}
	}
	return out
}

// FallbackSizes — кандидаты объёма по лестнице лотов, ближайшие к исходному первыми.
// Исходный объём и повторы отбрасываются.
func FallbackSizes(size decimal.Decimal) []decimal.Decimal {
	var out []decimal.Decimal
	seen := make(map[string]struct{})
	for _, inc := range LadderIncrements() {
		aligned := AlignSize(size, inc)
		if !aligned.IsPositive() || aligned.Equal(size) {
			continue
		}
		key := aligned.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, aligned)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return size.Sub(out[i]).Abs().LessThan(size.Sub(out[j]).Abs())
	})
	return out
}
