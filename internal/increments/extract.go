package increments

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"nado_bot/internal/normalize"
)

var (
	// число должно стоять сразу за именем поля, иначе "for product N" отдаст id продукта
	sizeX18Loose = regexp.MustCompile(`(?i)size_increment_x18[\s:=,"']*(\d+)`)
	sizeX18Name  = regexp.MustCompile(`(?i)size_increment_x18`)
	sizeDecimal  = regexp.MustCompile(`(?i)size_increment[^0-9]*([0-9]*\.?[0-9]+(?:e-?\d+)?)`)
)

func priceX18ForProduct(productID int64) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)price_increment_x18 for product %d:\s*(\d+)`, productID))
}

func sizeX18ForProduct(productID int64) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)size_increment_x18 for product %d:\s*(\d+)`, productID))
}

func parseX18(raw string) (decimal.Decimal, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() <= 0 {
		return decimal.Zero, false
	}
	return normalize.FromX18(v), true
}

// ExtractPrice достаёт шаг цены из текста отказа: "price_increment_x18 for product N: <int>".
func ExtractPrice(text string, productID int64) (decimal.Decimal, bool) {
	m := priceX18ForProduct(productID).FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	return parseX18(m[1])
}

// ExtractSize пробует по очереди: x18 для продукта, любой x18, десятичную форму.
func ExtractSize(text string, productID int64) (decimal.Decimal, bool) {
	for _, re := range []*regexp.Regexp{sizeX18ForProduct(productID), sizeX18Loose} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseX18(m[1]); ok {
				return v, true
			}
		}
	}
	// "size_increment_x18" без числа не должен отдать "18" как десятичный шаг
	rest := sizeX18Name.ReplaceAllString(text, "")
	if m := sizeDecimal.FindStringSubmatch(rest); m != nil {
		v, err := decimal.NewFromString(strings.ToLower(m[1]))
		if err == nil && v.IsPositive() {
			return v, true
		}
	}
	return decimal.Zero, false
}
