package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"nado_bot/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSpreadPerKind(t *testing.T) {
	cases := []struct {
		kind models.StrategyKind
		in   string
		want string
	}{
		{models.StrategyMM, "4", "4"},
		{models.StrategyGrid, "5", "8"},
		{models.StrategyGrid, "10", "10"},
		{models.StrategyDN, "1", "2"},
		{models.StrategyDN, "3", "3"},
		{models.StrategyDN, "9", "4"},
	}
	for _, tc := range cases {
		got := NewEngine(tc.kind).Spread(dec(tc.in))
		assert.True(t, got.Equal(dec(tc.want)), "%s %s -> %s", tc.kind, tc.in, got)
	}
}

func TestQuote(t *testing.T) {
	q := NewEngine(models.StrategyMM).Quote(dec("50000"), dec("100"), dec("4"))
	assert.True(t, q.Size.Equal(dec("0.002")))
	assert.True(t, q.Bid.Equal(dec("49980")))
	assert.True(t, q.Ask.Equal(dec("50020")))

	q = NewEngine(models.StrategyGrid).Quote(dec("100"), dec("100"), dec("5"))
	assert.True(t, q.Bid.Equal(dec("99.92")))
	assert.True(t, q.Ask.Equal(dec("100.08")))
	assert.True(t, q.SpreadBp.Equal(dec("8")))
}

func TestQuoteMinSize(t *testing.T) {
	q := NewEngine(models.StrategyDN).Quote(dec("1000000"), dec("1"), dec("3"))
	assert.True(t, q.Size.Equal(MinSize))
}

func TestUnknownKindIsMarketMaking(t *testing.T) {
	assert.Equal(t, models.StrategyMM, NewEngine("twap").Kind())
}
