package normalize

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAlignPrice(t *testing.T) {
	cases := []struct {
		name       string
		price, inc string
		side       models.Side
		aggressive bool
		want       string
	}{
		{"ioc buy ceil", "100.37", "0.5", models.Buy, true, "100.5"},
		{"ioc sell floor", "100.37", "0.5", models.Sell, true, "100"},
		{"resting nearest down", "100.24", "0.5", models.Buy, false, "100"},
		{"resting tie half up", "100.25", "0.5", models.Sell, false, "100.5"},
		{"already aligned", "100.5", "0.5", models.Buy, true, "100.5"},
		{"unknown increment", "100.37", "0", models.Buy, true, "100.37"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AlignPrice(d(tc.price), d(tc.inc), tc.side, tc.aggressive)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestAlignPriceIdempotent(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	incs := []string{"0.5", "0.01", "0.0001", "1", "25"}
	for i := 0; i < 500; i++ {
		p := decimal.NewFromInt(rnd.Int63n(10_000_000)).Shift(-4)
		inc := d(incs[i%len(incs)])
		for _, side := range []models.Side{models.Buy, models.Sell} {
			for _, aggr := range []bool{true, false} {
				once := AlignPrice(p, inc, side, aggr)
				twice := AlignPrice(once, inc, side, aggr)
				require.True(t, once.Equal(twice), "p=%s inc=%s", p, inc)
				require.True(t, once.Mod(inc).IsZero())
			}
		}
	}
}

func TestAlignSizeNeverInflates(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	incs := []string{"0.001", "0.00005", "1", "0.1"}
	for i := 0; i < 500; i++ {
		s := decimal.NewFromInt(rnd.Int63n(50_000_000)).Shift(-6)
		inc := d(incs[i%len(incs)])
		got := AlignSize(s, inc)
		require.True(t, got.LessThanOrEqual(s), "s=%s inc=%s got=%s", s, inc, got)
		require.True(t, got.Mod(inc).IsZero())
	}
}

func TestSizeInsufficientIncrement(t *testing.T) {
	_, err := Size(d("0.0004"), d("0.001"))
	require.Error(t, err)
	assert.Equal(t, errkind.InsufficientIncrement, errkind.Of(err))

	got, err := Size(d("0.0015"), d("0.001"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.001")))
}

func TestX18(t *testing.T) {
	assert.Equal(t, "100000000000000000", ToX18(d("0.1")).String())
	assert.Equal(t, "100500000000000000000", ToX18(d("100.5")).String())
	assert.Equal(t, "1", ToX18(d("0.0000000000000000005")).String())
	assert.Equal(t, "-1", ToX18(d("-0.0000000000000000005")).String())

	back := FromX18(big.NewInt(1_500_000_000_000_000))
	assert.True(t, back.Equal(d("0.0015")))
	assert.True(t, FromX18(nil).IsZero())
}

func TestAlignX18(t *testing.T) {
	assert.Equal(t, int64(-1000), AlignX18(big.NewInt(-1500), big.NewInt(1000)).Int64())
	assert.Equal(t, int64(2000), AlignX18(big.NewInt(2999), big.NewInt(1000)).Int64())
	assert.Equal(t, int64(2999), AlignX18(big.NewInt(2999), big.NewInt(0)).Int64())
}

func TestFallbackSizes(t *testing.T) {
	got := FallbackSizes(d("0.0015"))
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(d("0.0014")))
	assert.True(t, got[1].Equal(d("0.001")))

	for _, c := range FallbackSizes(d("1.23456789")) {
		assert.True(t, c.LessThan(d("1.23456789")))
	}
}

func TestLadderIncrements(t *testing.T) {
	l := LadderIncrements()
	require.Len(t, l, 27)
	assert.True(t, l[0].Equal(d("0.00000001")))
	assert.True(t, l[26].Equal(d("5")))
}

func TestOrder(t *testing.T) {
	inc := models.Increments{Price: d("0.5"), Size: d("0.001")}
	a, err := Order(d("100.37"), d("0.0015"), models.Buy, models.IOC, inc)
	require.NoError(t, err)
	assert.True(t, a.Price.Equal(d("100.5")))
	assert.True(t, a.Size.Equal(d("0.001")))
	assert.Equal(t, "1000000000000000", a.AmountX18.String())

	a, err = Order(d("100.37"), d("0.0015"), models.Sell, models.GTC, inc)
	require.NoError(t, err)
	assert.True(t, a.Price.Equal(d("100.5")))
	assert.Equal(t, "-1000000000000000", a.AmountX18.String())

	_, err = Order(d("100"), d("0.0001"), models.Buy, models.IOC, inc)
	assert.Equal(t, errkind.InsufficientIncrement, errkind.Of(err))
}
