package increments

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nado_bot/internal/models"
)

type fakeSource struct {
	calls atomic.Int32
	delay time.Duration
	metas []ProductMeta
	err   error
}

func (f *fakeSource) AllProducts(ctx context.Context, _ models.Network) ([]ProductMeta, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.metas, f.err
}

func x18(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGetUnknownIsZero(t *testing.T) {
	r := NewRegistry(nil, 0)
	inc := r.Get(models.Testnet, 2)
	assert.False(t, inc.PriceKnown())
	assert.False(t, inc.SizeKnown())
}

func TestWarmFillsAllProducts(t *testing.T) {
	src := &fakeSource{metas: []ProductMeta{
		{ProductID: 2, PriceX18: x18("1000000000000000000"), SizeX18: x18("1000000000000000")},
		{ProductID: 4, PriceX18: x18("100000000000000000"), SizeX18: x18("10000000000000000")},
		{ProductID: 8, PriceX18: nil, SizeX18: x18("0")},
	}}
	r := NewRegistry(src, time.Second)

	r.Warm(context.Background(), models.Testnet, 2)

	btc := r.Get(models.Testnet, 2)
	assert.True(t, btc.Price.Equal(dec("1")))
	assert.True(t, btc.Size.Equal(dec("0.001")))
	eth := r.Get(models.Testnet, 4)
	assert.True(t, eth.Price.Equal(dec("0.1")))
	assert.False(t, r.Get(models.Testnet, 8).SizeKnown())
	assert.False(t, r.Get(models.Mainnet, 2).PriceKnown(), "networks are separate keys")

	// оба шага известны — повторного запроса нет
	r.Warm(context.Background(), models.Testnet, 2)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestWarmFailureLeavesUnknown(t *testing.T) {
	src := &fakeSource{err: errors.New("gateway down")}
	r := NewRegistry(src, time.Second)
	r.Warm(context.Background(), models.Testnet, 2)
	assert.False(t, r.Get(models.Testnet, 2).PriceKnown())
	assert.Error(t, r.WarmNetwork(context.Background(), models.Testnet))
}

func TestWarmConcurrentCallsShareRequest(t *testing.T) {
	src := &fakeSource{
		delay: 50 * time.Millisecond,
		metas: []ProductMeta{{ProductID: 2, PriceX18: x18("1000000000000000000"), SizeX18: x18("1000000000000000")}},
	}
	r := NewRegistry(src, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Warm(context.Background(), models.Testnet, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLearnFromRejection(t *testing.T) {
	r := NewRegistry(nil, 0)

	inc, ok := r.LearnFromRejection(models.Testnet, 2,
		"Invalid order price: price_increment_x18 for product 2: 500000000000000000", decimal.Zero)
	require.True(t, ok)
	assert.True(t, inc.Price.Equal(dec("0.5")))
	assert.False(t, inc.SizeKnown())

	inc, ok = r.LearnFromRejection(models.Testnet, 2,
		"Invalid order amount: not divisible by size_increment 0.001", decimal.Zero)
	require.True(t, ok)
	assert.True(t, inc.Size.Equal(dec("0.001")))
	assert.True(t, inc.Price.Equal(dec("0.5")), "price survives a size-only lesson")

	// лучшее значение перезаписывает старое
	inc, ok = r.LearnFromRejection(models.Testnet, 2,
		"Invalid order price: price_increment_x18 for product 2: 1000000000000000000", decimal.Zero)
	require.True(t, ok)
	assert.True(t, inc.Price.Equal(dec("1")))

	_, ok = r.LearnFromRejection(models.Testnet, 2, "insufficient margin", decimal.Zero)
	assert.False(t, ok)
}

func TestExtractSize(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"Invalid order amount: size_increment_x18 for product 2: 1000000000000000", "0.001", true},
		{"invalid order amount, SIZE_INCREMENT_X18=50000000000000", "0.00005", true},
		{"invalid order amount: must be multiple of size_increment 5e-5", "0.00005", true},
		{"invalid order amount: size_increment: 0.25", "0.25", true},
		{"invalid order amount", "", false},
		{"Invalid order amount: amount must be divisible by size_increment_x18", "", false},
		{"Invalid order amount: size_increment_x18 for product 4: 1000000000000000", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractSize(tc.text, 2)
		require.Equal(t, tc.ok, ok, tc.text)
		if ok {
			assert.True(t, got.Equal(dec(tc.want)), "%s: got %s", tc.text, got)
		}
	}
}

func TestLearnIgnoresSizeAboveRequest(t *testing.T) {
	r := NewRegistry(nil, 0)

	_, ok := r.LearnFromRejection(models.Testnet, 2,
		"Invalid order amount: not divisible by size_increment 5", dec("0.5"))
	assert.False(t, ok)
	assert.False(t, r.Get(models.Testnet, 2).SizeKnown())

	inc, ok := r.LearnFromRejection(models.Testnet, 2,
		"Invalid order amount: not divisible by size_increment 0.1", dec("0.5"))
	require.True(t, ok)
	assert.True(t, inc.Size.Equal(dec("0.1")))
}

func TestExtractPriceCaseInsensitive(t *testing.T) {
	v, ok := ExtractPrice("INVALID ORDER PRICE: PRICE_INCREMENT_X18 FOR PRODUCT 2: 500000000000000000", 2)
	require.True(t, ok)
	assert.True(t, v.Equal(dec("0.5")))
}

func TestExtractPriceOtherProduct(t *testing.T) {
	_, ok := ExtractPrice("price_increment_x18 for product 4: 1000", 2)
	assert.False(t, ok)
	v, ok := ExtractPrice("price_increment_x18 for product 4: 1000", 4)
	require.True(t, ok)
	assert.True(t, v.Equal(dec("0.000000000000001")))
}
