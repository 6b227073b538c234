package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nado_bot/internal/models"
	"nado_bot/internal/signer"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// fakeGateway — http-заглушка /query и /execute.
type fakeGateway struct {
	priceHits atomic.Int32
}

func (f *fakeGateway) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/execute" {
		_, _ = w.Write([]byte(`{"status":"failure","error":"Invalid order price: price_increment_x18 for product 2: 500000000000000000","error_code":2000}`))
		return
	}
	switch r.URL.Query().Get("type") {
	case "all_products":
		_, _ = w.Write([]byte(`{"status":"success","data":{"perp_products":[
			{"product_id":2,"size_increment_x18":"1000000000000000","price_increment_x18":"500000000000000000","cum_funding_x18":"0"},
			{"product_id":4,"book_info":{"size_increment":10000000000000000,"price_increment_x18":"100000000000000000"}}
		]}}`))
	case "market_price":
		f.priceHits.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","data":{"product_id":2,"bid_x18":"99000000000000000000","ask_x18":"101000000000000000000"}}`))
	case "subaccount_info":
		_, _ = w.Write([]byte(`{"status":"success","data":{
			"exists":true,
			"spot_balances":[{"product_id":0,"balance":{"amount":"250000000000000000000"}}],
			"perp_positions":[{"product_id":2,"balance":{"amount":"-500000000000000000","v_quote_balance":"50000000000000000000"}}],
			"positions":[{"product_id":2,"amount":"-500000000000000000","entry_price_x18":"100000000000000000000"}],
			"perp_balances":[{"product_id":4,"size":"0"}]
		}}`))
	case "subaccount_orders":
		_, _ = w.Write([]byte(`{"status":"success","data":{"product_id":2,"orders":[{"digest":"0xabc","amount":"1000000000000000000","price_x18":"99500000000000000000"}]}}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"failure","error":"unknown query"}`))
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGateway) {
	t.Helper()
	fake := &fakeGateway{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	tr, err := Dial(context.Background(), models.Testnet, Endpoints{REST: srv.URL}, DialOptions{Mode: ModeREST, Timeout: 2 * time.Second})
	require.NoError(t, err)
	gw := NewGateway(map[models.Network]Transport{models.Testnet: tr})
	s, err := signer.NewEIP712(testKey, 763373)
	require.NoError(t, err)
	return NewClient(gw, models.Testnet, s), fake
}

func TestDialRESTWithoutWS(t *testing.T) {
	tr, err := Dial(context.Background(), models.Testnet, Endpoints{REST: "http://127.0.0.1:1"}, DialOptions{Mode: ModeAuto})
	require.NoError(t, err)
	assert.Equal(t, ModeREST, tr.Mode())
}

func TestDialAutoFallsBackWhenWSDown(t *testing.T) {
	ep := Endpoints{REST: "http://127.0.0.1:1", WS: "ws://127.0.0.1:1/v1/ws"}
	tr, err := Dial(context.Background(), models.Testnet, ep, DialOptions{Mode: ModeAuto, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, ModeREST, tr.Mode())
}

func TestDialForcedWSFails(t *testing.T) {
	ctx := context.Background()
	ep := Endpoints{REST: "http://127.0.0.1:1", WS: "ws://127.0.0.1:1/v1/ws"}

	tr, err := Dial(ctx, models.Testnet, ep, DialOptions{Mode: ModeWS, Timeout: time.Second})
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.Contains(t, err.Error(), "testnet: gateway ws")

	_, err = Dial(ctx, models.Testnet, Endpoints{REST: ep.REST}, DialOptions{Mode: ModeWS})
	assert.EqualError(t, err, "testnet: exchange mode is ws but no ws endpoint configured")
}

func TestAllProductsReadsBothLayouts(t *testing.T) {
	c, _ := newTestClient(t)
	metas, err := c.gw.AllProducts(context.Background(), models.Testnet)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, int64(2), metas[0].ProductID)
	assert.Equal(t, "500000000000000000", metas[0].PriceX18.String())
	assert.Equal(t, "1000000000000000", metas[0].SizeX18.String())

	assert.Equal(t, int64(4), metas[1].ProductID)
	assert.Equal(t, "100000000000000000", metas[1].PriceX18.String())
	assert.Equal(t, "10000000000000000", metas[1].SizeX18.String())
}

func TestMarketPriceIsCached(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	p, err := c.MarketPrice(ctx, 2)
	require.NoError(t, err)
	assert.True(t, p.Mid.Equal(decimal.NewFromInt(100)), p.Mid.String())
	assert.True(t, p.Bid.Equal(decimal.NewFromInt(99)))

	_, err = c.MarketPrice(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.priceHits.Load())
}

func TestPriceCacheExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newPriceCache(PriceCacheTTL)
	c.now = func() time.Time { return now }

	c.put(models.Testnet, 2, models.MarketPrice{Mid: decimal.NewFromInt(1)})
	_, ok := c.get(models.Testnet, 2)
	assert.True(t, ok)
	_, ok = c.get(models.Mainnet, 2)
	assert.False(t, ok)

	now = now.Add(PriceCacheTTL)
	_, ok = c.get(models.Testnet, 2)
	assert.False(t, ok)
}

func TestPositionsKeepDuplicatesAcrossLists(t *testing.T) {
	c, _ := newTestClient(t)
	rows, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, int64(2), r.ProductID)
		assert.Equal(t, models.Short, r.Side)
		assert.True(t, r.Amount.Equal(decimal.RequireFromString("0.5")), r.Amount.String())
		assert.True(t, r.Price.Equal(decimal.NewFromInt(100)), r.Price.String())
	}
}

func TestBalance(t *testing.T) {
	c, _ := newTestClient(t)
	b, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Exists)
	assert.True(t, b.Quote().Equal(decimal.NewFromInt(250)))
}

func TestOpenOrders(t *testing.T) {
	c, _ := newTestClient(t)
	orders, err := c.OpenOrders(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "0xabc", orders[0].Digest)
	assert.True(t, orders[0].Price.Equal(decimal.RequireFromString("99.5")))
}

func TestPlaceOrderRejection(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.PlaceOrder(context.Background(), 2, signer.Signed{Order: signer.Order{
		PriceX18: decimal.RequireFromString("100.3").Shift(18).BigInt(),
		Amount:   decimal.RequireFromString("0.001").Shift(18).BigInt(),
		Appendix: signer.Appendix(models.GTC, false),
	}})
	var rej *RejectError
	require.True(t, errors.As(err, &rej), "%v", err)
	assert.Equal(t, 2000, rej.Code)
	assert.Contains(t, rej.Text, "price_increment_x18 for product 2")
}

func TestX18AcceptsStringAndNumber(t *testing.T) {
	var v struct {
		A X18 `json:"a"`
		B X18 `json:"b"`
		C X18 `json:"c"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(`{"a":"12","b":34,"c":null}`), &v))
	assert.Equal(t, "12", v.A.String())
	assert.Equal(t, "34", v.B.String())
	assert.False(t, v.C.Valid())

	assert.Error(t, sonic.Unmarshal([]byte(`{"a":"1.5"}`), &v))
}
