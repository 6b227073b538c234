package trade

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nado_bot/internal/errkind"
	"nado_bot/internal/exchangetest"
	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/nado_client/service"
	"nado_bot/internal/positions"
	"nado_bot/internal/submitter"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*Service, *exchangetest.Stub) {
	t.Helper()
	reg := increments.NewRegistry(nil, time.Second)
	reg.Set(models.Testnet, 2, models.Increments{Price: dec("1"), Size: dec("0.001")})
	sub := submitter.New(reg, nil)
	svc := NewService(sub, positions.NewAggregator(sub), DefaultLimits())

	ex := exchangetest.NewStub(models.Testnet)
	ex.SetPrice(2, "49999", "50001")
	ex.SetBalance(models.Balance{Exists: true, Balances: map[int64]decimal.Decimal{0: dec("1000")}})
	return svc, ex
}

func req(size string, lev float64) Request {
	return Request{AccountID: 1, Product: "btc", Side: models.Buy, Size: dec(size), Leverage: lev, Slippage: 1, Manual: true}
}

func TestValidate(t *testing.T) {
	svc, ex := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		kind errkind.Kind
		text string
	}{
		{"unknown product", Request{AccountID: 1, Product: "PEPE", Side: models.Buy, Size: dec("1"), Leverage: 1}, errkind.Validation, "Unknown product 'PEPE'"},
		{"zero size", req("0", 1), errkind.Validation, "Trade size must be positive."},
		{"leverage too high", req("0.01", 51), errkind.Validation, "Max leverage is 50x."},
		{"leverage too low", req("0.01", 0.5), errkind.Validation, "Leverage must be at least 1x."},
		{"margin", req("1", 1), errkind.InsufficientMargin, "Insufficient margin."},
		{"min notional", req("0.00001", 1), errkind.Validation, "Minimum trade size is $1."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(ctx, ex, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, errkind.Of(err))
			assert.Contains(t, err.Error(), tc.text)
		})
	}

	// плечо 50 снимает требование к марже: 1 BTC = $50k / 50 = $1000 > 950
	_, err := svc.Validate(ctx, ex, req("1", 50))
	assert.Equal(t, errkind.InsufficientMargin, errkind.Of(err))
	checked, err := svc.Validate(ctx, ex, req("0.9", 50))
	require.NoError(t, err)
	assert.True(t, checked.Margin.Equal(dec("900")))
}

func TestValidateSubaccountMissing(t *testing.T) {
	svc, ex := newService(t)
	ex.SetBalance(models.Balance{})
	_, err := svc.Validate(context.Background(), ex, req("0.01", 1))
	assert.Equal(t, errkind.FatalAccountState, errkind.Of(err))
}

func TestExecuteMarketAndRateLimit(t *testing.T) {
	svc, ex := newService(t)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	res := svc.Execute(ctx, ex, req("0.01", 3))
	require.True(t, res.Success, res.ErrorText())
	assert.True(t, ex.Placed()[0].IOC)

	res = svc.Execute(ctx, ex, req("0.01", 3))
	require.False(t, res.Success)
	assert.Equal(t, errkind.RateLimited, errkind.Of(res.Err))
	assert.Contains(t, res.ErrorText(), "wait 60s")

	// стратегии не ограничены
	auto := req("0.01", 3)
	auto.Manual = false
	res = svc.Execute(ctx, ex, auto)
	require.True(t, res.Success, res.ErrorText())

	now = now.Add(61 * time.Second)
	res = svc.Execute(ctx, ex, req("0.01", 3))
	assert.True(t, res.Success, res.ErrorText())
}

func TestExecuteLimit(t *testing.T) {
	svc, ex := newService(t)
	r := req("0.01", 3)
	r.Price = optional.Some(dec("49000.4"))

	res := svc.Execute(context.Background(), ex, r)
	require.True(t, res.Success, res.ErrorText())
	assert.True(t, res.FilledPrice.Equal(dec("49000")))
	assert.False(t, ex.Placed()[0].IOC)
}

func TestCancel(t *testing.T) {
	svc, ex := newService(t)
	ctx := context.Background()
	ex.AddOpenOrders(2, 3)

	orders, err := ex.OpenOrders(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, svc.CancelOrder(ctx, ex, 2, orders[0].Digest))

	n, err := svc.CancelAll(ctx, ex, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, ex.Cancelled(), 3)
}

func TestClassify(t *testing.T) {
	err := classify(&service.RejectError{Text: "rate limit"}, "x")
	assert.Equal(t, errkind.RateLimited, errkind.Of(err))
	err = classify(assert.AnError, "Could not cancel order.")
	assert.Equal(t, errkind.TransientNetwork, errkind.Of(err))
	assert.Equal(t, "Could not cancel order.", err.Error())
}

func TestClosePositionUnknownProduct(t *testing.T) {
	svc, ex := newService(t)
	res := svc.ClosePosition(context.Background(), ex, "nope", 1)
	assert.Equal(t, errkind.Validation, errkind.Of(res.Err))
}
