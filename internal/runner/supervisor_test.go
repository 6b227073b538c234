package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"nado_bot/internal/errkind"
	"nado_bot/internal/exchangetest"
	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/nado_client/service"
	"nado_bot/internal/positions"
	"nado_bot/internal/settings"
	"nado_bot/internal/store"
	"nado_bot/internal/submitter"
	"nado_bot/internal/trade"
)

const btc = int64(2)

type fakeAccounts struct {
	mu       sync.Mutex
	networks map[int64]models.Network
	ex       map[Key]*exchangetest.Stub
}

func (f *fakeAccounts) ActiveNetwork(_ context.Context, id int64) (models.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.networks[id]
	if !ok {
		return "", errkind.Newf(errkind.FatalAccountState, "Unknown account %d.", id)
	}
	return n, nil
}

func (f *fakeAccounts) setNetwork(id int64, n models.Network) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[id] = n
}

func (f *fakeAccounts) drop(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, id)
}

func (f *fakeAccounts) dropClient(k Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ex, k)
}

func (f *fakeAccounts) Exchange(id int64, n models.Network) (trade.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ex, ok := f.ex[Key{AccountID: id, Network: n}]
	if !ok {
		return nil, errkind.New(errkind.FatalAccountState, "no client")
	}
	return ex, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(_ context.Context, _ int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func (r *recorder) has(sub string) bool {
	for _, m := range r.all() {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type SupervisorSuite struct {
	suite.Suite

	ctx      context.Context
	store    *store.Memory
	accounts *fakeAccounts
	ex       *exchangetest.Stub
	notes    *recorder
	settings *settings.Service
	sup      *Supervisor
	clock    time.Time
	key      Key
}

func (ss *SupervisorSuite) SetupTest() {
	ss.ctx = context.Background()
	ss.store = store.NewMemory()
	ss.ex = exchangetest.NewStub(models.Testnet)
	ss.ex.SetMid(btc, "100")
	ss.key = Key{AccountID: 1, Network: models.Testnet}
	ss.accounts = &fakeAccounts{
		networks: map[int64]models.Network{1: models.Testnet},
		ex:       map[Key]*exchangetest.Stub{ss.key: ss.ex},
	}
	ss.notes = &recorder{}
	ss.settings = settings.NewService(ss.store)
	ss.clock = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg := increments.NewRegistry(nil, time.Second)
	sub := submitter.New(reg, nil)
	tradeSvc := trade.NewService(sub, positions.NewAggregator(sub), trade.DefaultLimits())
	ss.sup = NewSupervisor(ss.store, ss.accounts, tradeSvc, ss.settings, ss.notes,
		Config{Tick: time.Hour, MaxOpenOrders: 6},
		WithClock(func() time.Time { return ss.clock }),
	)
}

func (ss *SupervisorSuite) TearDownTest() {
	ss.sup.StopAll()
}

// running — сохранённое состояние запущенного mm-бота с опорной ценой 100.
func (ss *SupervisorSuite) running() models.StrategyState {
	st := models.DefaultStrategyState(ss.key.AccountID, ss.key.Network)
	st.Running = true
	st.Strategy = models.StrategyMM
	st.Product = "BTC"
	st.ReferencePrice = 100
	st.StopLossPct = 5
	st.TakeProfitPct = 50
	st.NotionalUSD = 100
	st.SpreadBp = 4
	ss.Require().NoError(ss.sup.save(ss.ctx, st))
	return st
}

func (ss *SupervisorSuite) state() models.StrategyState {
	st, err := ss.sup.load(ss.ctx, ss.key)
	ss.Require().NoError(err)
	return st
}

func (ss *SupervisorSuite) TestStopLossBoundary() {
	cases := []struct {
		mid     string
		stopped bool
	}{
		{"95", true},
		{"94.99", true},
		{"95.01", false},
		{"105", true},
	}
	for _, tc := range cases {
		ss.Run(tc.mid, func() {
			ss.SetupTest()
			ss.running()
			ss.ex.SetMid(btc, tc.mid)

			alive := ss.sup.runOnce(ss.ctx, ss.key)
			st := ss.state()
			ss.Equal(!tc.stopped, alive)
			ss.Equal(!tc.stopped, st.Running)
			if tc.stopped {
				ss.Equal(models.StopLoss, st.StopReason)
				ss.True(strings.HasPrefix(st.LastError, "Stopped by SL at "))
				ss.True(ss.notes.has("SL hit"))
				ss.Empty(ss.ex.Placed())
			} else {
				ss.Equal(1, st.Runs)
				ss.Len(ss.ex.Placed(), 2)
			}
		})
	}
}

func (ss *SupervisorSuite) TestStopLossMessage() {
	ss.running()
	ss.ex.SetMid(btc, "95")
	ss.sup.runOnce(ss.ctx, ss.key)
	ss.Equal("Stopped by SL at 5.00% move from reference.", ss.state().LastError)
	ss.Contains(ss.notes.all(), "🛑 MM stopped on BTC-PERP (testnet) - SL hit (5.00%).")
}

func (ss *SupervisorSuite) TestTakeProfitClearsError() {
	st := ss.running()
	st.StopLossPct = 0
	st.TakeProfitPct = 1
	st.LastError = "old"
	ss.Require().NoError(ss.sup.save(ss.ctx, st))
	ss.ex.SetMid(btc, "101")

	ss.False(ss.sup.runOnce(ss.ctx, ss.key))
	got := ss.state()
	ss.Equal(models.StopTakeProfit, got.StopReason)
	ss.Empty(got.LastError)
	ss.Contains(ss.notes.all(), "✅ MM target reached on BTC-PERP (testnet) - TP hit (1.00%).")
}

func (ss *SupervisorSuite) TestStopLossFlattens() {
	ss.running()
	ss.ex.SetRows(false, models.PositionRow{ProductID: btc, Side: models.Long, Amount: decimalOf("0.5"), Price: decimalOf("100")})
	ss.ex.SetMid(btc, "90")

	ss.sup.runOnce(ss.ctx, ss.key)
	rows, err := ss.ex.Positions(ss.ctx)
	ss.Require().NoError(err)
	nets := positions.Normalize(rows)
	ss.Empty(positions.Open(nets))
}

func (ss *SupervisorSuite) TestReferenceFixedOnFirstSample() {
	st := ss.running()
	st.ReferencePrice = 0
	ss.Require().NoError(ss.sup.save(ss.ctx, st))
	ss.ex.SetMid(btc, "123.5")

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	ss.Equal(123.5, ss.state().ReferencePrice)
}

func (ss *SupervisorSuite) TestQuotesBidAndAsk() {
	ss.running()
	ss.True(ss.sup.runOnce(ss.ctx, ss.key))

	placed := ss.ex.Placed()
	ss.Require().Len(placed, 2)
	ss.True(placed[0].Amount.IsPositive())
	ss.Equal("99.96", placed[0].Price.String())
	ss.True(placed[1].Amount.IsNegative())
	ss.Equal("100.04", placed[1].Price.String())
	ss.Equal("1", placed[0].Amount.String())
	ss.False(placed[0].IOC)

	st := ss.state()
	ss.Equal(1, st.Runs)
	ss.Empty(st.LastError)
	ss.True(ss.clock.Equal(st.LastRunAt))
}

func (ss *SupervisorSuite) TestIntervalNotElapsed() {
	st := ss.running()
	st.LastRunAt = ss.clock.Add(-10 * time.Second)
	ss.Require().NoError(ss.sup.save(ss.ctx, st))

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	ss.Empty(ss.ex.Placed())
	ss.Equal(0, ss.state().Runs)
}

func (ss *SupervisorSuite) TestSingleLegFailureKeepsRunning() {
	ss.running()
	ss.ex.RejectNext(nil, &service.RejectError{Text: "insufficient margin"})

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.True(st.Running)
	ss.Equal(1, st.Runs)
	ss.Equal("sell: Insufficient margin. Please deposit more funds.", st.LastError)
	ss.Contains(ss.notes.all(), "MM cycle had errors: sell: Insufficient margin. Please deposit more funds.")
	ss.Len(ss.ex.Placed(), 1)
}

func (ss *SupervisorSuite) TestPriceFailureIsTransient() {
	ss.running()
	ss.ex.SetPriceErr(errkind.New(errkind.TransientNetwork, "timeout"))

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.True(st.Running)
	ss.Equal("Could not fetch market price", st.LastError)
	ss.Equal(0, st.Runs)
}

func (ss *SupervisorSuite) TestNetworkMismatchStops() {
	ss.running()
	ss.accounts.setNetwork(1, models.Mainnet)

	ss.False(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.Equal(models.StopNetworkMismatch, st.StopReason)
	ss.Equal("Stopped because active mode switched to mainnet", st.LastError)
	ss.Contains(ss.notes.all(), "Stopped MM loop on testnet: active mode changed to mainnet.")
}

func (ss *SupervisorSuite) TestPauseSkipsCycle() {
	ss.running()
	ss.Require().NoError(ss.settings.SetPaused(ss.ctx, true))

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	ss.Empty(ss.ex.Placed())
	ss.Equal(0, ss.state().Runs)
	ss.True(ss.state().LastRunAt.IsZero())
}

func (ss *SupervisorSuite) TestOpenOrderCap() {
	ss.running()
	ss.ex.AddOpenOrders(btc, 6)

	ss.True(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.Empty(ss.ex.Placed())
	ss.Equal(0, st.Runs)
	ss.True(ss.clock.Equal(st.LastRunAt))
}

func (ss *SupervisorSuite) TestStartStop() {
	st, msg, err := ss.sup.Start(ss.ctx, StartParams{AccountID: 1, Strategy: "grid", Product: "eth"})
	ss.Require().NoError(err)
	ss.Equal("GRID bot started on ETH-PERP (testnet) | TP 1.2% / SL 0.8%", msg)
	ss.NotEmpty(st.RunID)
	ss.Equal(10.0, st.SpreadBp)
	ss.Equal(1, ss.sup.Running())

	status, err := ss.sup.Status(ss.ctx, 1)
	ss.Require().NoError(err)
	ss.True(status.Running)
	ss.Equal(models.StrategyGrid, status.Strategy)

	_, err = ss.sup.Stop(ss.ctx, 1, true)
	ss.Require().NoError(err)
	ss.Eventually(func() bool { return ss.sup.Running() == 0 }, time.Second, 5*time.Millisecond)
	ss.Equal(models.StopManual, ss.state().StopReason)
	ss.False(ss.state().Running)
	ss.True(ss.notes.has("manual stop"))

	_, err = ss.sup.Stop(ss.ctx, 1, false)
	ss.True(errkind.Has(err, errkind.Validation))
}

func (ss *SupervisorSuite) TestStartRightAfterStopKeepsLoop() {
	_, _, err := ss.sup.Start(ss.ctx, StartParams{AccountID: 1, Strategy: "mm", Product: "BTC"})
	ss.Require().NoError(err)
	_, err = ss.sup.Stop(ss.ctx, 1, false)
	ss.Require().NoError(err)
	_, _, err = ss.sup.Start(ss.ctx, StartParams{AccountID: 1, Strategy: "mm", Product: "BTC"})
	ss.Require().NoError(err)

	ss.True(ss.state().Running)
	ss.Never(func() bool { return ss.sup.Running() != 1 }, 200*time.Millisecond, 10*time.Millisecond)
	ss.Equal([]Key{ss.key}, ss.sup.Keys())
}

func (ss *SupervisorSuite) TestUnknownAccountStops() {
	ss.running()
	ss.accounts.drop(1)

	ss.False(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.False(st.Running)
	ss.Equal(models.StopFatalAccount, st.StopReason)
	ss.Equal("Unknown account 1.", st.LastError)
	ss.Contains(ss.notes.all(), "⛔ MM stopped on BTC-PERP (testnet) - account error: Unknown account 1.")
	ss.Empty(ss.ex.Placed())
}

func (ss *SupervisorSuite) TestMissingClientStops() {
	ss.running()
	ss.accounts.dropClient(ss.key)

	ss.False(ss.sup.runOnce(ss.ctx, ss.key))
	st := ss.state()
	ss.False(st.Running)
	ss.Equal(models.StopFatalAccount, st.StopReason)
	ss.Equal("no client", st.LastError)
	ss.True(ss.notes.has("account error: no client"))
}

func (ss *SupervisorSuite) TestStartValidation() {
	_, _, err := ss.sup.Start(ss.ctx, StartParams{AccountID: 1, Strategy: "twap", Product: "BTC"})
	ss.EqualError(err, "Unknown strategy.")
	_, _, err = ss.sup.Start(ss.ctx, StartParams{AccountID: 1, Strategy: "mm", Product: "PEPE"})
	ss.EqualError(err, "Unknown product 'PEPE'.")
	ss.Equal(0, ss.sup.Running())
}

func (ss *SupervisorSuite) TestRecoverIsIdempotent() {
	ss.running()
	other := models.DefaultStrategyState(2, models.Testnet)
	ss.Require().NoError(ss.sup.save(ss.ctx, other))
	ss.Require().NoError(ss.store.Put(ss.ctx, StatePrefix+"garbage", []byte("{}")))

	n, err := ss.sup.Recover(ss.ctx)
	ss.Require().NoError(err)
	ss.Equal(1, n)

	n, err = ss.sup.Recover(ss.ctx)
	ss.Require().NoError(err)
	ss.Equal(0, n)
	ss.Equal([]Key{ss.key}, ss.sup.Keys())
}

func (ss *SupervisorSuite) TestLoopStartsAndNotifies() {
	ss.running()
	_, err := ss.sup.Recover(ss.ctx)
	ss.Require().NoError(err)

	ss.Eventually(func() bool { return len(ss.ex.Placed()) == 2 }, time.Second, 5*time.Millisecond)
	ss.True(ss.notes.has("Strategy loop started on testnet."))
}

func TestSupervisorSuite(t *testing.T) {
	suite.Run(t, new(SupervisorSuite))
}

func TestParseStateKey(t *testing.T) {
	k, ok := ParseStateKey("strategy_bot:42:mainnet")
	if !ok || k != (Key{AccountID: 42, Network: models.Mainnet}) {
		t.Fatalf("unexpected %v %v", k, ok)
	}
	for _, bad := range []string{"strategy_bot:x:mainnet", "strategy_bot:1", "user_settings:1:testnet", "strategy_bot:1:devnet"} {
		if _, ok := ParseStateKey(bad); ok {
			t.Fatalf("%q parsed", bad)
		}
	}
}

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }
