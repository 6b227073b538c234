package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/strategy"
	"nado_bot/internal/trade"
	"nado_bot/pkg/logger"
)

const maxCycleErrorLen = 300

var (
	hundred         = decimal.NewFromInt(100)
	defaultNotional = decimal.NewFromInt(100)
	defaultSpread   = decimal.NewFromInt(5)
)

// loop — задача одного ключа: цикл, потом сон до следующего тика.
// Отмена прерывает только сон; начатый цикл доезжает до конца.
func (s *Supervisor) loop(ctx context.Context, k Key, t *task) {
	defer s.release(k, t)

	log := logger.L().With(zap.Int64("account_id", k.AccountID), zap.String("network", k.Network.String()))
	log.Info("strategy loop started")
	s.notify.Send(ctx, k.AccountID, fmt.Sprintf("Strategy loop started on %s.", k.Network))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("strategy loop cancelled")
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			log.Info("strategy loop cancelled")
			return
		}
		if !s.runTask(context.WithoutCancel(ctx), k, t) {
			log.Info("strategy loop finished")
			return
		}
		timer.Reset(s.cfg.Tick)
	}
}

// runTask — шаг задачи t; задача, которую уже сменили в карте, цикл не выполняет.
func (s *Supervisor) runTask(ctx context.Context, k Key, t *task) bool {
	l := s.keyLock(k)
	l.Lock()
	defer l.Unlock()
	if !s.current(k, t) {
		return false
	}
	return s.step(ctx, k)
}

// runOnce — один шаг по ключу; false, если бот больше не запущен.
func (s *Supervisor) runOnce(ctx context.Context, k Key) bool {
	l := s.keyLock(k)
	l.Lock()
	defer l.Unlock()
	return s.step(ctx, k)
}

// step выполняется под keyLock.
func (s *Supervisor) step(ctx context.Context, k Key) bool {
	st, err := s.load(ctx, k)
	if err != nil {
		// хранилище недоступно: пробуем на следующем тике
		logger.L().Error("load strategy state", zap.String("key", StateKey(k)), zap.Error(err))
		return true
	}
	if !st.Running {
		return false
	}

	if err := s.safeCycle(ctx, k, &st); err != nil {
		logger.L().Error("strategy cycle failed",
			zap.Int64("account_id", k.AccountID),
			zap.String("network", k.Network.String()),
			zap.String("product", st.Product),
			zap.String("kind", string(errkind.Of(err))),
			zap.Error(err),
		)
		st.LastError = err.Error()
		if err := s.save(ctx, st); err != nil {
			logger.L().Error("save strategy state", zap.String("key", StateKey(k)), zap.Error(err))
		}
	}
	if s.observer != nil {
		s.observer.TouchTick(s.now())
	}
	return st.Running
}

// safeCycle — паника в цикле становится ошибкой цикла, задача живёт дальше.
func (s *Supervisor) safeCycle(ctx context.Context, k Key, st *models.StrategyState) (err error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "strategy.cycle")
	span.SetTag("account_id", k.AccountID)
	span.SetTag("network", k.Network.String())
	span.SetTag("strategy", string(st.Strategy))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()
	}()
	return s.cycle(ctx, k, st)
}

// cycle — шаги строго по порядку: пауза, сеть, интервал, цена, SL/TP, лимит ордеров, котировка.
func (s *Supervisor) cycle(ctx context.Context, k Key, st *models.StrategyState) error {
	paused, err := s.settings.Paused(ctx)
	if err != nil {
		return errkind.Wrap(errkind.TransientNetwork, "Could not read trading pause flag.", err)
	}
	if paused {
		return nil
	}

	active, err := s.accounts.ActiveNetwork(ctx, k.AccountID)
	if errkind.Has(err, errkind.FatalAccountState) {
		return s.stopFatal(ctx, k, st, err)
	}
	if err != nil {
		return err
	}
	if active != k.Network {
		st.Running = false
		st.StopReason = models.StopNetworkMismatch
		st.LastError = fmt.Sprintf("Stopped because active mode switched to %s", active)
		if err := s.save(ctx, *st); err != nil {
			return err
		}
		s.notify.Send(ctx, k.AccountID, fmt.Sprintf("Stopped %s loop on %s: active mode changed to %s.",
			strings.ToUpper(string(st.Strategy)), k.Network, active))
		return nil
	}

	now := s.now()
	if now.Sub(st.LastRunAt) < st.Interval() {
		return nil
	}

	product, ok := models.LookupProduct(st.Product)
	if !ok || product.Kind != models.ProductPerp {
		return errkind.Newf(errkind.Validation, "Invalid product '%s'", st.Product)
	}
	ex, err := s.accounts.Exchange(k.AccountID, k.Network)
	if err != nil {
		if !errkind.Has(err, errkind.FatalAccountState) {
			err = errkind.Wrap(errkind.FatalAccountState, "Wallet client unavailable", err)
		}
		return s.stopFatal(ctx, k, st, err)
	}

	mp, err := ex.MarketPrice(ctx, product.ID)
	if err != nil || !mp.Mid.IsPositive() {
		return errkind.Wrap(errkind.TransientNetwork, "Could not fetch market price", err)
	}
	mid := mp.Mid

	ref := decimal.NewFromFloat(st.ReferencePrice)
	if !ref.IsPositive() {
		ref = mid
		st.ReferencePrice = mid.InexactFloat64()
		if err := s.save(ctx, *st); err != nil {
			return err
		}
	}

	if stopped, err := s.checkThresholds(ctx, k, st, ref, mid); stopped || err != nil {
		return err
	}

	open, err := ex.OpenOrders(ctx, product.ID)
	if err != nil {
		return errkind.Wrap(errkind.TransientNetwork, "Could not fetch open orders", err)
	}
	if len(open) >= s.cfg.MaxOpenOrders {
		st.LastRunAt = now
		return s.save(ctx, *st)
	}

	return s.quote(ctx, k, st, ex, product, mid, now)
}

// stopFatal — аккаунт в состоянии, которое повтором не лечится: стоп, сохранение, уведомление.
func (s *Supervisor) stopFatal(ctx context.Context, k Key, st *models.StrategyState, cause error) error {
	st.Running = false
	st.StopReason = models.StopFatalAccount
	st.LastError = truncate(cause.Error(), maxCycleErrorLen)
	if err := s.save(ctx, *st); err != nil {
		return err
	}
	logger.L().Warn("strategy stopped on account error",
		zap.Int64("account_id", k.AccountID),
		zap.String("network", k.Network.String()),
		zap.Error(cause),
	)
	s.notify.Send(ctx, k.AccountID, fmt.Sprintf("⛔ %s stopped on %s-PERP (%s) - account error: %s",
		strings.ToUpper(string(st.Strategy)), st.Product, k.Network, st.LastError))
	return nil
}

// checkThresholds — |mid-ref|/ref*100 против SL, потом TP; порог включительно.
func (s *Supervisor) checkThresholds(ctx context.Context, k Key, st *models.StrategyState, ref, mid decimal.Decimal) (bool, error) {
	move := mid.Sub(ref).Abs().Div(ref).Mul(hundred)
	sl := decimal.NewFromFloat(st.StopLossPct)
	tp := decimal.NewFromFloat(st.TakeProfitPct)
	name := strings.ToUpper(string(st.Strategy))

	switch {
	case sl.IsPositive() && move.GreaterThanOrEqual(sl):
		st.Running = false
		st.StopReason = models.StopLoss
		st.LastError = fmt.Sprintf("Stopped by SL at %s%% move from reference.", move.StringFixed(2))
		if err := s.save(ctx, *st); err != nil {
			return true, err
		}
		s.flatten(ctx, k, *st)
		s.notify.Send(ctx, k.AccountID, fmt.Sprintf("🛑 %s stopped on %s-PERP (%s) - SL hit (%s%%).",
			name, st.Product, k.Network, move.StringFixed(2)))
		return true, nil
	case tp.IsPositive() && move.GreaterThanOrEqual(tp):
		st.Running = false
		st.StopReason = models.StopTakeProfit
		st.LastError = ""
		if err := s.save(ctx, *st); err != nil {
			return true, err
		}
		s.flatten(ctx, k, *st)
		s.notify.Send(ctx, k.AccountID, fmt.Sprintf("✅ %s target reached on %s-PERP (%s) - TP hit (%s%%).",
			name, st.Product, k.Network, move.StringFixed(2)))
		return true, nil
	}
	return false, nil
}

// quote ставит одну покупку и одну продажу; упавшая нога не останавливает бота.
func (s *Supervisor) quote(ctx context.Context, k Key, st *models.StrategyState, ex trade.Exchange, product models.Product, mid decimal.Decimal, now time.Time) error {
	notional := decimal.NewFromFloat(st.NotionalUSD)
	if !notional.IsPositive() {
		notional = defaultNotional
	}
	spread := decimal.NewFromFloat(st.SpreadBp)
	if !spread.IsPositive() {
		spread = defaultSpread
	}
	q := strategy.NewEngine(st.Strategy).Quote(mid, notional, spread)
	leverage := orFloat(st.Leverage, 3)

	leg := func(side models.Side, price decimal.Decimal) models.OrderResult {
		return s.trade.Execute(ctx, ex, trade.Request{
			AccountID: k.AccountID,
			Product:   product.Name,
			Side:      side,
			Size:      q.Size,
			Leverage:  leverage,
			Price:     optional.Some(price),
			Slippage:  st.SlippagePct,
		})
	}
	buy := leg(models.Buy, q.Bid)
	sell := leg(models.Sell, q.Ask)

	var errs []string
	if !buy.Success {
		errs = append(errs, "buy: "+buy.ErrorText())
	}
	if !sell.Success {
		errs = append(errs, "sell: "+sell.ErrorText())
	}
	msg := truncate(strings.Join(errs, "; "), maxCycleErrorLen)

	st.LastRunAt = now
	st.Runs++
	st.LastError = msg
	if err := s.save(ctx, *st); err != nil {
		return err
	}

	logger.L().Debug("strategy cycle done",
		zap.Int64("account_id", k.AccountID),
		zap.String("network", k.Network.String()),
		zap.String("product", product.Name),
		zap.String("mid", mid.String()),
		zap.String("size", q.Size.String()),
		zap.String("spread_bp", q.SpreadBp.String()),
		zap.Int("runs", st.Runs),
	)
	if msg != "" {
		s.notify.Send(ctx, k.AccountID, fmt.Sprintf("%s cycle had errors: %s", strings.ToUpper(string(st.Strategy)), msg))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
