// Package runner — рантайм мейкер-стратегий: по одной кооперативной задаче на (аккаунт, сеть).
//
// Источник правды о том, что запущено, — KV-хранилище; карта задач в памяти только кеш,
// который сверяется с хранилищем при старте процесса (Recover).
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/settings"
	"nado_bot/internal/store"
	"nado_bot/internal/trade"
	"nado_bot/pkg/logger"
)

// Accounts — откуда берём активную сеть и клиента биржи аккаунта.
type Accounts interface {
	ActiveNetwork(ctx context.Context, accountID int64) (models.Network, error)
	Exchange(accountID int64, network models.Network) (trade.Exchange, error)
}

// Notifier — доставка без гарантий, ошибки не возвращаются.
type Notifier interface {
	Send(ctx context.Context, accountID int64, text string)
}

// Observer — кто хочет знать о циклах (health).
type Observer interface {
	TouchTick(t time.Time)
	SetRunning(n int)
}

type Config struct {
	Tick          time.Duration
	MaxOpenOrders int
}

func DefaultConfig() Config {
	return Config{Tick: 20 * time.Second, MaxOpenOrders: 6}
}

// StartParams — запрос на запуск бота.
type StartParams struct {
	AccountID int64  `validate:"required"`
	Strategy  string `validate:"required,oneof=mm grid dn MM GRID DN"`
	Product   string `validate:"required"`
	Leverage  float64
	Slippage  float64
}

type task struct {
	cancel context.CancelFunc
}

type Supervisor struct {
	store    store.Store
	accounts Accounts
	trade    *trade.Service
	settings *settings.Service
	notify   Notifier
	tracer   opentracing.Tracer
	observer Observer
	cfg      Config
	validate *validator.Validate
	now      func() time.Time

	// родитель всех задач, отменяется в StopAll
	base       context.Context
	baseCancel context.CancelFunc

	mu    sync.Mutex
	tasks map[Key]*task
	locks map[Key]*sync.Mutex
	wg    sync.WaitGroup
}

type Option func(*Supervisor)

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observer = o }
}

func WithTracer(t opentracing.Tracer) Option {
	return func(s *Supervisor) {
		if t != nil {
			s.tracer = t
		}
	}
}

func NewSupervisor(
	st store.Store,
	accounts Accounts,
	tradeSvc *trade.Service,
	settingsSvc *settings.Service,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) *Supervisor {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	if cfg.MaxOpenOrders <= 0 {
		cfg.MaxOpenOrders = DefaultConfig().MaxOpenOrders
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		store:      st,
		accounts:   accounts,
		trade:      tradeSvc,
		settings:   settingsSvc,
		notify:     notifier,
		tracer:     opentracing.NoopTracer{},
		cfg:        cfg,
		validate:   validator.New(),
		now:        time.Now,
		base:       base,
		baseCancel: cancel,
		tasks:      make(map[Key]*task),
		locks:      make(map[Key]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// keyLock — цикл и start/stop одного ключа не пересекаются.
func (s *Supervisor) keyLock(k Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// Start сохраняет новое состояние running=true и поднимает задачу, если её нет.
func (s *Supervisor) Start(ctx context.Context, p StartParams) (models.StrategyState, string, error) {
	if err := s.validate.Struct(p); err != nil {
		if strings.Contains(err.Error(), "Strategy") {
			return models.StrategyState{}, "", errkind.New(errkind.Validation, "Unknown strategy.")
		}
		return models.StrategyState{}, "", errkind.Wrap(errkind.Validation, "Invalid start request.", err)
	}
	kind, _ := models.ParseStrategyKind(p.Strategy)
	product, ok := models.LookupProduct(p.Product)
	if !ok || product.Kind != models.ProductPerp {
		return models.StrategyState{}, "", errkind.Newf(errkind.Validation, "Unknown product '%s'.", p.Product)
	}
	network, err := s.accounts.ActiveNetwork(ctx, p.AccountID)
	if err != nil {
		return models.StrategyState{}, "", err
	}
	preset, err := s.settings.Strategy(ctx, p.AccountID, network, kind)
	if err != nil {
		return models.StrategyState{}, "", err
	}

	now := s.now().UTC()
	st := models.DefaultStrategyState(p.AccountID, network)
	preset.Apply(&st)
	st.RunID = uuid.NewString()
	st.Running = true
	st.Strategy = kind
	st.Product = product.Name
	st.Leverage = orFloat(p.Leverage, 3)
	st.SlippagePct = orFloat(p.Slippage, 1)
	st.StartedAt = &now

	k := Key{AccountID: p.AccountID, Network: network}
	l := s.keyLock(k)
	l.Lock()
	err = s.save(ctx, st)
	l.Unlock()
	if err != nil {
		return models.StrategyState{}, "", fmt.Errorf("runner.Start: %w", err)
	}
	s.ensure(k)

	logger.L().Info("strategy started",
		zap.Int64("account_id", k.AccountID),
		zap.String("network", k.Network.String()),
		zap.String("strategy", string(kind)),
		zap.String("product", st.Product),
		zap.String("run_id", st.RunID),
	)
	msg := fmt.Sprintf("%s bot started on %s-PERP (%s) | TP %s%% / SL %s%%",
		strings.ToUpper(string(kind)), st.Product, network, fmtFloat(st.TakeProfitPct), fmtFloat(st.StopLossPct))
	return st, msg, nil
}

// Stop: флаг в хранилище, потом отмена задачи; closePositions дополнительно закрывает позиции.
func (s *Supervisor) Stop(ctx context.Context, accountID int64, closePositions bool) (string, error) {
	network, err := s.accounts.ActiveNetwork(ctx, accountID)
	if err != nil {
		return "", err
	}
	k := Key{AccountID: accountID, Network: network}

	l := s.keyLock(k)
	l.Lock()
	st, err := s.load(ctx, k)
	if err != nil {
		l.Unlock()
		return "", fmt.Errorf("runner.Stop: %w", err)
	}
	if !st.Running {
		l.Unlock()
		return "", errkind.New(errkind.Validation, "No running strategy bot found.")
	}
	st.Running = false
	st.StopReason = models.StopManual
	err = s.save(ctx, st)
	l.Unlock()
	if err != nil {
		return "", fmt.Errorf("runner.Stop: %w", err)
	}

	s.cancel(k)

	if closePositions {
		s.flatten(ctx, k, st)
	}
	s.notify.Send(ctx, accountID, fmt.Sprintf("⏹ %s stopped on %s-PERP (%s) - manual stop.",
		strings.ToUpper(string(st.Strategy)), st.Product, network))
	return "Strategy bot stopped. Open orders cancellation requested.", nil
}

// Status — состояние бота в активной сети аккаунта.
func (s *Supervisor) Status(ctx context.Context, accountID int64) (models.StrategyStatus, error) {
	network, err := s.accounts.ActiveNetwork(ctx, accountID)
	if err != nil {
		return models.StrategyStatus{}, err
	}
	st, err := s.load(ctx, Key{AccountID: accountID, Network: network})
	if err != nil {
		return models.StrategyStatus{}, err
	}
	return st.Status(), nil
}

// Recover поднимает по задаче на каждый сохранённый running=true. Повторный вызов дублей не создаёт.
func (s *Supervisor) Recover(ctx context.Context) (int, error) {
	rows, err := s.store.Scan(ctx, StatePrefix)
	if err != nil {
		return 0, fmt.Errorf("runner.Recover: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	attached := 0
	for _, key := range keys {
		k, ok := ParseStateKey(key)
		if !ok {
			continue
		}
		st, err := s.load(ctx, k)
		if err != nil || !st.Running {
			continue
		}
		if s.ensure(k) {
			attached++
		}
	}
	logger.L().Info("strategy recovery done", zap.Int("persisted", len(rows)), zap.Int("attached", attached))
	return attached, nil
}

// StopAll гасит все задачи без изменения хранилища (остановка процесса).
// Ждёт и задачи, уже снятые из карты через Stop.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	s.baseCancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Running — число живых задач.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Keys — ключи живых задач.
func (s *Supervisor) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.tasks))
	for k := range s.tasks {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ensure — true, если задача была создана сейчас.
func (s *Supervisor) ensure(k Key) bool {
	s.mu.Lock()
	if _, ok := s.tasks[k]; ok || s.base.Err() != nil {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(s.base)
	t := &task{cancel: cancel}
	s.tasks[k] = t
	s.wg.Add(1)
	n := len(s.tasks)
	s.mu.Unlock()

	s.observeRunning(n)
	go s.loop(ctx, k, t)
	return true
}

// cancel снимает задачу из карты сразу: следующий Start по ключу поднимет новую,
// не дожидаясь, пока старая горутина выйдет из сна.
func (s *Supervisor) cancel(k Key) {
	s.mu.Lock()
	t, ok := s.tasks[k]
	if ok {
		delete(s.tasks, k)
	}
	n := len(s.tasks)
	s.mu.Unlock()
	if ok {
		t.cancel()
		s.observeRunning(n)
	}
}

func (s *Supervisor) current(k Key, t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[k] == t
}

func (s *Supervisor) release(k Key, t *task) {
	s.mu.Lock()
	if s.tasks[k] == t {
		delete(s.tasks, k)
	}
	n := len(s.tasks)
	s.mu.Unlock()
	t.cancel()
	s.observeRunning(n)
	s.wg.Done()
}

func (s *Supervisor) observeRunning(n int) {
	if s.observer != nil {
		s.observer.SetRunning(n)
	}
}

// flatten закрывает все позиции; ошибки только в лог.
func (s *Supervisor) flatten(ctx context.Context, k Key, st models.StrategyState) {
	log := logger.L().With(zap.Int64("account_id", k.AccountID), zap.String("network", k.Network.String()))
	ex, err := s.accounts.Exchange(k.AccountID, k.Network)
	if err != nil {
		log.Warn("close all skipped", zap.Error(err))
		return
	}
	res, err := s.trade.CloseAll(ctx, ex, st.SlippagePct)
	if err != nil && !errkind.Has(err, errkind.NoOpenPosition) {
		log.Warn("close all failed", zap.Error(err))
		return
	}
	log.Info("positions closed", zap.Int("closed", len(res.Closed)), zap.Int("failed", len(res.Failed)))
}

func orFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func fmtFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
