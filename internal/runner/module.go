package runner

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"nado_bot/internal/accounts"
	"nado_bot/internal/modules/config"
	health "nado_bot/internal/modules/health/service"
	"nado_bot/internal/notify"
	"nado_bot/internal/settings"
	"nado_bot/internal/store"
	"nado_bot/internal/trade"
	"nado_bot/pkg/logger"
)

func NewConfig(cfg *config.Config) Config {
	return Config{
		Tick:          cfg.Runtime.Tick,
		MaxOpenOrders: cfg.Runtime.MaxOpenOrders,
	}
}

type supervisorParams struct {
	fx.In

	Store    store.Store
	Accounts *accounts.Directory
	Trade    *trade.Service
	Settings *settings.Service
	Notify   *notify.BestEffort
	Config   Config
	Tracer   opentracing.Tracer
	Health   *health.State
}

func provideSupervisor(p supervisorParams) *Supervisor {
	return NewSupervisor(p.Store, p.Accounts, p.Trade, p.Settings, p.Notify, p.Config,
		WithTracer(p.Tracer),
		WithObserver(p.Health),
	)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewConfig,
			provideSupervisor,
		),
		fx.Invoke(func(lc fx.Lifecycle, sup *Supervisor, state *health.State) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					n, err := sup.Recover(ctx)
					if err != nil {
						return err
					}
					logger.L().Info("strategy loops reattached", zap.Int("count", n))
					state.SetReady(true)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					state.SetReady(false)
					sup.StopAll()
					return nil
				},
			})
		}),
	)
}
