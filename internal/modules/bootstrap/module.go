package bootstrap

import (
	"context"
	"sort"

	"go.uber.org/fx"

	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	bootstrap "nado_bot/internal/modules/bootstrap/service"
	"nado_bot/internal/modules/config"
	"nado_bot/pkg/logger"
)

func NewRegistry(src increments.MetadataSource, cfg *config.Config) *increments.Registry {
	return increments.NewRegistry(src, cfg.Exchange.WarmTimeout)
}

func NewWarmuper(reg *increments.Registry, cfg *config.Config) *bootstrap.Warmuper {
	networks := make([]models.Network, 0, len(cfg.Exchange.Networks))
	for n := range cfg.Exchange.Networks {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })
	return bootstrap.NewWarmuper(reg, networks)
}

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewRegistry,
			NewWarmuper,
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, wu *bootstrap.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					// прогрев не блокирует старт: без шагов ордера уходят как есть и дообучаются по отказам
					go func() {
						n := wu.Warmup(ctx)
						logger.Info("[BOOT] increments warmup done: %d products", n)
					}()
					return nil
				},
			})
		}),
	)
}
