package nado_client

import (
	"context"

	"go.uber.org/fx"

	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/modules/nado_client/service"
)

// NewGateway поднимает транспорт на каждую сеть из конфига; режим выбирается один раз.
func NewGateway(ctx context.Context, cfg *config.Config) (*service.Gateway, error) {
	opts := service.DialOptions{
		Mode:    service.Mode(cfg.Exchange.Mode),
		Timeout: cfg.Exchange.Timeout,
		Retries: cfg.Exchange.Retries,
	}
	transports := make(map[models.Network]service.Transport, len(cfg.Exchange.Networks))
	for network, ep := range cfg.Exchange.Networks {
		tr, err := service.Dial(ctx, network, service.Endpoints{
			REST:    ep.REST,
			WS:      ep.WS,
			ChainID: ep.ChainID,
		}, opts)
		if err != nil {
			_ = service.NewGateway(transports).Close()
			return nil, err
		}
		transports[network] = tr
	}
	return service.NewGateway(transports), nil
}

func Module() fx.Option {
	return fx.Module("nado_client",
		fx.Provide(
			NewGateway,
			func(gw *service.Gateway) increments.MetadataSource { return gw },
		),
		fx.Invoke(func(lc fx.Lifecycle, gw *service.Gateway) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return gw.Close()
				},
			})
		}),
	)
}
