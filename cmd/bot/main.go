package main

import (
	"context"

	"go.uber.org/fx"

	"nado_bot/internal/modules/bootstrap"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/modules/engine"
	"nado_bot/internal/modules/health"
	"nado_bot/internal/modules/nado_client"
	"nado_bot/internal/modules/storage"
	telegram "nado_bot/internal/modules/telegram_bot"
	"nado_bot/internal/modules/tracing"
	"nado_bot/internal/runner"
	"nado_bot/pkg/logger"
)

func main() {
	app := fx.New(
		fx.Provide(
			func(lc fx.Lifecycle) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						cancel()
						return nil
					},
				})
				return ctx
			},
		),
		config.Module(),
		tracing.Module(),
		storage.Module(),
		nado_client.Module(),
		bootstrap.Module(),
		engine.Module(),
		telegram.Module(),
		health.Module(),
		runner.Module(),
	)
	app.Run()
	logger.Sync()
}
