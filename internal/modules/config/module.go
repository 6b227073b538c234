package config

import (
	"go.uber.org/fx"

	"nado_bot/pkg/logger"
)

func initLogger(cfg *Config) error {
	logger.SetServiceName(cfg.Tracing.ServiceName)
	return logger.Init(cfg.Log)
}

// ProvideAppConfig регистрируем как fx-провайдер.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
		fx.Invoke(initLogger),
	)
}
