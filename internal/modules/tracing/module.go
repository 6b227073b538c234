package tracing

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	"nado_bot/internal/modules/config"
	"nado_bot/pkg/logger"
	"nado_bot/pkg/tracing"
)

// NewTracer — jaeger при tracing.enabled, иначе noop.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	if !cfg.Tracing.Enabled {
		return opentracing.NoopTracer{}, nil
	}
	tracing.SetServiceName(cfg.Tracing.ServiceName)
	tracer, closer, err := tracing.InitTracer(tracing.Config{AgentHostPort: cfg.Tracing.AgentHost})
	if err != nil {
		return nil, err
	}
	logger.Info("jaeger tracer started, agent %s", cfg.Tracing.AgentHost)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Provide(
			NewTracer,
		),
	)
}
