package engine

import (
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"nado_bot/internal/accounts"
	"nado_bot/internal/increments"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/positions"
	"nado_bot/internal/settings"
	"nado_bot/internal/submitter"
	"nado_bot/internal/trade"
)

func NewSubmitter(reg *increments.Registry, tracer opentracing.Tracer, cfg *config.Config) *submitter.Submitter {
	return submitter.New(reg, tracer, submitter.WithMaxAttempts(cfg.Runtime.MaxAttempts))
}

func NewLimits(cfg *config.Config) trade.Limits {
	l := trade.DefaultLimits()
	if cfg.Trade.MaxLeverage > 0 {
		l.MaxLeverage = cfg.Trade.MaxLeverage
	}
	if cfg.Trade.MinNotional > 0 {
		l.MinNotional = decimal.NewFromFloat(cfg.Trade.MinNotional)
	}
	if cfg.Trade.MarginBuffer > 0 {
		l.MarginBuffer = decimal.NewFromFloat(cfg.Trade.MarginBuffer)
	}
	if cfg.Trade.RateLimit > 0 {
		l.RateLimit = cfg.Trade.RateLimit
	}
	return l
}

// Module — движок ордеров: сабмиттер, агрегатор позиций, торговый сервис, настройки, аккаунты.
func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			NewSubmitter,
			positions.NewAggregator,
			NewLimits,
			trade.NewService,
			settings.NewService,
			accounts.NewDirectory,
		),
	)
}
