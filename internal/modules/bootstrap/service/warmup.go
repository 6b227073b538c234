package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/pkg/logger"
)

// Warmuper прогревает шаги цены/объёма по всем сетям до первых ордеров.
type Warmuper struct {
	reg      *increments.Registry
	networks []models.Network
}

func NewWarmuper(reg *increments.Registry, networks []models.Network) *Warmuper {
	return &Warmuper{reg: reg, networks: networks}
}

// Warmup — сети параллельно; ошибка одной сети не мешает остальным.
// Возвращает число продуктов с известными шагами.
func (w *Warmuper) Warmup(ctx context.Context) int {
	var wg sync.WaitGroup
	for _, n := range w.networks {
		wg.Add(1)
		go func(n models.Network) {
			defer wg.Done()
			if err := w.reg.WarmNetwork(ctx, n); err != nil {
				logger.L().Warn("increments warmup failed", zap.String("network", n.String()), zap.Error(err))
			}
		}(n)
	}
	wg.Wait()

	known := 0
	for _, inc := range w.reg.Snapshot() {
		if inc.Complete() {
			known++
		}
	}
	return known
}
