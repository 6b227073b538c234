package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"nado_bot/internal/modules/config"
	"nado_bot/internal/store"
	"nado_bot/pkg/db"
	"nado_bot/pkg/logger"
)

// Open — KV по драйверу из конфига: postgres (основной), badger (встроенный), memory.
// closeFn закрывает и хранилище, и пул.
func Open(ctx context.Context, cfg *config.Config) (s store.Store, closeFn func() error, err error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.Storage.DSN, ConnectTimeout: 5 * time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pool: %w", err)
		}
		pg := store.NewPostgres(db.NewPgTxManager(pool))
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		s, closeFn = pg, func() error {
			pool.Close()
			return nil
		}
	case "badger":
		b, err := store.OpenBadger(cfg.Storage.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = b, b.Close
	case "memory":
		m := store.NewMemory()
		s, closeFn = m, m.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	logger.Info("storage driver: %s", cfg.Storage.Driver)
	return s, closeFn, nil
}

func NewStore(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (store.Store, error) {
	s, closeFn, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeFn()
		},
	})
	return s, nil
}

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			NewStore,
		),
	)
}
