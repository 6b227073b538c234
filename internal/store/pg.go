package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"nado_bot/pkg/db"
)

const (
	stateTable = "bot_state"

	schema = `CREATE TABLE IF NOT EXISTS bot_state (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres — KV поверх одной таблицы bot_state.
type Postgres struct {
	db db.TxManager
}

func NewPostgres(tx db.TxManager) *Postgres {
	return &Postgres{db: tx}
}

// Migrate создаёт таблицу, если её ещё нет.
func (p *Postgres) Migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Migrate: %w", err)
		}
	}()
	_, err = p.db.Conn().Exec(ctx, schema)
	return err
}

func getQuery(key string) (string, []any, error) {
	return psql.Select("value").From(stateTable).Where(sq.Eq{"key": key}).ToSql()
}

func putQuery(key string, value []byte) (string, []any, error) {
	return psql.Insert(stateTable).
		Columns("key", "value", "updated_at").
		Values(key, string(value), sq.Expr("now()")).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()").
		ToSql()
}

func deleteQuery(key string) (string, []any, error) {
	return psql.Delete(stateTable).Where(sq.Eq{"key": key}).ToSql()
}

func scanQuery(prefix string) (string, []any, error) {
	return psql.Select("key", "value").
		From(stateTable).
		Where(sq.Like{"key": escapeLike(prefix) + "%"}).
		OrderBy("key").
		ToSql()
}

// escapeLike экранирует '_' и '%': в ключах вида strategy_bot:* они встречаются.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (p *Postgres) Get(ctx context.Context, key string) (out []byte, err error) {
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("store.Get %s: %w", key, err)
		}
	}()
	query, args, err := getQuery(key)
	if err != nil {
		return nil, err
	}
	var raw string
	err = p.db.Conn().QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Put %s: %w", key, err)
		}
	}()
	query, args, err := putQuery(key, value)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, query, args...)
		return err
	})
}

func (p *Postgres) Delete(ctx context.Context, key string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Delete %s: %w", key, err)
		}
	}()
	query, args, err := deleteQuery(key)
	if err != nil {
		return err
	}
	_, err = p.db.Conn().Exec(ctx, query, args...)
	return err
}

func (p *Postgres) Scan(ctx context.Context, prefix string) (out map[string][]byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Scan %s: %w", prefix, err)
		}
	}()
	query, args, err := scanQuery(prefix)
	if err != nil {
		return nil, err
	}
	out = make(map[string][]byte)
	err = p.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			out[k] = []byte(v)
		}
		return rows.Err()
	})
	return out, err
}

func (p *Postgres) Close() error { return nil }
