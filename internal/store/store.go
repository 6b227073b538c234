// Package store — долговременное KV: ключ → непрозрачный JSON.
//
// Хранилище — единственный источник правды о том, какие стратегии запущены.
// Транзакций между ключами не требуется.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrNotFound = errors.New("store: key not found")
	// ErrDecode — значение есть, но это не тот JSON.
	ErrDecode = errors.New("store: bad value")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan — все пары с ключом, начинающимся с prefix.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return nil
}

func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw)
}
