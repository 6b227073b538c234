// Package settings — пользовательские настройки стратегий и глобальная пауза торговли.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"nado_bot/internal/models"
	"nado_bot/internal/store"
)

const (
	PauseKey       = "trading_paused"
	settingsPrefix = "user_settings:"
)

func Key(accountID int64, network models.Network) string {
	return fmt.Sprintf("%s%d:%s", settingsPrefix, accountID, network)
}

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Paused — глобальный флаг паузы; отсутствие ключа — торговля разрешена.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	raw, err := s.store.Get(ctx, PauseKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, fmt.Errorf("settings: bad %s value %q", PauseKey, raw)
	}
	return v, nil
}

func (s *Service) SetPaused(ctx context.Context, paused bool) error {
	return s.store.Put(ctx, PauseKey, []byte(strconv.FormatBool(paused)))
}

// Get — настройки аккаунта на сети; пресеты, которых нет в сохранённых, берутся по умолчанию.
func (s *Service) Get(ctx context.Context, accountID int64, network models.Network) (models.UserSettings, error) {
	out := models.DefaultUserSettings()
	var saved models.UserSettings
	err := store.GetJSON(ctx, s.store, Key(accountID, network), &saved)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if saved.DefaultLeverage > 0 {
		out.DefaultLeverage = saved.DefaultLeverage
	}
	if saved.Slippage > 0 {
		out.Slippage = saved.Slippage
	}
	if saved.RiskProfile != "" {
		out.RiskProfile = saved.RiskProfile
	}
	for kind, p := range saved.Strategies {
		base := out.Strategies[kind]
		name, descr := base.Name, base.Description
		base = p
		base.Name, base.Description = name, descr
		out.Strategies[kind] = base
	}
	return out, nil
}

func (s *Service) Put(ctx context.Context, accountID int64, network models.Network, v models.UserSettings) error {
	return store.PutJSON(ctx, s.store, Key(accountID, network), v)
}

// Update — чтение, изменение и запись одним вызовом.
func (s *Service) Update(ctx context.Context, accountID int64, network models.Network, fn func(*models.UserSettings)) (models.UserSettings, error) {
	v, err := s.Get(ctx, accountID, network)
	if err != nil {
		return v, err
	}
	fn(&v)
	return v, s.Put(ctx, accountID, network, v)
}

// Strategy — параметры стратегии с учётом пользовательских правок.
func (s *Service) Strategy(ctx context.Context, accountID int64, network models.Network, kind models.StrategyKind) (models.StrategyPreset, error) {
	v, err := s.Get(ctx, accountID, network)
	if err != nil {
		return models.Presets[kind], err
	}
	if p, ok := v.Strategies[kind]; ok {
		return p, nil
	}
	return models.Presets[kind], nil
}
