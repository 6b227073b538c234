package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"nado_bot/internal/models"
	"nado_bot/internal/store"
	"nado_bot/pkg/logger"
)

const StatePrefix = "strategy_bot:"

// Key — один бот: аккаунт в сети.
type Key struct {
	AccountID int64
	Network   models.Network
}

func (k Key) String() string { return fmt.Sprintf("%d:%s", k.AccountID, k.Network) }

func StateKey(k Key) string { return StatePrefix + k.String() }

// ParseStateKey — обратное к StateKey; чужие и битые ключи отбрасываются.
func ParseStateKey(raw string) (Key, bool) {
	rest, ok := strings.CutPrefix(raw, StatePrefix)
	if !ok {
		return Key{}, false
	}
	idStr, netStr, ok := strings.Cut(rest, ":")
	if !ok {
		return Key{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Key{}, false
	}
	network, ok := models.ParseNetwork(netStr)
	if !ok {
		return Key{}, false
	}
	return Key{AccountID: id, Network: network}, true
}

// load — состояние из KV; нет ключа или битый JSON — дефолт (не запущен).
func (s *Supervisor) load(ctx context.Context, k Key) (models.StrategyState, error) {
	st := models.DefaultStrategyState(k.AccountID, k.Network)
	err := store.GetJSON(ctx, s.store, StateKey(k), &st)
	switch {
	case err == nil:
		st.AccountID, st.Network = k.AccountID, k.Network
		return st, nil
	case errors.Is(err, store.ErrNotFound):
		return st, nil
	case errors.Is(err, store.ErrDecode):
		logger.L().Warn("invalid strategy state", zap.String("key", StateKey(k)), zap.Error(err))
		return models.DefaultStrategyState(k.AccountID, k.Network), nil
	default:
		return st, err
	}
}

func (s *Supervisor) save(ctx context.Context, st models.StrategyState) error {
	k := Key{AccountID: st.AccountID, Network: st.Network}
	return store.PutJSON(ctx, s.store, StateKey(k), st)
}
