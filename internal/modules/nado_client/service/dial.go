package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"nado_bot/internal/models"
	"nado_bot/pkg/logger"
)

// Endpoints — адреса одной сети.
type Endpoints struct {
	REST    string
	WS      string
	ChainID int64
}

type DialOptions struct {
	Mode    Mode
	Timeout time.Duration
	Retries int
}

// Dial выбирает транспорт один раз: в auto пробуем gateway WS, при неудаче — REST.
// Явный ws без рабочего сокета — ошибка, молча на REST не уходим.
func Dial(ctx context.Context, network models.Network, ep Endpoints, opts DialOptions) (Transport, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	rest := func() Transport {
		logger.L().Info("exchange transport selected",
			zap.String("network", network.String()), zap.String("mode", string(ModeREST)))
		return newRESTTransport(ep.REST, opts.Timeout, opts.Retries)
	}

	switch opts.Mode {
	case ModeREST:
		return rest(), nil
	case ModeWS, ModeAuto, "":
	default:
		return nil, errors.Errorf("%s: unknown exchange mode %q", network, opts.Mode)
	}

	if ep.WS == "" {
		if opts.Mode == ModeWS {
			return nil, errors.Errorf("%s: exchange mode is ws but no ws endpoint configured", network)
		}
		return rest(), nil
	}
	dctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ws, err := dialWS(dctx, ep.WS, opts.Timeout)
	if err != nil {
		if opts.Mode == ModeWS {
			return nil, errors.Wrapf(err, "%s: gateway ws", network)
		}
		logger.L().Warn("gateway ws unavailable, falling back to rest",
			zap.String("network", network.String()), zap.Error(err))
		return rest(), nil
	}
	logger.L().Info("exchange transport selected",
		zap.String("network", network.String()), zap.String("mode", string(ModeWS)))
	return ws, nil
}
