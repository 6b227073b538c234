package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nado_bot/pkg/logger"
)

// Notifier — канал сообщений пользователю аккаунта.
type Notifier interface {
	Notify(ctx context.Context, accountID int64, text string) error
}

// BestEffort глотает ошибки доставки: логируем и едем дальше.
type BestEffort struct {
	next Notifier
}

func NewBestEffort(next Notifier) *BestEffort {
	return &BestEffort{next: next}
}

func (b *BestEffort) Send(ctx context.Context, accountID int64, text string) {
	if b == nil || b.next == nil {
		return
	}
	if err := b.next.Notify(ctx, accountID, text); err != nil {
		logger.L().Warn("notify failed", zap.Int64("account_id", accountID), zap.Error(err))
	}
}

func (b *BestEffort) Sendf(ctx context.Context, accountID int64, format string, args ...any) {
	b.Send(ctx, accountID, fmt.Sprintf(format, args...))
}

// Stdout — заглушка, когда телеграм не настроен.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Notify(_ context.Context, accountID int64, text string) error {
	logger.L().Info("notify", zap.Int64("account_id", accountID), zap.String("text", text))
	return nil
}
