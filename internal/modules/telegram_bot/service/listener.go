package service

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nado_bot/pkg/logger"
)

// Handler — ответ на текст из чата.
type Handler interface {
	Handle(ctx context.Context, chatID int64, text string) string
}

// Listener — long polling апдейтов и ответы на команды.
type Listener struct {
	bot     *tgbot.BotAPI
	handler Handler
}

func NewListener(bot *tgbot.BotAPI, handler Handler) *Listener {
	return &Listener{bot: bot, handler: handler}
}

func (l *Listener) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := l.bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			l.handleUpdate(ctx, update)
		}
	}()
}

// Stop не ждёт текущий long poll: канал апдейтов закроется после его таймаута.
func (l *Listener) Stop() {
	l.bot.StopReceivingUpdates()
}

func (l *Listener) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	reply := l.handler.Handle(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	if _, err := l.bot.Send(tgbot.NewMessage(msg.Chat.ID, reply)); err != nil {
		logger.Error("telegram reply to %d: %v", msg.Chat.ID, err)
	}
}
