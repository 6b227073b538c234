package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatResolver — чат аккаунта, 0 если не задан.
type ChatResolver func(accountID int64) int64

// Telegram — пассивный нотифайер: только отправка сообщений.
type Telegram struct {
	bot       *tgbot.BotAPI
	chats     ChatResolver
	adminChat int64
}

func NewTelegram(bot *tgbot.BotAPI, chats ChatResolver, adminChat int64) *Telegram {
	return &Telegram{bot: bot, chats: chats, adminChat: adminChat}
}

func (t *Telegram) chatFor(accountID int64) int64 {
	if t.chats != nil {
		if id := t.chats(accountID); id != 0 {
			return id
		}
	}
	return t.adminChat
}

func (t *Telegram) Notify(ctx context.Context, accountID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID := t.chatFor(accountID)
	if chatID == 0 {
		return fmt.Errorf("notify: no chat for account %d", accountID)
	}
	if _, err := t.bot.Send(tgbot.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("notify: send to %d: %w", chatID, err)
	}
	return nil
}
