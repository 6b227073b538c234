package telegram

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"nado_bot/internal/accounts"
	"nado_bot/internal/modules/config"
	nado "nado_bot/internal/modules/nado_client/service"
	"nado_bot/internal/modules/telegram_bot/service"
	"nado_bot/internal/notify"
	"nado_bot/internal/runner"
	"nado_bot/internal/trade"
	"nado_bot/pkg/logger"
)

// NewBot — клиент Bot API; без токена nil, и телеграм не используется вовсе.
func NewBot(cfg *config.Config) (*tgbot.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		logger.Warn("telegram token is empty, notifications go to log, commands are disabled")
		return nil, nil
	}
	bot, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("telegram authorized as @%s", bot.Self.UserName)
	return bot, nil
}

// NewNotifier — телеграм, если есть бот, иначе всё в лог.
func NewNotifier(cfg *config.Config, bot *tgbot.BotAPI, dir *accounts.Directory) notify.Notifier {
	if bot == nil {
		return notify.NewStdout()
	}
	return notify.NewTelegram(bot, dir.ChatID, cfg.Telegram.AdminChatID)
}

func NewCommands(sup *runner.Supervisor, dir *accounts.Directory, tradeSvc *trade.Service, gw *nado.Gateway) *service.Commands {
	return service.NewCommands(sup, dir, tradeSvc, gw)
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewBot,
			NewNotifier,
			notify.NewBestEffort,
			NewCommands,
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, bot *tgbot.BotAPI, cmds *service.Commands) {
			if bot == nil {
				return
			}
			l := service.NewListener(bot, cmds)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					l.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					l.Stop()
					return nil
				},
			})
		}),
	)
}
