package telegram

import (
	"context"

	"go.uber.org/fx"

	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/telegram_bot/service"
	"perp_bot/internal/notify"
	"perp_bot/internal/runner"
	"perp_bot/pkg/logger"
)

// NewTelegram: без токена бота нет, уведомления уходят в лог.
func NewTelegram(cfg *config.Config) (*service.Telegram, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	return service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
}

func NewNotifier(t *service.Telegram) notify.Notifier {
	if t == nil {
		logger.Info("[TG] token not set, notifications go to log")
		return notify.NewStdout()
	}
	return t
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewTelegram,
			NewNotifier,
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, r *runner.Runner) {
				if t == nil {
					return
				}
				t.SetController(r)
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start(context.Background())
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
