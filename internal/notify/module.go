package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/runner"
	"signal_bot/internal/state"
)

// Module: Telegram, если задан токен, иначе лог.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, st *state.Store, log *zap.Logger) runner.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					return NewLog(log)
				}
				tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, st, log)
				if err != nil {
					log.Warn("[TG] bot init failed, falling back to log notifier", zap.Error(err))
					return NewLog(log)
				}

				var cancel context.CancelFunc
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						var ctx context.Context
						ctx, cancel = context.WithCancel(context.Background())
						tg.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						tg.Stop()
						return nil
					},
				})
				return tg
			},
		),
	)
}
