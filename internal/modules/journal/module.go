package journal

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/modules/journal/service"
	"signal_bot/internal/runner"
	"signal_bot/pkg/db"
)

// Module: журнал в postgres, если пул поднят, иначе noop.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(ctx context.Context, m *db.PgTxManager, log *zap.Logger) (runner.Journal, error) {
				if m == nil {
					return service.Noop{}, nil
				}
				if err := service.Migrate(ctx, m); err != nil {
					return nil, err
				}
				log.Info("[JOURNAL] postgres journal ready")
				return service.NewPg(m.Conn()), nil
			},
		),
	)
}
