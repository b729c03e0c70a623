package postgres

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/modules/config"
	"signal_bot/pkg/db"
)

// Module: пул pgx, если задан db_dsn. Без DSN отдаёт nil, журнал становится noop.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					log.Info("[PG] db_dsn not set, persistence disabled")
					return nil, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create poolMaster")
				}

				if err := poolMaster.Ping(ctx); err != nil {
					poolMaster.Close()
					return nil, errors.Wrap(err, "ping postgres")
				}

				mgr := db.NewPgTxManager(poolMaster)
				lc.Append(fx.StopHook(mgr.Close))
				return mgr, nil
			},
		),
	)
}
