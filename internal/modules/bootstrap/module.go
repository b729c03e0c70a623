package bootstrap

import (
	"context"

	"go.uber.org/fx"

	bootstrap "signal_bot/internal/modules/bootstrap/service"
)

// Module прогревает состояние до старта раннера: модуль должен стоять раньше runner.Module.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			bootstrap.NewWatchlist,
			bootstrap.NewWarmuper,
		),
		fx.Invoke(func(lc fx.Lifecycle, wu *bootstrap.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return wu.Warmup(ctx)
				},
			})
		}),
	)
}
