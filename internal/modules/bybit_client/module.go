package bybit_client

import (
	"go.uber.org/fx"

	"signal_bot/internal/modules/bybit_client/service"
	"signal_bot/internal/runner"
	"signal_bot/internal/state"
)

// Module поднимает REST-клиент Bybit и отдаёт его раннеру как Gateway.
func Module() fx.Option {
	return fx.Module("bybit_client",
		fx.Provide(
			service.NewClient,
			func(c *service.Client, st *state.Store) runner.Gateway {
				return runner.Instrument(c, st)
			},
		),
	)
}
