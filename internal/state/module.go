package state

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("state",
		fx.Provide(NewStore),
	)
}
