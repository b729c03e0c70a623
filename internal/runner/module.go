package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health/service"
	"signal_bot/internal/state"
	"signal_bot/internal/strategy"
)

type trackers struct {
	scan, exec, sync *FailureTracker
}

func newTrackers(cfg *config.Config, sd fx.Shutdowner, log *zap.Logger) trackers {
	stop := func() { _ = sd.Shutdown(fx.ExitCode(1)) }
	mk := func(name string) *FailureTracker {
		return NewFailureTracker(name, cfg.Strict.Enabled, cfg.Strict.MaxConsecutiveFailures, stop, log)
	}
	return trackers{scan: mk("scanner"), exec: mk("executor"), sync: mk("reconcile")}
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) *SignalQueue { return NewSignalQueue(cfg.Scanner.QueueCapacity) },
			func(cfg *config.Config) *Reservations { return NewReservations(cfg.Executor.PendingTTL) },
			newTrackers,
			func(cfg *config.Config, gw Gateway, eng strategy.Engine, q *SignalQueue, st *state.Store,
				p *Reservations, j Journal, t trackers, hs *service.State, log *zap.Logger) *Scanner {
				return NewScanner(ScannerDeps{
					Config: cfg, Gateway: gw, Engine: eng, Queue: q, Store: st,
					Pending: p, Journal: j, Failures: t.scan, Beat: hs, Log: log,
				})
			},
			func(cfg *config.Config, gw Gateway, q *SignalQueue, st *state.Store, p *Reservations,
				j Journal, n Notifier, t trackers, log *zap.Logger) *Executor {
				return NewExecutor(ExecutorDeps{
					Config: cfg, Gateway: gw, Queue: q, Store: st, Pending: p,
					Journal: j, Notifier: n, Failures: t.exec, Log: log,
				})
			},
			func(cfg *config.Config, gw Gateway, st *state.Store, p *Reservations, t trackers, log *zap.Logger) *Reconciler {
				return NewReconciler(ReconcilerDeps{
					Config: cfg, Gateway: gw, Store: st, Pending: p, Failures: t.sync, Log: log,
				})
			},
			New,
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					r.Start(ctx)
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					return r.Stop(stopCtx)
				},
			})
		}),
	)
}
