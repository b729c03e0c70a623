package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/state"
)

const balanceRetryDelay = time.Second

// Reconciler периодически подтягивает позиции, PnL и баланс с биржи в общее состояние.
type Reconciler struct {
	cfg      config.Reconcile
	gw       Gateway
	store    *state.Store
	pending  *Reservations
	failures *FailureTracker
	log      *zap.Logger

	firstRun   bool
	retryDelay time.Duration
}

type ReconcilerDeps struct {
	Config   *config.Config
	Gateway  Gateway
	Store    *state.Store
	Pending  *Reservations
	Failures *FailureTracker
	Log      *zap.Logger
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	return &Reconciler{
		cfg:        d.Config.Reconcile,
		gw:         d.Gateway,
		store:      d.Store,
		pending:    d.Pending,
		failures:   d.Failures,
		log:        d.Log.Named("reconcile"),
		firstRun:   true,
		retryDelay: balanceRetryDelay,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("[SYNC] ▶️ started", zap.Duration("interval", r.cfg.Interval))
	defer r.log.Info("[SYNC] stopped")

	for {
		wait := r.cfg.Interval
		if err := r.safeSync(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.store.Error(fmt.Sprintf("Monitor error: %v", err))
			r.failures.Fail(err)
			wait = r.cfg.ErrorBackoff
		} else {
			r.failures.Success()
		}
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

func (r *Reconciler) safeSync(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Sync(ctx)
}

// Sync — один проход: позиции + PnL, затем баланс.
// На первом проходе баланс запрашивается до balance_attempts раз.
func (r *Reconciler) Sync(ctx context.Context) error {
	positions, err := r.gw.FetchPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch positions")
	}

	pnl := 0.0
	open := make(map[string]struct{}, len(positions))
	for sym, p := range positions {
		pnl += p.UnrealizedPnL
		open[sym] = struct{}{}
	}
	r.store.Update(state.KeyPositions, positions)
	r.store.Update(state.KeyPnL, pnl)
	r.pending.Settle(open)
	metrics.OpenPositions.Set(float64(len(positions)))

	attempts := 1
	if r.firstRun {
		attempts = max(r.cfg.BalanceAttempts, 1)
		r.firstRun = false
	}
	if _, ok := r.refreshBalance(ctx, attempts, r.retryDelay); !ok {
		r.log.Warn("[SYNC] balance unavailable")
	}
	return nil
}

// refreshBalance пишет в стейт первый положительный баланс.
func (r *Reconciler) refreshBalance(ctx context.Context, attempts int, delay time.Duration) (float64, bool) {
	for i := 0; i < attempts; i++ {
		if i > 0 && !sleepCtx(ctx, delay) {
			return 0, false
		}
		b, err := r.gw.FetchBalance(ctx)
		if err == nil && b > 0 {
			r.store.Update(state.KeyBalance, b)
			return b, true
		}
		r.log.Debug("[SYNC] balance attempt failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	return 0, false
}

// RunPerformance раз в performance_interval пересчитывает win rate и число ядер.
func (r *Reconciler) RunPerformance(ctx context.Context) {
	for {
		r.UpdatePerformance()
		if !sleepCtx(ctx, r.cfg.PerformanceInterval) {
			return
		}
	}
}

// UpdatePerformance: win rate — доля открытых позиций с положительным PnL,
// считается только после первой сделки.
func (r *Reconciler) UpdatePerformance() {
	if r.store.Int(state.MetricTradesExecuted) > 0 {
		positions := r.store.Positions()
		winRate := 0.0
		if len(positions) > 0 {
			winning := 0
			for _, p := range positions {
				if p.UnrealizedPnL > 0 {
					winning++
				}
			}
			winRate = float64(winning) / float64(len(positions)) * 100
		}
		r.store.Update(state.MetricWinRate, winRate)
	}
	r.store.Update(state.PerfCPUCoresUsed, runtime.NumCPU())
}
