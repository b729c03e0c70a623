package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/internal/runner"
	"signal_bot/internal/state"
)

const (
	balanceAttempts = 3
	balanceDelay    = 2 * time.Second
	previewSize     = 3
)

// Warmuper готовит общее состояние до старта лупов: баланс, позиции, обзор рынка.
// Ошибки биржи не блокируют старт.
type Warmuper struct {
	gw       runner.Gateway
	wl       *Watchlist
	store    *state.Store
	health   *health.State
	notifier runner.Notifier
	cfg      *config.Config
	log      *zap.Logger

	attempts int
	delay    time.Duration
}

func NewWarmuper(gw runner.Gateway, wl *Watchlist, st *state.Store, hs *health.State,
	n runner.Notifier, cfg *config.Config, log *zap.Logger) *Warmuper {
	return &Warmuper{
		gw:       gw,
		wl:       wl,
		store:    st,
		health:   hs,
		notifier: n,
		cfg:      cfg,
		log:      log.Named("bootstrap"),
		attempts: balanceAttempts,
		delay:    balanceDelay,
	}
}

func (w *Warmuper) Warmup(ctx context.Context) error {
	w.store.Info("🚀 SIGNAL ENGINE STARTING...")
	w.store.SetStatus("Initializing systems...")

	balance, ok := w.loadBalance(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		w.store.Error("❌ Balance unavailable - check API credentials")
		w.store.SetStatus("ERROR: No balance found")
	}

	positions, err := w.gw.FetchPositions(ctx)
	if err != nil {
		w.store.Warn(fmt.Sprintf("⚠️ Could not load positions: %v", err))
	} else {
		pnl := 0.0
		for _, p := range positions {
			pnl += p.UnrealizedPnL
		}
		w.store.Update(state.KeyPositions, positions)
		w.store.Update(state.KeyPnL, pnl)
		w.store.Info(fmt.Sprintf("📊 Found %d open positions", len(positions)))
	}

	if top, total, err := w.wl.Top(ctx, previewSize); err != nil {
		w.log.Warn("[BOOT] market preview failed", zap.Error(err))
	} else {
		names := make([]string, 0, len(top))
		for _, inst := range top {
			names = append(names, inst.Symbol)
		}
		w.store.Info(fmt.Sprintf("📡 %d markets above $%.0f volume, top: %s",
			total, w.cfg.Scanner.MinVolume24h, strings.Join(names, ", ")))
	}

	w.health.SetReady(true)
	w.store.Info("✅ ALL SYSTEMS OPERATIONAL")
	w.store.SetStatus("🔥 ENGINE ACTIVE")

	bal := "unknown"
	if ok {
		bal = fmt.Sprintf("$%.2f", balance)
	}
	w.notifier.Sendf("🚀 Signal bot started: balance %s, positions %d, max %d, leverage %dx",
		bal, len(w.store.Positions()), w.cfg.Trading.MaxPositions, w.cfg.Trading.Leverage)
	return nil
}

func (w *Warmuper) loadBalance(ctx context.Context) (float64, bool) {
	for i := 0; i < w.attempts; i++ {
		w.store.Info(fmt.Sprintf("Attempting to fetch balance... (attempt %d/%d)", i+1, w.attempts))
		b, err := w.gw.FetchBalance(ctx)
		if err == nil && b > 0 {
			w.store.Update(state.KeyBalance, b)
			w.store.Info(fmt.Sprintf("✅ Balance confirmed: $%.2f", b))
			w.store.SetStatus("Balance loaded")
			return b, true
		}
		if err != nil {
			w.store.Warn(fmt.Sprintf("⚠️ Balance check failed: %v", err))
		} else {
			w.store.Warn(fmt.Sprintf("⚠️ Balance check returned: %.2f", b))
		}

		if i+1 < w.attempts {
			t := time.NewTimer(w.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, false
			case <-t.C:
			}
		}
	}
	return 0, false
}
