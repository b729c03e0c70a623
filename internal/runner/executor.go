package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_bot/internal/helper"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/state"
)

// Outcome — чем закончилась обработка сигнала.
type Outcome string

const (
	OutcomeExecuted       Outcome = "executed"
	OutcomeMaxPositions   Outcome = "max_positions"
	OutcomeSymbolHeld     Outcome = "symbol_held"
	OutcomeBalanceUnknown Outcome = "balance_unknown"
	OutcomeBadSize        Outcome = "bad_size"
	OutcomeOrderFailed    Outcome = "order_failed"
)

var errBalanceUnknown = errors.New("balance unknown")

// Executor — единственный потребитель очереди сигналов.
type Executor struct {
	trading config.Trading
	cfg     config.Executor

	gw       Gateway
	queue    *SignalQueue
	store    *state.Store
	pending  *Reservations
	journal  Journal
	notifier Notifier
	failures *FailureTracker
	log      *zap.Logger

	newLinkID func() string
	now       func() time.Time
}

type ExecutorDeps struct {
	Config   *config.Config
	Gateway  Gateway
	Queue    *SignalQueue
	Store    *state.Store
	Pending  *Reservations
	Journal  Journal
	Notifier Notifier
	Failures *FailureTracker
	Log      *zap.Logger
}

func NewExecutor(d ExecutorDeps) *Executor {
	return &Executor{
		trading:   d.Config.Trading,
		cfg:       d.Config.Executor,
		gw:        d.Gateway,
		queue:     d.Queue,
		store:     d.Store,
		pending:   d.Pending,
		journal:   d.Journal,
		notifier:  d.Notifier,
		failures:  d.Failures,
		log:       d.Log.Named("executor"),
		newLinkID: uuid.NewString,
		now:       time.Now,
	}
}

func (e *Executor) Run(ctx context.Context) {
	e.log.Info("[EXEC] ▶️ started", zap.Int("maxPositions", e.trading.MaxPositions))
	defer e.log.Info("[EXEC] stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if sig, ok := e.queue.Pop(ctx, e.cfg.PollTimeout); ok {
			e.safeHandle(ctx, sig)
		}
		if !sleepCtx(ctx, e.cfg.Idle) {
			return
		}
	}
}

func (e *Executor) safeHandle(ctx context.Context, sig models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.pending.Release(sig.Symbol)
			e.store.Error(fmt.Sprintf("Executor error: %v", err))
			e.failures.Fail(err)
		}
	}()
	e.Handle(ctx, sig)
}

// Handle проверяет допуск сигнала и исполняет его. Отклонённый сигнал не возвращается в очередь.
func (e *Executor) Handle(ctx context.Context, sig models.Signal) Outcome {
	positions := e.store.Positions()
	if _, held := positions[sig.Symbol]; held || e.pending.Has(sig.Symbol) {
		return e.discard(sig, OutcomeSymbolHeld)
	}
	if len(positions)+e.pending.Len() >= e.trading.MaxPositions {
		return e.discard(sig, OutcomeMaxPositions)
	}
	if !e.pending.Reserve(sig.Symbol) {
		return e.discard(sig, OutcomeSymbolHeld)
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.order")
	defer span.Finish()
	span.SetTag("symbol", sig.Symbol)

	margin, err := e.margin(ctx)
	if err != nil {
		e.pending.Release(sig.Symbol)
		return e.discard(sig, OutcomeBalanceUnknown)
	}
	exposure := margin * float64(e.trading.Leverage)
	raw := exposure / sig.Price

	var lot *models.LotConstraints
	if lc, err := e.gw.FetchLotConstraints(ctx, sig.Symbol); err == nil {
		lot = &lc
	} else {
		e.log.Debug("[EXEC] lot constraints unavailable", zap.String("symbol", sig.Symbol), zap.Error(err))
	}
	qty := Quantity(raw, lot)
	if qty <= 0 {
		e.pending.Release(sig.Symbol)
		return e.discard(sig, OutcomeBadSize)
	}

	e.store.Info(fmt.Sprintf("💰 Margin: $%.2f → $%.2f exposure", margin, exposure))

	if err := e.gw.SetLeverage(ctx, sig.Symbol, e.trading.Leverage); err != nil {
		// плечо могло быть уже выставлено, ордер всё равно пробуем
		e.log.Warn("[EXEC] set leverage", zap.String("symbol", sig.Symbol), zap.Error(err))
	}

	req := models.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Action,
		Qty:        qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		LinkID:     e.newLinkID(),
	}
	e.store.Info(fmt.Sprintf("🎯 ORDER: %s %s %s @ $%.4f | TP: %.0f%%",
		sig.Action.OrderSide(), helper.FormatQty(qty, 8), sig.Symbol, sig.Price, sig.TakeProfitPct))

	orderID, err := e.gw.SubmitOrder(ctx, req)
	exec := Execution{Signal: sig, Qty: qty, Margin: margin, OrderID: orderID, LinkID: req.LinkID, Err: err}
	if jerr := e.journal.RecordExecution(ctx, exec); jerr != nil {
		e.log.Warn("[EXEC] journal execution", zap.String("symbol", sig.Symbol), zap.Error(jerr))
	}

	if err != nil {
		e.pending.Release(sig.Symbol)
		metrics.OrdersTotal.WithLabelValues(string(sig.Action), "failed").Inc()
		e.store.Error(fmt.Sprintf("❌ Failed: %s %v", sig.Symbol, err))
		e.failures.Fail(err)
		return OutcomeOrderFailed
	}

	e.failures.Success()
	metrics.OrdersTotal.WithLabelValues(string(sig.Action), "ok").Inc()
	e.store.Incr(state.MetricTradesExecuted, 1)
	e.store.Info(fmt.Sprintf("✅ EXECUTED: %s", sig.Symbol))
	if len(sig.Factors) > 0 {
		e.store.Info("📊 Factors: " + strings.Join(sig.Factors, " | "))
	}
	if sig.Score > e.trading.HighConfidenceScore {
		e.store.Update(state.PerfBestSignalToday, models.BestSignal{
			Symbol: sig.Symbol,
			Score:  sig.Score,
			Time:   e.now(),
		})
	}
	e.notifier.Sendf("✅ [%s] %s qty=%s score=%.0f SL=%.4f TP=%.4f",
		sig.Symbol, sig.Action, helper.FormatQty(qty, 8), sig.Score, sig.StopLoss, sig.TakeProfit)
	return OutcomeExecuted
}

func (e *Executor) discard(sig models.Signal, why Outcome) Outcome {
	metrics.SignalsDropped.WithLabelValues(string(why)).Inc()
	e.log.Debug("[EXEC] signal discarded", zap.String("symbol", sig.Symbol), zap.String("reason", string(why)))
	return why
}

// margin = balance * position_size_pct. Если баланс неизвестен — политика из конфига.
func (e *Executor) margin(ctx context.Context) (float64, error) {
	balance, ok := e.store.Balance()
	if !ok || balance <= 0 {
		if b, err := e.gw.FetchBalance(ctx); err == nil && b > 0 {
			balance, ok = b, true
			e.store.Update(state.KeyBalance, b)
			e.store.Info(fmt.Sprintf("Re-checked balance: $%.2f", b))
		} else {
			ok = false
		}
	}
	if ok && balance > 0 {
		return balance * e.trading.PositionSizePct, nil
	}

	if e.trading.BalancePolicy == config.BalancePolicyHalt {
		e.store.Warn("⚠️ Balance unknown, signal skipped (balance_policy=halt)")
		e.notifier.Send("⚠️ Balance unknown: trading halted until balance is available")
		return 0, errBalanceUnknown
	}

	metrics.BalanceFallbacks.Inc()
	e.store.Warn(fmt.Sprintf("⚠️ Balance unknown, sizing with fallback margin $%.2f", e.trading.MinNotional))
	e.notifier.Sendf("⚠️ Balance unknown: order sized with fallback margin $%.2f", e.trading.MinNotional)
	return e.trading.MinNotional, nil
}

// Quantity округляет сырое количество под шаг лота и минимальный размер.
// Без метаданных: <1 — 3 знака, иначе 1 знак.
func Quantity(raw float64, lot *models.LotConstraints) float64 {
	if lot != nil && lot.QtyStep > 0 {
		q := helper.RoundToStep(raw, lot.QtyStep)
		if q < lot.MinQty {
			q = lot.MinQty
		}
		return q
	}
	if raw < 1 {
		return helper.RoundPlaces(raw, 3)
	}
	return helper.RoundPlaces(raw, 1)
}
