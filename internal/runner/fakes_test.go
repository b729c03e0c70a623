package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/state"
	"signal_bot/internal/strategy"
)

var errUpstream = errors.New("upstream unavailable")

type fakeGateway struct {
	mu sync.Mutex

	tickers    []models.Instrument
	tickersErr error
	candles    map[string]models.CandleSeries // symbol -> 1m серия (5m та же)
	slow       map[string]bool                // ждут отмены ctx
	positions  map[string]models.Position
	posErr     error
	balances   []float64 // последовательные ответы, последний повторяется
	balanceErr error
	lots       map[string]models.LotConstraints
	orderErr   error

	candleCalls  int
	balanceCalls int
	leverage     []string
	orders       []models.OrderRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		candles:   map[string]models.CandleSeries{},
		slow:      map[string]bool{},
		positions: map[string]models.Position{},
		lots:      map[string]models.LotConstraints{},
	}
}

func (f *fakeGateway) FetchTickers(_ context.Context, _ float64) ([]models.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	return append([]models.Instrument(nil), f.tickers...), nil
}

func (f *fakeGateway) FetchCandles(ctx context.Context, symbol string, _ models.Timeframe, _ int) (models.CandleSeries, error) {
	f.mu.Lock()
	f.candleCalls++
	slow := f.slow[symbol]
	cs, ok := f.candles[symbol]
	f.mu.Unlock()

	if slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errUpstream
	}
	return cs, nil
}

func (f *fakeGateway) FetchPositions(_ context.Context) (map[string]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posErr != nil {
		return nil, f.posErr
	}
	out := make(map[string]models.Position, len(f.positions))
	for k, v := range f.positions {
		out[k] = v
	}
	return out, nil
}

func (f *fakeGateway) FetchBalance(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	if len(f.balances) == 0 {
		return 0, errUpstream
	}
	b := f.balances[0]
	if len(f.balances) > 1 {
		f.balances = f.balances[1:]
	}
	return b, nil
}

func (f *fakeGateway) FetchLotConstraints(_ context.Context, symbol string) (models.LotConstraints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lc, ok := f.lots[symbol]
	if !ok {
		return models.LotConstraints{}, errUpstream
	}
	return lc, nil
}

func (f *fakeGateway) SetLeverage(_ context.Context, symbol string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage = append(f.leverage, symbol)
	return nil
}

func (f *fakeGateway) SubmitOrder(_ context.Context, req models.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return "", f.orderErr
	}
	f.orders = append(f.orders, req)
	return fmt.Sprintf("order-%d", len(f.orders)), nil
}

func (f *fakeGateway) Orders() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.orders...)
}

func (f *fakeGateway) CandleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candleCalls
}

// stubEngine: скор берётся из цены закрытия последней свечи.
type stubEngine struct {
	minScore float64
}

func (e stubEngine) Analyze(m1, _ models.CandleSeries) (strategy.ScoreResult, error) {
	if len(m1) < 10 {
		return strategy.ScoreResult{}, strategy.ErrInsufficientData
	}
	if m1[0].Close < 0 {
		panic("malformed candle")
	}
	r := strategy.ScoreResult{Score: m1[0].Close, Action: models.SideBuy, Price: 10}
	if r.Score < e.minScore {
		return r, strategy.ErrBelowThreshold
	}
	return r, nil
}

func (e stubEngine) Signal(symbol string, r strategy.ScoreResult) models.Signal {
	return models.Signal{
		Symbol: symbol, Action: r.Action, Price: r.Price, Score: r.Score,
		StopLoss: r.Price * 0.9, TakeProfit: r.Price * 3, TakeProfitPct: 200,
	}
}

func scoredSeries(score float64) models.CandleSeries {
	out := make(models.CandleSeries, 20)
	for i := range out {
		out[i] = models.Candle{Open: score, High: score, Low: score, Close: score, Volume: 1}
	}
	return out
}

type nopJournal struct {
	mu         sync.Mutex
	signals    []models.Signal
	executions []Execution
}

func (j *nopJournal) RecordSignal(_ context.Context, sig models.Signal) error {
	j.mu.Lock()
	j.signals = append(j.signals, sig)
	j.mu.Unlock()
	return nil
}

func (j *nopJournal) RecordExecution(_ context.Context, e Execution) error {
	j.mu.Lock()
	j.executions = append(j.executions, e)
	j.mu.Unlock()
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) Sendf(format string, args ...any) { n.Send(fmt.Sprintf(format, args...)) }

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Scanner.UpdateInterval = 10 * time.Millisecond
	cfg.Scanner.ErrorBackoff = 10 * time.Millisecond
	cfg.Scanner.FullBackoff = 10 * time.Millisecond
	cfg.Scanner.FetchTimeout = 500 * time.Millisecond
	cfg.Scanner.ScoreTimeout = 500 * time.Millisecond
	cfg.Executor.PollTimeout = 20 * time.Millisecond
	cfg.Executor.Idle = time.Millisecond
	cfg.Reconcile.Interval = 10 * time.Millisecond
	cfg.Reconcile.ErrorBackoff = 10 * time.Millisecond
	return cfg
}

type harness struct {
	cfg      *config.Config
	gw       *fakeGateway
	store    *state.Store
	queue    *SignalQueue
	pending  *Reservations
	journal  *nopJournal
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t)
	return &harness{
		cfg:      cfg,
		gw:       newFakeGateway(),
		store:    state.NewStore(zap.NewNop()),
		queue:    NewSignalQueue(cfg.Scanner.QueueCapacity),
		pending:  NewReservations(cfg.Executor.PendingTTL),
		journal:  &nopJournal{},
		notifier: &recordingNotifier{},
	}
}

func (h *harness) scanner(t *testing.T, engine strategy.Engine) *Scanner {
	t.Helper()
	s := NewScanner(ScannerDeps{
		Config: h.cfg, Gateway: h.gw, Engine: engine, Queue: h.queue, Store: h.store,
		Pending: h.pending, Journal: h.journal, Log: zap.NewNop(),
	})
	t.Cleanup(func() {
		s.fetchPool.Close()
		s.scorePool.Close()
	})
	return s
}

func (h *harness) executor() *Executor {
	e := NewExecutor(ExecutorDeps{
		Config: h.cfg, Gateway: h.gw, Queue: h.queue, Store: h.store, Pending: h.pending,
		Journal: h.journal, Notifier: h.notifier, Log: zap.NewNop(),
	})
	e.newLinkID = func() string { return "link-" + fmt.Sprint(time.Now().UnixNano()) }
	return e
}

func (h *harness) reconciler() *Reconciler {
	r := NewReconciler(ReconcilerDeps{
		Config: h.cfg, Gateway: h.gw, Store: h.store, Pending: h.pending, Log: zap.NewNop(),
	})
	r.retryDelay = time.Millisecond
	return r
}

func zapNop() *zap.Logger { return zap.NewNop() }

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)
