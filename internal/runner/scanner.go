package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_bot/internal/cache"
	"signal_bot/internal/helper"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/state"
	"signal_bot/internal/strategy"
)

const (
	tickersKey   = "tickers"
	speedSamples = 10
)

var timeframes = [...]models.Timeframe{models.TF1m, models.TF5m}

// Heartbeat — отметка о живом цикле (readiness-пробы).
type Heartbeat interface {
	TouchTick(t time.Time)
}

type candlePair struct {
	m1 models.CandleSeries
	m5 models.CandleSeries
}

type fetchResult struct {
	symbol string
	tf     models.Timeframe
	series models.CandleSeries
	err    error
}

type scoreResult struct {
	symbol string
	res    strategy.ScoreResult
	err    error
}

// CycleResult — что произошло за один проход сканера.
type CycleResult struct {
	Universe int
	Scanned  int
	Analyzed int
	Signals  int
	Skipped  bool
	Duration time.Duration
}

// Scanner — цикл FETCH-UNIVERSE -> FILTER -> FETCH-CANDLES -> SCORE -> ENQUEUE.
type Scanner struct {
	cfg          config.Scanner
	maxPositions int
	suffix       string

	gw       Gateway
	engine   strategy.Engine
	queue    *SignalQueue
	store    *state.Store
	pending  *Reservations
	journal  Journal
	failures *FailureTracker
	beat     Heartbeat
	log      *zap.Logger

	tickers *cache.Cache[string, []models.Instrument]
	candles *cache.Cache[string, models.CandleSeries]

	fetchPool *Pool
	scorePool *Pool

	mu        sync.Mutex
	durations []time.Duration
}

type ScannerDeps struct {
	Config   *config.Config
	Gateway  Gateway
	Engine   strategy.Engine
	Queue    *SignalQueue
	Store    *state.Store
	Pending  *Reservations
	Journal  Journal
	Failures *FailureTracker
	Beat     Heartbeat
	Log      *zap.Logger
}

func NewScanner(d ScannerDeps) *Scanner {
	cfg := d.Config.Scanner
	log := d.Log.Named("scanner")
	return &Scanner{
		cfg:          cfg,
		maxPositions: d.Config.Trading.MaxPositions,
		suffix:       d.Config.Exchange.SymbolSuffix,
		gw:           d.Gateway,
		engine:       d.Engine,
		queue:        d.Queue,
		store:        d.Store,
		pending:      d.Pending,
		journal:      d.Journal,
		failures:     d.Failures,
		beat:         d.Beat,
		log:          log,
		tickers:      cache.New[string, []models.Instrument]("tickers", cfg.CacheTTL),
		candles:      cache.New[string, models.CandleSeries]("candles", cfg.CacheTTL),
		fetchPool:    NewPool("fetch", cfg.FetchWorkers, log),
		scorePool:    NewPool("score", cfg.ScoreWorkers, log),
	}
}

// Run крутит циклы до отмены ctx. Ошибки цикла не останавливают луп.
func (s *Scanner) Run(ctx context.Context) {
	s.log.Info("[SCAN] ▶️ started",
		zap.Int("batch", s.cfg.BatchSize), zap.Int("top", s.cfg.TopMarkets))
	defer func() {
		s.fetchPool.Close()
		s.scorePool.Close()
		s.log.Info("[SCAN] stopped")
	}()

	for {
		wait := s.safeCycle(ctx)
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

func (s *Scanner) safeCycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.store.Error(fmt.Sprintf("Scanner error: %v", err))
			s.failures.Fail(err)
			wait = s.cfg.ErrorBackoff
		}
	}()

	res, err := s.Cycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		s.store.Error(fmt.Sprintf("Scanner error: %v", err))
		s.failures.Fail(err)
		return s.cfg.ErrorBackoff
	}
	if res.Skipped {
		return s.cfg.FullBackoff
	}
	return s.cfg.UpdateInterval
}

// Cycle — один полный проход.
func (s *Scanner) Cycle(ctx context.Context) (CycleResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scanner.cycle")
	defer span.Finish()

	start := time.Now()
	var res CycleResult

	universe, err := s.universe(ctx)
	if err != nil {
		// нет тикеров — ждём следующего цикла
		s.log.Warn("[SCAN] tickers unavailable", zap.Error(err))
		s.failures.Fail(err)
		return res, nil
	}
	s.failures.Success()
	res.Universe = len(universe)
	span.SetTag("universe", len(universe))
	if len(universe) == 0 {
		return res, nil
	}

	positions := s.store.Positions()
	reserved := s.pending.Symbols()
	if len(positions)+len(reserved) >= s.maxPositions {
		s.store.SetStatus(fmt.Sprintf("Max positions (%d) reached", s.maxPositions))
		res.Skipped = true
		return res, nil
	}

	symbols := make([]string, 0, len(universe))
	for _, inst := range universe {
		if _, held := positions[inst.Symbol]; held {
			continue
		}
		if _, ok := reserved[inst.Symbol]; ok {
			continue
		}
		symbols = append(symbols, inst.Symbol)
	}
	res.Scanned = len(symbols)
	s.store.SetStatus(fmt.Sprintf("⚡ Scanning %d markets...", len(symbols)))

	for _, batch := range helper.Chunk(symbols, s.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		analyzed, signals := s.processBatch(ctx, batch)
		res.Analyzed += analyzed
		res.Signals += signals
	}

	res.Duration = time.Since(start)
	s.recordCycle(res)
	return res, nil
}

// universe: perpetual-инструменты с оборотом >= min, по убыванию оборота, top-N.
func (s *Scanner) universe(ctx context.Context) ([]models.Instrument, error) {
	if cached, ok := s.tickers.Get(tickersKey); ok {
		return cached, nil
	}

	all, err := s.gw.FetchTickers(ctx, s.cfg.MinVolume24h)
	if err != nil {
		return nil, err
	}

	out := make([]models.Instrument, 0, len(all))
	for _, inst := range all {
		if s.suffix != "" && !strings.HasSuffix(inst.Symbol, s.suffix) {
			continue
		}
		if inst.Volume24h < s.cfg.MinVolume24h {
			continue
		}
		out = append(out, inst)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume24h > out[j].Volume24h })
	if len(out) > s.cfg.TopMarkets {
		out = out[:s.cfg.TopMarkets]
	}

	s.tickers.Set(tickersKey, out)
	return out, nil
}

func (s *Scanner) processBatch(ctx context.Context, batch []string) (analyzed, signals int) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scanner.batch")
	defer span.Finish()
	span.SetTag("size", len(batch))

	data := s.fetchBatch(ctx, batch)
	found := s.scoreBatch(ctx, batch, data)

	sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	for _, sig := range found {
		if err := s.queue.Push(sig); err != nil {
			metrics.SignalsDropped.WithLabelValues(pushDropReason(err)).Inc()
			s.log.Warn("[SCAN] signal not queued", zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		signals++
		metrics.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
		s.store.Incr(state.MetricSignalsFound, 1)
		s.store.Update(state.PerfLastSignal, sig)
		s.store.Info(fmt.Sprintf("🎯 SIGNAL: %s %s Score: %.0f TP: %.0f%%",
			sig.Action, sig.Symbol, sig.Score, sig.TakeProfitPct))
		if err := s.journal.RecordSignal(ctx, sig); err != nil {
			s.log.Warn("[SCAN] journal signal", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
	}
	return len(data), signals
}

func pushDropReason(err error) string {
	if errors.Is(err, ErrQueueClosed) {
		return "queue_closed"
	}
	return "queue_full"
}

func candleKey(symbol string, tf models.Timeframe) string {
	return "kline_" + symbol + "_" + string(tf)
}

// fetchBatch грузит 1m и 5m свечи. Весь батч ограничен fetch_timeout:
// что не успело — пропускается в этом цикле.
func (s *Scanner) fetchBatch(ctx context.Context, batch []string) map[string]*candlePair {
	out := make(map[string]*candlePair, len(batch))
	put := func(symbol string, tf models.Timeframe, cs models.CandleSeries) {
		p := out[symbol]
		if p == nil {
			p = &candlePair{}
			out[symbol] = p
		}
		if tf == models.TF1m {
			p.m1 = cs
		} else {
			p.m5 = cs
		}
	}

	bctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	results := make(chan fetchResult, len(batch)*len(timeframes))
	inflight := 0

submit:
	for _, symbol := range batch {
		for _, tf := range timeframes {
			if cs, ok := s.candles.Get(candleKey(symbol, tf)); ok {
				put(symbol, tf, cs)
				continue
			}
			symbol, tf := symbol, tf
			err := s.fetchPool.Submit(bctx, func() {
				if bctx.Err() != nil {
					results <- fetchResult{symbol: symbol, tf: tf, err: bctx.Err()}
					return
				}
				cs, err := s.gw.FetchCandles(bctx, symbol, tf, s.cfg.CandleLimit)
				results <- fetchResult{symbol: symbol, tf: tf, series: cs, err: err}
			})
			if err != nil {
				break submit
			}
			inflight++
		}
	}

collect:
	for inflight > 0 {
		select {
		case r := <-results:
			inflight--
			if r.err != nil || len(r.series) == 0 {
				continue
			}
			s.candles.Set(candleKey(r.symbol, r.tf), r.series)
			put(r.symbol, r.tf, r.series)
		case <-bctx.Done():
			s.log.Debug("[SCAN] candle fetch timeout", zap.Int("abandoned", inflight))
			break collect
		}
	}

	// без минутных свечей анализировать нечего
	for symbol, p := range out {
		if len(p.m1) == 0 {
			delete(out, symbol)
		}
	}
	return out
}

// scoreBatch считает скоры параллельно, ограничено score_timeout.
// Ошибки и паники отдельных символов не ломают батч.
func (s *Scanner) scoreBatch(ctx context.Context, batch []string, data map[string]*candlePair) []models.Signal {
	bctx, cancel := context.WithTimeout(ctx, s.cfg.ScoreTimeout)
	defer cancel()

	results := make(chan scoreResult, len(data))
	inflight := 0

	for _, symbol := range batch {
		p, ok := data[symbol]
		if !ok {
			continue
		}
		symbol, p := symbol, p
		err := s.scorePool.Submit(bctx, func() {
			r := scoreResult{symbol: symbol}
			defer func() {
				if rec := recover(); rec != nil {
					r.err = fmt.Errorf("score panic: %v", rec)
				}
				results <- r
			}()
			r.res, r.err = s.engine.Analyze(p.m1, p.m5)
		})
		if err != nil {
			break
		}
		inflight++
	}

	var out []models.Signal
	for inflight > 0 {
		select {
		case r := <-results:
			inflight--
			below := errors.Is(r.err, strategy.ErrBelowThreshold)
			if r.err != nil && !below {
				s.log.Debug("[SCAN] no score", zap.String("symbol", r.symbol), zap.Error(r.err))
				continue
			}
			if r.res.Components.Get(strategy.DetectorMomentum) > 50 {
				s.store.Incr(state.MetricMomentumDetected, 1)
			}
			if r.res.Components.Get(strategy.DetectorPattern) > 50 {
				s.store.Incr(state.MetricPatternsFound, 1)
			}
			if !below {
				out = append(out, s.engine.Signal(r.symbol, r.res))
			}
		case <-bctx.Done():
			s.log.Debug("[SCAN] scoring timeout", zap.Int("abandoned", inflight))
			return out
		}
	}
	return out
}

func (s *Scanner) recordCycle(res CycleResult) {
	s.mu.Lock()
	s.durations = append(s.durations, res.Duration)
	if len(s.durations) > speedSamples {
		s.durations = s.durations[len(s.durations)-speedSamples:]
	}
	var total time.Duration
	for _, d := range s.durations {
		total += d
	}
	avg := total / time.Duration(len(s.durations))
	s.mu.Unlock()

	speed := 0.0
	if avg > 0 {
		speed = float64(res.Scanned) / avg.Seconds()
	}
	s.store.Update(state.MetricAnalysisSpeed, speed)
	s.store.Incr(state.MetricSymbolsAnalyzed, int64(res.Scanned))

	hTickers, _ := s.tickers.Stats()
	hCandles, _ := s.candles.Stats()
	s.store.Update(state.MetricCacheHits, int64(hTickers+hCandles))

	s.tickers.Sweep()
	s.candles.Sweep()

	metrics.ScanDuration.Observe(res.Duration.Seconds())
	if s.beat != nil {
		s.beat.TouchTick(time.Now())
	}
}
