package state

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"signal_bot/internal/models"
)

const (
	defaultLogCapacity = 100
	logStreamBuffer    = 256
)

// Пути, которые пишут раннеры.
const (
	KeyStatus      = "status"
	KeyBalance     = "balance"
	KeyPositions   = "positions"
	KeyPnL         = "pnl"
	KeyMetrics     = "metrics"
	KeyPerformance = "performance"

	MetricSignalsFound     = "metrics.signals_found"
	MetricTradesExecuted   = "metrics.trades_executed"
	MetricAnalysisSpeed    = "metrics.analysis_speed"
	MetricSymbolsAnalyzed  = "metrics.symbols_analyzed"
	MetricCacheHits        = "metrics.cache_hits"
	MetricMomentumDetected = "metrics.momentum_detected"
	MetricPatternsFound    = "metrics.patterns_found"
	MetricAPICalls         = "metrics.api_calls"
	MetricWinRate          = "metrics.win_rate"

	PerfStartTime       = "performance.start_time"
	PerfLastSignal      = "performance.last_signal"
	PerfBestSignalToday = "performance.best_signal_today"
	PerfCPUCoresUsed    = "performance.cpu_cores_used"
)

type LogEntry struct {
	Time    time.Time     `json:"time"`
	Level   zapcore.Level `json:"level"`
	Message string        `json:"message"`
}

// Text — строка в формате "[15:04:05] сообщение".
func (e LogEntry) Text() string {
	return "[" + e.Time.Format("15:04:05") + "] " + e.Message
}

// Store — единственное разделяемое состояние процесса.
// Все чтения и записи идут под одним мьютексом, наружу отдаются только копии.
type Store struct {
	log *zap.Logger
	now func() time.Time

	mu   sync.Mutex
	root map[string]any
	ring []LogEntry
	head int // индекс следующей записи
	size int

	changes chan struct{}
	logs    chan LogEntry
}

func NewStore(log *zap.Logger) *Store {
	return newStore(log, defaultLogCapacity, time.Now)
}

func newStore(log *zap.Logger, capacity int, now func() time.Time) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	s := &Store{
		log:     log,
		now:     now,
		ring:    make([]LogEntry, capacity),
		changes: make(chan struct{}, 1),
		logs:    make(chan LogEntry, logStreamBuffer),
	}
	s.root = map[string]any{
		KeyStatus:    "Initializing",
		KeyPositions: map[string]models.Position{},
		KeyPnL:       0.0,
		KeyMetrics: map[string]any{
			"signals_found":     int64(0),
			"trades_executed":   int64(0),
			"analysis_speed":    0.0,
			"symbols_analyzed":  int64(0),
			"cache_hits":        int64(0),
			"momentum_detected": int64(0),
			"patterns_found":    int64(0),
			"api_calls":         int64(0),
			"win_rate":          0.0,
		},
		KeyPerformance: map[string]any{
			"start_time":     now(),
			"cpu_cores_used": 0,
		},
	}
	return s
}

// Update пишет значение по пути "a.b.c", создавая промежуточные узлы
// и не трогая соседние поля.
func (s *Store) Update(path string, value any) {
	s.mu.Lock()
	ok := setPath(s.root, splitPath(path), cloneValue(value))
	s.mu.Unlock()
	if !ok {
		s.log.Warn("[STATE] update rejected: path does not accept this value",
			zap.String("path", path), zap.String("type", fmt.Sprintf("%T", value)))
		return
	}
	s.notify()
}

// Get возвращает копию значения по пути или def, если его нет.
func (s *Store) Get(path string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := getPath(s.root, splitPath(path))
	if !ok {
		return def
	}
	return cloneValue(v)
}

// Incr прибавляет delta к числовому значению. Отсутствующее значение считается нулём.
func (s *Store) Incr(path string, delta int64) int64 {
	s.mu.Lock()
	parts := splitPath(path)
	cur, _ := getPath(s.root, parts)
	next := toInt64(cur) + delta
	setPath(s.root, parts, next)
	s.mu.Unlock()
	s.notify()
	return next
}

// Snapshot — глубокая независимая копия всего состояния вместе с логом.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := cloneMap(s.root)
	out["logs"] = s.logsLocked()
	return out
}

// Logs — записи лога, новые первыми.
func (s *Store) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logsLocked()
}

func (s *Store) logsLocked() []LogEntry {
	out := make([]LogEntry, 0, s.size)
	for i := 1; i <= s.size; i++ {
		idx := (s.head - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// AppendLog кладёт запись в кольцевой буфер (старейшая молча вытесняется)
// и дублирует её в zap.
func (s *Store) AppendLog(message string, level zapcore.Level) {
	e := LogEntry{Time: s.now(), Level: level, Message: message}

	s.mu.Lock()
	s.ring[s.head] = e
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	s.mu.Unlock()

	if ce := s.log.Check(level, message); ce != nil {
		ce.Write()
	}

	select {
	case s.logs <- e:
	default:
	}
	s.notify()
}

func (s *Store) Info(msg string)  { s.AppendLog(msg, zapcore.InfoLevel) }
func (s *Store) Warn(msg string)  { s.AppendLog(msg, zapcore.WarnLevel) }
func (s *Store) Error(msg string) { s.AppendLog(msg, zapcore.ErrorLevel) }

// Changes сигналит о существенном изменении. Несколько изменений подряд
// схлопываются в одно уведомление.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// LogStream — поток новых записей лога. Если читатель не успевает, записи теряются.
func (s *Store) LogStream() <-chan LogEntry { return s.logs }

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// --- типизированные хелперы ---

func (s *Store) SetStatus(status string) { s.Update(KeyStatus, status) }

func (s *Store) Status() string {
	v, _ := s.Get(KeyStatus, "").(string)
	return v
}

// Balance возвращает баланс и признак того, что он известен.
func (s *Store) Balance() (float64, bool) {
	v, ok := s.Get(KeyBalance, nil).(float64)
	return v, ok
}

func (s *Store) Positions() map[string]models.Position {
	v, _ := s.Get(KeyPositions, map[string]models.Position{}).(map[string]models.Position)
	return v
}

func (s *Store) Float(path string) float64 {
	switch v := s.Get(path, 0.0).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func (s *Store) Int(path string) int64 { return toInt64(s.Get(path, int64(0))) }

// --- пути и копирование ---

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func getPath(m map[string]any, parts []string) (any, bool) {
	var cur any = m
	for _, p := range parts {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[p]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]models.Position:
			v, ok := node[p]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath false — путь упирается в типизированный узел, который не принимает value.
// В этом случае дерево не меняется.
func setPath(m map[string]any, parts []string, value any) bool {
	node := m
	last := len(parts) - 1
	for i, p := range parts[:last] {
		switch next := node[p].(type) {
		case map[string]any:
			node = next
		case map[string]models.Position:
			pos, ok := value.(models.Position)
			if !ok || i != last-1 {
				return false
			}
			next[parts[last]] = pos
			return true
		default:
			fresh := map[string]any{}
			node[p] = fresh
			node = fresh
		}
	}
	node[parts[last]] = value
	return true
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]models.Position:
		out := make(map[string]models.Position, len(t))
		for k, p := range t {
			out[k] = p
		}
		return out
	case models.Signal:
		t.Factors = append([]string(nil), t.Factors...)
		return t
	case *models.Signal:
		if t == nil {
			return t
		}
		c := *t
		c.Factors = append([]string(nil), t.Factors...)
		return c
	default:
		return v
	}
}
