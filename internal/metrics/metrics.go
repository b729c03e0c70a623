package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_cache_hits_total", Help: "Cache hits"},
		[]string{"cache"},
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_cache_misses_total", Help: "Cache misses"},
		[]string{"cache"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_signals_total", Help: "Signals produced by the scanner"},
		[]string{"action"},
	)
	SignalsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_signals_dropped_total", Help: "Signals discarded before submission"},
		[]string{"reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_orders_total", Help: "Orders submitted"},
		[]string{"side", "result"},
	)
	GatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_bot_gateway_errors_total", Help: "Failed exchange calls"},
		[]string{"op"},
	)
	BalanceFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signal_bot_balance_fallback_total", Help: "Orders sized without a known balance"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signal_bot_scan_duration_seconds",
			Help:    "Duration of one scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "signal_bot_queue_depth", Help: "Signals waiting for admission"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "signal_bot_open_positions", Help: "Open positions seen by reconciliation"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits, CacheMisses,
		SignalsTotal, SignalsDropped,
		OrdersTotal, GatewayErrors, BalanceFallbacks,
		ScanDuration, QueueDepth, OpenPositions,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
