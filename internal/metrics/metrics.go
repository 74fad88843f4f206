// Package metrics exposes Prometheus metrics for the HTTP layer and the bot.
package metrics

import (
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tradebot"

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Bot metrics
	signalsGenerated  *prometheus.CounterVec
	signalsAggregated *prometheus.CounterVec
	signalsRouted     *prometheus.CounterVec
	analysisCycles    prometheus.Counter
	analysisDuration  prometheus.Histogram
	tradesOpened      *prometheus.CounterVec
	tradesClosed      *prometheus.CounterVec
	openPositions     prometheus.Gauge
	equity            prometheus.Gauge
	wsClients         prometheus.Gauge
	wsMessages        *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_generated_total",
			Help:      "Total number of strategy signals generated",
		},
		[]string{"strategy", "action"},
	)
	r.signalsAggregated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_aggregated_total",
			Help:      "Total number of aggregated signals",
		},
		[]string{"action"},
	)
	r.signalsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_routed_total",
			Help:      "Total number of aggregated signals that passed the router",
		},
		[]string{"action"},
	)
	r.analysisCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cycles_total",
			Help:      "Total number of analysis cycles completed",
		},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analysis cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
	r.tradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_opened_total",
			Help:      "Total number of trades opened",
		},
		[]string{"side"},
	)
	r.tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_closed_total",
			Help:      "Total number of trades closed",
		},
		[]string{"reason"},
	)
	r.openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Number of open positions",
		},
	)
	r.equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_equity",
			Help:      "Total portfolio value in quote currency",
		},
	)
	r.wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		},
	)
	r.wsMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_sent_total",
			Help:      "Total number of WebSocket messages queued to clients",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.signalsAggregated)
	reg.MustRegister(r.signalsRouted)
	reg.MustRegister(r.analysisCycles)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.tradesOpened)
	reg.MustRegister(r.tradesClosed)
	reg.MustRegister(r.openPositions)
	reg.MustRegister(r.equity)
	reg.MustRegister(r.wsClients)
	reg.MustRegister(r.wsMessages)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordSignal records a strategy signal.
func (r *Registry) RecordSignal(strategy, action string) {
	r.signalsGenerated.WithLabelValues(strategy, action).Inc()
}

// RecordAggregated records an aggregated signal.
func (r *Registry) RecordAggregated(action string) {
	r.signalsAggregated.WithLabelValues(action).Inc()
}

// RecordRouted records a signal that passed the router.
func (r *Registry) RecordRouted(action string) {
	r.signalsRouted.WithLabelValues(action).Inc()
}

// RecordAnalysisCycle records an analysis cycle completion.
func (r *Registry) RecordAnalysisCycle(duration float64) {
	r.analysisCycles.Inc()
	r.analysisDuration.Observe(duration)
}

// RecordTradeOpened counts an opened trade.
func (r *Registry) RecordTradeOpened(side string) {
	r.tradesOpened.WithLabelValues(side).Inc()
}

// RecordTradeClosed counts a closed trade.
func (r *Registry) RecordTradeClosed(reason string) {
	r.tradesClosed.WithLabelValues(reason).Inc()
}

// SetPortfolio updates the open position and equity gauges.
func (r *Registry) SetPortfolio(openPositions int, equity float64) {
	r.openPositions.Set(float64(openPositions))
	r.equity.Set(equity)
}

// ClientsChanged implements realtime.Observer.
func (r *Registry) ClientsChanged(n int) {
	r.wsClients.Set(float64(n))
}

// MessageSent implements realtime.Observer.
func (r *Registry) MessageSent(t realtime.EventType) {
	r.wsMessages.WithLabelValues(string(t)).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
