package exchange

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xtrntr/matchengine/internal/models"
)

// Metrics holds the exchange's prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	ordersSubmitted *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	tradedVolume    *prometheus.CounterVec
	bookDepth       *prometheus.GaugeVec
	matchingLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors under namespace
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Total number of orders accepted into a book",
		}, []string{"symbol", "side"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Total number of orders rejected before resting",
		}, []string{"symbol"}),
		ordersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Total number of orders cancelled",
		}, []string{"symbol"}),
		tradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Total number of trades executed",
		}, []string{"symbol"}),
		tradedVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_volume_total",
			Help:      "Total base quantity traded",
		}, []string{"symbol"}),
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orderbook_depth",
			Help:      "Resting quantity by side",
		}, []string{"symbol", "side"}),
		matchingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_latency_seconds",
			Help:      "Time spent matching a submitted order",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"symbol"}),
	}

	registry.MustRegister(
		m.ordersSubmitted,
		m.ordersRejected,
		m.ordersCancelled,
		m.tradesExecuted,
		m.tradedVolume,
		m.bookDepth,
		m.matchingLatency,
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) orderSubmitted(symbol models.Symbol, side models.Side) {
	m.ordersSubmitted.WithLabelValues(string(symbol), string(side)).Inc()
}

func (m *Metrics) orderRejected(symbol models.Symbol) {
	m.ordersRejected.WithLabelValues(string(symbol)).Inc()
}

func (m *Metrics) orderCancelled(symbol models.Symbol) {
	m.ordersCancelled.WithLabelValues(string(symbol)).Inc()
}

func (m *Metrics) executed(exec Execution) {
	symbol := string(exec.Transaction.Symbol())
	qty, _ := exec.Transaction.Quantity().Float64()
	m.tradesExecuted.WithLabelValues(symbol).Inc()
	m.tradedVolume.WithLabelValues(symbol).Add(qty)
}

func (m *Metrics) observeMatch(symbol models.Symbol, start time.Time) {
	m.matchingLatency.WithLabelValues(string(symbol)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) updateDepth(s Summary) {
	bid, _ := s.BidVolume.Float64()
	ask, _ := s.AskVolume.Float64()
	m.bookDepth.WithLabelValues(string(s.Symbol), string(models.Buy)).Set(bid)
	m.bookDepth.WithLabelValues(string(s.Symbol), string(models.Sell)).Set(ask)
}
