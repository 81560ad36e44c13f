package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks committed and reverted ledger operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	calls      *prometheus.CounterVec
	reverts    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	height     prometheus.Gauge
	openOrders prometheus.Gauge
	orders     prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swappin",
			Name:      "calls_total",
			Help:      "Committed ledger and order book calls by method.",
		}, []string{"method"}),
		reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swappin",
			Name:      "reverts_total",
			Help:      "Reverted calls by method and revert kind.",
		}, []string{"method", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swappin",
			Name:      "call_duration_seconds",
			Help:      "Time spent executing and committing a call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swappin",
			Name:      "height",
			Help:      "Number of committed calls.",
		}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swappin",
			Name:      "open_orders",
			Help:      "Orders with deposit remaining.",
		}),
		orders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swappin",
			Name:      "orders_total",
			Help:      "Orders ever created.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.reverts, m.latency, m.height, m.openOrders, m.orders)
	}
	return m
}

func (m *Metrics) Committed(method string, took time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method).Inc()
	m.latency.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) Reverted(method, kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.reverts.WithLabelValues(method, kind).Inc()
	m.latency.WithLabelValues(method).Observe(took.Seconds())
}

// SetState records the latest committed height and order counts
func (m *Metrics) SetState(height, orders, open uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
	m.orders.Set(float64(orders))
	m.openOrders.Set(float64(open))
}
