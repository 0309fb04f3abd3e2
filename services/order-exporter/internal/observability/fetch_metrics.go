package observability

import (
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "order_exporter"

var (
	FetchPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_pages_total",
			Help:      "Non-empty order pages retrieved from the store",
		},
	)

	FetchOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_orders_total",
			Help:      "Orders retrieved from the store",
		},
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetch runs by reason",
		},
		[]string{"reason"},
	)

	FetchCeilingReached = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_ceiling_reached_total",
			Help:      "Fetch runs stopped by the page ceiling",
		},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of a complete fetch run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	Exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export artifacts produced by format",
		},
		[]string{"format"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		},
	)
)

// FetchObserver feeds fetcher lifecycle events into the metrics above.
type FetchObserver struct{}

func (FetchObserver) PageFetched(orders int) {
	FetchPages.Inc()
	FetchOrders.Add(float64(orders))
}

func (FetchObserver) FetchFinished(state woocommerce.State, _ int, elapsed time.Duration) {
	FetchDuration.Observe(elapsed.Seconds())
	if state == woocommerce.StateCeilingReached {
		FetchCeilingReached.Inc()
	}
}
