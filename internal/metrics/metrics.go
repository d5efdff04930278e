// Package metrics holds the prometheus collectors of the executor. They are registered on the
// default registry and served on /metrics by the webhook gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_executions_total",
			Help: "Signal executions by final status",
		},
		[]string{"status"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_orders_total",
			Help: "Orders submitted to the exchange by side and outcome",
		},
		[]string{"side", "accepted"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_execution_duration_seconds",
			Help:    "Time from signal receipt to aggregated result",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal, ordersTotal, executionDuration)
}

func ObserveExecution(status string, elapsed time.Duration) {
	executionsTotal.WithLabelValues(status).Inc()
	executionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func IncOrder(side string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	ordersTotal.WithLabelValues(side, label).Inc()
}
