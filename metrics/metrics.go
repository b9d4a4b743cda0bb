// Package metrics exports the process's Prometheus collectors: pipeline
// throughput, decision outcomes, adapter call health and position state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry served at /metrics.
var Registry = prometheus.NewRegistry()

var (
	// PipelineResults counts terminal pipeline outcomes per status.
	PipelineResults = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optionstrat",
			Subsystem: "pipeline",
			Name:      "results_total",
			Help:      "Terminal pipeline results by status",
		},
		[]string{"status"},
	)

	// PipelineDuration observes end-to-end processing time per signal.
	PipelineDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "optionstrat",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end signal processing duration",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DecisionOutcomes counts orchestrator verdicts per action and reason.
	DecisionOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optionstrat",
			Subsystem: "decision",
			Name:      "outcomes_total",
			Help:      "Orchestrator decisions by action and reject reason",
		},
		[]string{"action", "reason"},
	)

	// AdapterCalls counts broker adapter operations by outcome.
	AdapterCalls = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optionstrat",
			Subsystem: "adapter",
			Name:      "calls_total",
			Help:      "Broker adapter calls by adapter, operation and outcome",
		},
		[]string{"adapter", "operation", "outcome"},
	)

	// OrderFills counts filled orders per mode.
	OrderFills = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optionstrat",
			Subsystem: "orders",
			Name:      "fills_total",
			Help:      "Filled orders by execution mode",
		},
		[]string{"mode"},
	)

	// OpenPositions tracks the number of currently open positions.
	OpenPositions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "optionstrat",
			Subsystem: "positions",
			Name:      "open",
			Help:      "Currently open positions",
		},
	)

	// PositionUnrealizedPnL tracks per-position unrealized P&L in dollars.
	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "optionstrat",
			Subsystem: "positions",
			Name:      "unrealized_pnl",
			Help:      "Unrealized P&L in dollars",
		},
		[]string{"underlying", "symbol"},
	)

	// PositionPnLPercent tracks per-position unrealized P&L percent.
	PositionPnLPercent = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "optionstrat",
			Subsystem: "positions",
			Name:      "pnl_percent",
			Help:      "Unrealized P&L percent of cost",
		},
		[]string{"underlying", "symbol"},
	)
)

// RecordPipelineResult counts one terminal pipeline outcome.
func RecordPipelineResult(status string) {
	PipelineResults.WithLabelValues(status).Inc()
}

// ObservePipelineDuration records one signal's processing time.
func ObservePipelineDuration(d time.Duration) {
	PipelineDuration.Observe(d.Seconds())
}

// RecordDecision counts one orchestrator verdict.
func RecordDecision(action, reason string) {
	if reason == "" {
		reason = "none"
	}
	DecisionOutcomes.WithLabelValues(action, reason).Inc()
}

// RecordAdapterCall counts one broker adapter operation.
func RecordAdapterCall(adapter, operation string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	AdapterCalls.WithLabelValues(adapter, operation, outcome).Inc()
}

// RecordOrderFill counts one filled order.
func RecordOrderFill(mode string) {
	OrderFills.WithLabelValues(mode).Inc()
}

// SetOpenPositions sets the open-position gauge.
func SetOpenPositions(n int) {
	OpenPositions.Set(float64(n))
}

// UpdatePositionMetrics updates per-position P&L gauges after a refresh.
func UpdatePositionMetrics(underlying, symbol string, unrealizedPnL, pnlPercent float64) {
	PositionUnrealizedPnL.WithLabelValues(underlying, symbol).Set(unrealizedPnL)
	PositionPnLPercent.WithLabelValues(underlying, symbol).Set(pnlPercent)
}

// ClearPositionMetrics removes gauges for a closed position.
func ClearPositionMetrics(underlying, symbol string) {
	PositionUnrealizedPnL.DeleteLabelValues(underlying, symbol)
	PositionPnLPercent.DeleteLabelValues(underlying, symbol)
}

// Init registers the standard runtime collectors alongside the domain
// metrics.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
