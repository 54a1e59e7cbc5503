package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	plansBuilt    *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	nodesExecuted *prometheus.CounterVec
	planNodeCount prometheus.Histogram
	runDuration   *prometheus.HistogramVec
	nodeLatency   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		plansBuilt: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ansor_plans_built_total",
				Help: "Total number of execution plans built",
			},
			[]string{"route_type"},
		),
		planNodeCount: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ansor_plan_node_count",
				Help:    "Number of nodes per execution plan",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ansor_runs_completed_total",
				Help: "Total number of answer runs completed",
			},
			[]string{"status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ansor_run_duration_seconds",
				Help:    "Answer run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		nodesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ansor_nodes_executed_total",
				Help: "Total number of plan nodes executed",
			},
			[]string{"role", "status"},
		),
		nodeLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ansor_node_latency_seconds",
				Help:    "Plan node execution latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"role"},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ansor_active_runs",
				Help: "Number of currently active answer runs",
			},
		),
	}
}

// RecordPlanBuilt records a built plan and its size
func (c *Collector) RecordPlanBuilt(routeType string, nodeCount int) {
	c.plansBuilt.WithLabelValues(routeType).Inc()
	c.planNodeCount.Observe(float64(nodeCount))
}

// RecordRunCompleted records a finished answer run
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNodeExecuted records a node execution
func (c *Collector) RecordNodeExecuted(role, status string, latencyMS float64) {
	c.nodesExecuted.WithLabelValues(role, status).Inc()
	c.nodeLatency.WithLabelValues(role).Observe(latencyMS / 1000)
}

// SetActiveRuns sets the number of currently active runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
