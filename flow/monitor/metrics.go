// Package monitor provides execution monitoring: per-node and
// per-workflow Prometheus counters/histograms, plus an alert-rule
// engine (AlertManager) that evaluates the metric values passed to its
// Evaluate method; recording a metric does not evaluate alert rules.
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics wraps the engine's Prometheus collectors, namespaced
// "flowengine".
type Metrics struct {
	callCount    *prometheus.CounterVec
	errorCount   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	workflowRuns *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers every collector with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		callCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "node_calls_total",
			Help:      "Cumulative count of node executions, per node and workflow id",
		}, []string{"workflow_id", "node_id"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "node_errors_total",
			Help:      "Cumulative count of node execution failures, per node and workflow id",
		}, []string{"workflow_id", "node_id"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow_id", "node_id"}),
		workflowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "workflow_runs_total",
			Help:      "Cumulative count of workflow executions, per workflow id and status",
		}, []string{"workflow_id", "status"}),
	}
}

// RecordStep records one node's outcome: call count, error count (if
// failed), and duration.
func (m *Metrics) RecordStep(workflowID, nodeID string, duration time.Duration, failed bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return
	}
	m.callCount.WithLabelValues(workflowID, nodeID).Inc()
	m.duration.WithLabelValues(workflowID, nodeID).Observe(duration.Seconds())
	if failed {
		m.errorCount.WithLabelValues(workflowID, nodeID).Inc()
	}
}

// RecordWorkflowRun records the terminal status of one execution.
func (m *Metrics) RecordWorkflowRun(workflowID, status string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return
	}
	m.workflowRuns.WithLabelValues(workflowID, status).Inc()
}

// CallCounter exposes the node-call counter for test assertions and
// custom dashboards.
func (m *Metrics) CallCounter() *prometheus.CounterVec { return m.callCount }

// ErrorCounter exposes the node-error counter.
func (m *Metrics) ErrorCounter() *prometheus.CounterVec { return m.errorCount }

// WorkflowRunCounter exposes the per-status workflow run counter.
func (m *Metrics) WorkflowRunCounter() *prometheus.CounterVec { return m.workflowRuns }

// Disable stops recording without unregistering the collectors (useful
// for tests that want a quiet monitor without double-registration
// errors).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
