package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Comparison is the operator an AlertRule applies between an observed
// metric value and its threshold.
type Comparison string

const (
	CompareGreater      Comparison = ">"
	CompareLess         Comparison = "<"
	CompareGreaterEqual Comparison = ">="
	CompareLessEqual    Comparison = "<="
	CompareEqual        Comparison = "=="
)

// Severity mirrors the original implementation's AlertSeverity enum.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AlertRule is a single threshold check over a named metric.
type AlertRule struct {
	Name            string
	MetricName      string
	Threshold       float64
	Comparison      Comparison
	Severity        Severity
	MessageTemplate string
}

// Evaluate reports whether value trips the rule.
func (r AlertRule) Evaluate(value float64) bool {
	switch r.Comparison {
	case CompareGreater:
		return value > r.Threshold
	case CompareLess:
		return value < r.Threshold
	case CompareGreaterEqual:
		return value >= r.Threshold
	case CompareLessEqual:
		return value <= r.Threshold
	case CompareEqual:
		return value == r.Threshold
	default:
		return false
	}
}

// message renders MessageTemplate against the tripped value, substituting
// {value} and {threshold} the way the original's str.format call did.
func (r AlertRule) message(value float64) string {
	if r.MessageTemplate == "" {
		return fmt.Sprintf("%s %s %.2f (observed %.2f)", r.MetricName, r.Comparison, r.Threshold, value)
	}
	out := strings.ReplaceAll(r.MessageTemplate, "{value}", fmt.Sprintf("%.4f", value))
	out = strings.ReplaceAll(out, "{threshold}", fmt.Sprintf("%.4f", r.Threshold))
	return out
}

// defaultRules is the set installed out of the box: workflow duration,
// node error rate, workflow failure rate.
func defaultRules() []AlertRule {
	return []AlertRule{
		{
			Name:            "workflow_duration_exceeded",
			MetricName:      "workflow_duration_seconds",
			Threshold:       300,
			Comparison:      CompareGreater,
			Severity:        SeverityWarning,
			MessageTemplate: "workflow execution took {value}s, exceeding {threshold}s",
		},
		{
			Name:            "node_error_rate_high",
			MetricName:      "node_error_rate",
			Threshold:       0.1,
			Comparison:      CompareGreater,
			Severity:        SeverityError,
			MessageTemplate: "node error rate {value} exceeds {threshold}",
		},
		{
			Name:            "workflow_failure_rate_high",
			MetricName:      "workflow_failure_rate",
			Threshold:       0.2,
			Comparison:      CompareGreater,
			Severity:        SeverityError,
			MessageTemplate: "workflow failure rate {value} exceeds {threshold}",
		},
	}
}

// Alert is one fired, resolvable occurrence of an AlertRule tripping for
// a particular (workflow, node) pair.
type Alert struct {
	Rule       string
	WorkflowID string
	NodeID     string
	Severity   Severity
	Message    string
	Value      float64
	FiredAt    time.Time
	Resolved   bool
	ResolvedAt time.Time
}

func alertKey(rule, workflowID, nodeID string) string {
	return rule + "|" + workflowID + "|" + nodeID
}

// alertResolveAfter is the auto-resolve window for stale open alerts.
const alertResolveAfter = time.Hour

// AlertHistory is a mutex-guarded bounded ring buffer of fired alerts,
// the same shape as flow.ErrorHistory (flow/history.go) applied to
// Alert instead of flow.ErrorRecord.
type AlertHistory struct {
	mu       sync.Mutex
	capacity int
	records  []Alert
	next     int
	full     bool
}

// NewAlertHistory returns an empty ring of the given capacity.
func NewAlertHistory(capacity int) *AlertHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AlertHistory{capacity: capacity, records: make([]Alert, capacity)}
}

func (h *AlertHistory) record(a Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = a
	h.next = (h.next + 1) % h.capacity
	if h.next == 0 {
		h.full = true
	}
}

// Snapshot returns the recorded alerts in insertion order (oldest first).
func (h *AlertHistory) Snapshot() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]Alert, h.next)
		copy(out, h.records[:h.next])
		return out
	}
	out := make([]Alert, h.capacity)
	copy(out, h.records[h.next:])
	copy(out[h.capacity-h.next:], h.records[:h.next])
	return out
}

// Clear empties the ring.
func (h *AlertHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = make([]Alert, h.capacity)
	h.next = 0
	h.full = false
}

// AlertManager evaluates AlertRules against recorded metric values and
// tracks their open/resolved lifecycle, keyed by (rule, workflow, node).
// Firing the same key twice while it's already
// open and unresolved does not re-trigger; it auto-resolves after
// alertResolveAfter with no further activity.
type AlertManager struct {
	mu      sync.Mutex
	rules   []AlertRule
	open    map[string]*Alert
	history *AlertHistory
}

// NewAlertManager builds a manager preloaded with the default rule set.
func NewAlertManager() *AlertManager {
	return &AlertManager{
		rules:   defaultRules(),
		open:    map[string]*Alert{},
		history: NewAlertHistory(1000),
	}
}

// AddRule installs an additional rule alongside the defaults.
func (a *AlertManager) AddRule(r AlertRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, r)
}

// Evaluate checks value against every rule named metricName, firing or
// resolving alerts for (workflowID, nodeID) as needed. now is supplied
// by the caller (Date.now()-equivalents are not taken internally so the
// manager stays deterministic under test).
func (a *AlertManager) Evaluate(metricName, workflowID, nodeID string, value float64, now time.Time) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fired []Alert
	for _, rule := range a.rules {
		if rule.MetricName != metricName {
			continue
		}
		key := alertKey(rule.Name, workflowID, nodeID)
		existing, isOpen := a.open[key]
		if isOpen && now.Sub(existing.FiredAt) > alertResolveAfter {
			existing.Resolved = true
			existing.ResolvedAt = now
			a.history.record(*existing)
			delete(a.open, key)
			isOpen = false
		}
		if !rule.Evaluate(value) {
			continue
		}
		if isOpen {
			continue
		}
		al := Alert{
			Rule:       rule.Name,
			WorkflowID: workflowID,
			NodeID:     nodeID,
			Severity:   rule.Severity,
			Message:    rule.message(value),
			Value:      value,
			FiredAt:    now,
		}
		a.open[key] = &al
		fired = append(fired, al)
	}
	return fired
}

// Resolve force-resolves any open alert for (rule, workflowID, nodeID),
// e.g. once the condition that tripped it has cleared.
func (a *AlertManager) Resolve(ruleName, workflowID, nodeID string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := alertKey(ruleName, workflowID, nodeID)
	existing, ok := a.open[key]
	if !ok {
		return
	}
	existing.Resolved = true
	existing.ResolvedAt = now
	a.history.record(*existing)
	delete(a.open, key)
}

// Open returns the currently open (unresolved) alerts.
func (a *AlertManager) Open() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, 0, len(a.open))
	for _, al := range a.open {
		out = append(out, *al)
	}
	return out
}

// History returns a snapshot of every fired-then-resolved alert.
func (a *AlertManager) History() []Alert {
	return a.history.Snapshot()
}
