package flow

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ragforge/flowengine/flow/collab"
)

// RecoveryAction is the outcome the recovery layer chooses for a
// classified failure.
type RecoveryAction string

const (
	ActionRetry           RecoveryAction = "retry"
	ActionSkipNode        RecoveryAction = "skip_node"
	ActionUseFallback     RecoveryAction = "use_fallback"
	ActionUseCachedResult RecoveryAction = "use_cached_result"
	ActionUseDefaultValue RecoveryAction = "use_default_value"
	ActionFailFast        RecoveryAction = "fail_fast"
	ActionRollback        RecoveryAction = "rollback"
	ActionCircuitBreak    RecoveryAction = "circuit_break"
)

// BackoffStrategy selects the retry delay formula.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential_backoff"
	BackoffLinear      BackoffStrategy = "linear_backoff"
	BackoffFixed       BackoffStrategy = "fixed_delay"
	BackoffImmediate   BackoffStrategy = "immediate"
	BackoffNone        BackoffStrategy = "no_retry"
)

// RetryConfig is the parameterization of a "retry" action.
type RetryConfig struct {
	Strategy          BackoffStrategy
	MaxRetries        int
	InitialDelay      float64 // seconds
	MaxDelay          float64 // seconds
	BackoffMultiplier float64
	Jitter            bool
	TimeoutMultiplier float64
}

// Delay returns the backoff delay (seconds) before attempt number k
// (0-indexed), clamped to MaxDelay and optionally jittered by a uniform
// [0.5, 1.0] multiplier.
func (rc RetryConfig) Delay(k int, rnd *rand.Rand) float64 {
	var d float64
	switch rc.Strategy {
	case BackoffExponential:
		mult := rc.BackoffMultiplier
		if mult <= 0 {
			mult = 2.0
		}
		d = rc.InitialDelay * pow(mult, k)
	case BackoffLinear:
		d = rc.InitialDelay * float64(k+1)
	case BackoffFixed:
		d = rc.InitialDelay
	case BackoffImmediate, BackoffNone:
		d = 0
	default:
		d = rc.InitialDelay
	}
	if rc.MaxDelay > 0 && d > rc.MaxDelay {
		d = rc.MaxDelay
	}
	if rc.Jitter && d > 0 {
		if rnd == nil {
			rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d *= 0.5 + rnd.Float64()*0.5
	}
	return d
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// Policy is the full recovery decision for one ErrorKind: what action to
// take, and (for retry) how.
type Policy struct {
	Action        RecoveryAction
	Retry         RetryConfig
	FallbackValue map[string]any
}

// defaultPolicies maps each error kind to its out-of-the-box strategy.
var defaultPolicies = map[ErrorKind]Policy{
	KindTimeout: {
		Action: ActionRetry,
		Retry:  RetryConfig{Strategy: BackoffLinear, MaxRetries: 3, InitialDelay: 2.0, Jitter: true},
	},
	KindNetwork: {
		Action: ActionRetry,
		Retry:  RetryConfig{Strategy: BackoffExponential, MaxRetries: 5, InitialDelay: 1.0, MaxDelay: 30.0, BackoffMultiplier: 2.0, Jitter: true},
	},
	KindResource: {
		Action: ActionRetry,
		Retry:  RetryConfig{Strategy: BackoffLinear, MaxRetries: 3, InitialDelay: 5.0, MaxDelay: 60.0, Jitter: true},
	},
	KindDependency: {
		Action:        ActionUseFallback,
		FallbackValue: map[string]any{"error": "dependency_unavailable", "data": nil},
	},
	KindData: {
		Action:        ActionUseDefaultValue,
		FallbackValue: map[string]any{"error": "data_format_error", "data": map[string]any{}},
	},
	KindValidation: {
		Action: ActionFailFast,
	},
	KindExecution: {
		Action: ActionRetry,
		Retry:  RetryConfig{Strategy: BackoffFixed, MaxRetries: 2, InitialDelay: 1.0},
	},
	KindConfiguration: {
		Action:        ActionUseDefaultValue,
		FallbackValue: map[string]any{"error": "config_error", "data": map[string]any{}},
	},
	KindPermission: {
		Action: ActionFailFast,
	},
	KindQuota: {
		Action: ActionCircuitBreak,
		Retry:  RetryConfig{Strategy: BackoffExponential, MaxRetries: 2, InitialDelay: 30.0, BackoffMultiplier: 2.0},
	},
}

// RecoveryManager owns the process-wide recovery state: per-node policy
// overrides, circuit breakers, the retry-attempt counter keyed by
// (node_id, step_id), and the bounded error history. One RecoveryManager
// backs one Engine.
type RecoveryManager struct {
	mu               sync.Mutex
	overrides        map[string]Policy // nodeID -> override policy
	breakers         map[string]*Breaker
	retryCounts      map[string]int // "nodeID|stepID" -> attempts so far
	history          *ErrorHistory
	clock            collab.Clock
	breakerThreshold int
	breakerTimeout   float64
}

// NewRecoveryManager constructs a manager with the stock settings:
// circuit_breaker_threshold=5, circuit_breaker_timeout=60s.
func NewRecoveryManager(clock collab.Clock) *RecoveryManager {
	if clock == nil {
		clock = collab.SystemClock{}
	}
	return &RecoveryManager{
		overrides:        map[string]Policy{},
		breakers:         map[string]*Breaker{},
		retryCounts:      map[string]int{},
		history:          NewErrorHistory(1000),
		clock:            clock,
		breakerThreshold: 5,
		breakerTimeout:   60.0,
	}
}

// SetNodePolicy installs a per-node override that takes precedence over
// the default policy for its error kind.
func (m *RecoveryManager) SetNodePolicy(nodeID string, kind ErrorKind, p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[nodeID+"|"+string(kind)] = p
}

func (m *RecoveryManager) policyFor(nodeID string, kind ErrorKind) Policy {
	m.mu.Lock()
	p, ok := m.overrides[nodeID+"|"+string(kind)]
	m.mu.Unlock()
	if ok {
		return p
	}
	if p, ok := defaultPolicies[kind]; ok {
		return p
	}
	return Policy{Action: ActionRetry, Retry: RetryConfig{Strategy: BackoffFixed, MaxRetries: 1, InitialDelay: 1.0}}
}

// breakerFor returns nodeID's breaker, creating it on first use. Only
// the circuit_break handling path calls this: breaker state exists
// solely for nodes whose effective policy is circuit_break.
func (m *RecoveryManager) breakerFor(nodeID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[nodeID]
	if !ok {
		b = NewBreaker(nodeID, m.breakerThreshold, m.breakerTimeout, m.clock)
		m.breakers[nodeID] = b
	}
	return b
}

// existingBreaker returns nodeID's breaker without creating one, so
// nodes that never hit a circuit_break policy carry no breaker state.
func (m *RecoveryManager) existingBreaker(nodeID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakers[nodeID]
}

// SetBreakerConfig overrides the circuit-breaker failure threshold
// (default 5) and open-state timeout in seconds (default 60) applied to
// breakers created afterwards. Call at startup, before executions run.
func (m *RecoveryManager) SetBreakerConfig(threshold int, timeoutSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold > 0 {
		m.breakerThreshold = threshold
	}
	if timeoutSeconds > 0 {
		m.breakerTimeout = timeoutSeconds
	}
}

// BreakerState returns the observable circuit state for nodeID, or the
// zero state if the node has never failed under a circuit_break policy.
func (m *RecoveryManager) BreakerState(nodeID string) CircuitBreakerState {
	b := m.existingBreaker(nodeID)
	if b == nil {
		return CircuitBreakerState{}
	}
	return b.State()
}

// circuitFallback is the value an open breaker short-circuits with: the
// node's circuit_break override fallback when one is installed, else the
// default circuit_break policy's fallback, else an empty object.
func (m *RecoveryManager) circuitFallback(nodeID string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.overrides {
		if p.Action == ActionCircuitBreak && strings.HasPrefix(key, nodeID+"|") && p.FallbackValue != nil {
			return cloneMap(p.FallbackValue)
		}
	}
	if p, ok := defaultPolicies[KindQuota]; ok && p.FallbackValue != nil {
		return cloneMap(p.FallbackValue)
	}
	return map[string]any{}
}

// ResetCircuitBreakers clears all breaker state (admin operation).
func (m *RecoveryManager) ResetCircuitBreakers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers = map[string]*Breaker{}
}

// ReleaseSteps drops the retry counters recorded for the given step ids,
// called by the engine once an execution terminates so counters do not
// accumulate across the process lifetime.
func (m *RecoveryManager) ReleaseSteps(stepIDs []string) {
	if len(stepIDs) == 0 {
		return
	}
	suffixes := make(map[string]bool, len(stepIDs))
	for _, id := range stepIDs {
		suffixes[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.retryCounts {
		if i := strings.LastIndex(key, "|"); i >= 0 && suffixes[key[i+1:]] {
			delete(m.retryCounts, key)
		}
	}
}

// ClearRetryCounts clears all retry-attempt counters (admin operation).
func (m *RecoveryManager) ClearRetryCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCounts = map[string]int{}
}

// ClearErrorHistory empties the bounded error ring (admin operation).
func (m *RecoveryManager) ClearErrorHistory() {
	m.history.Clear()
}

// History returns a snapshot of recorded classified errors.
func (m *RecoveryManager) History() []ErrorRecord {
	return m.history.Snapshot()
}

func (m *RecoveryManager) attemptCount(nodeID, stepID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCounts[nodeID+"|"+stepID]
}

func (m *RecoveryManager) incrementAttempt(nodeID, stepID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nodeID + "|" + stepID
	m.retryCounts[key]++
	return m.retryCounts[key]
}

// recoveryOutcome is what Execute returns after the handler loop ends.
type recoveryOutcome struct {
	status   StepStatus
	output   map[string]any
	errText  string
	recovery map[string]any // non-nil when status==recovered
	fatal    error          // non-nil when the caller must propagate
}

// Execute runs n's node type through runner under the bounded recovery
// loop: classify on failure, consult policy,
// retry/fallback/fail-fast/circuit-break, at most 3 attempts total.
func (m *RecoveryManager) Execute(ctx context.Context, n *Node, stepID string, input map[string]any, execCtx *ExecutionContext, runner NodeRunner) recoveryOutcome {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// A breaker exists only for nodes that have failed under a
		// circuit_break policy; everyone else skips this check entirely.
		if b := m.existingBreaker(n.ID); b != nil && b.IsOpen() {
			fallback := m.circuitFallback(n.ID)
			m.history.Record(ErrorRecord{Timestamp: m.clock.NowSeconds(), Kind: string(KindExecution), NodeID: n.ID, Message: "circuit breaker open"})
			return recoveryOutcome{
				status:   StepRecovered,
				output:   fallback,
				errText:  fmt.Sprintf("circuit breaker open for node %s", n.ID),
				recovery: map[string]any{"action": string(ActionCircuitBreak), "message": "circuit open, call short-circuited"},
			}
		}

		out, err := runner.Run(ctx, n, input, execCtx)
		if err == nil {
			if b := m.existingBreaker(n.ID); b != nil {
				b.RecordSuccess()
			}
			return recoveryOutcome{status: StepCompleted, output: out}
		}

		kind := ClassifyError(err)
		m.history.Record(ErrorRecord{Timestamp: m.clock.NowSeconds(), Kind: string(kind), NodeID: n.ID, Message: err.Error()})
		policy := m.policyFor(n.ID, kind)
		if policy.Action == ActionCircuitBreak {
			m.breakerFor(n.ID).RecordFailure()
		}

		switch policy.Action {
		case ActionRetry:
			k := m.incrementAttempt(n.ID, stepID)
			if k > policy.Retry.MaxRetries || attempt == maxAttempts-1 {
				return m.finish(n, err, "retry_exhausted", nil)
			}
			delay := policy.Retry.Delay(k-1, rnd)
			_ = m.clock.Sleep(ctx, delay)
			continue
		case ActionSkipNode, ActionUseFallback, ActionUseCachedResult, ActionUseDefaultValue:
			fallback := policy.FallbackValue
			if fallback == nil {
				fallback = map[string]any{}
			}
			return recoveryOutcome{
				status:   StepRecovered,
				output:   fallback,
				errText:  err.Error(),
				recovery: map[string]any{"action": string(policy.Action), "message": err.Error()},
			}
		case ActionCircuitBreak:
			return m.finish(n, err, string(ActionCircuitBreak), nil)
		case ActionRollback:
			return m.finish(n, err, string(ActionRollback), nil)
		case ActionFailFast:
			return m.finish(n, err, string(ActionFailFast), nil)
		default:
			return m.finish(n, err, "unknown_action", nil)
		}
	}
	return m.finish(n, ErrMaxRetriesExceeded, "attempts_exhausted", nil)
}

func (m *RecoveryManager) finish(n *Node, cause error, reason string, _ map[string]any) recoveryOutcome {
	if n.ConfigBool("ignore_errors") {
		return recoveryOutcome{status: StepIgnored, output: map[string]any{}, errText: cause.Error()}
	}
	return recoveryOutcome{status: StepError, errText: cause.Error(), fatal: fmt.Errorf("node %s (%s): %w", n.ID, reason, cause)}
}
