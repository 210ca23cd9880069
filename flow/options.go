package flow

import (
	"github.com/ragforge/flowengine/flow/collab"
	"github.com/ragforge/flowengine/flow/emit"
	"github.com/ragforge/flowengine/flow/monitor"
)

// Option configures an Engine at construction time: each Option mutates an
// internal config struct and returns an error so a bad option (a nil
// dependency, a non-positive worker count) is reported at New() rather
// than surfacing as a nil-pointer panic deep in execution.
type Option func(*engineConfig) error

type engineConfig struct {
	registry    *Registry
	maxWorkers  int
	poolTotal   Resources
	clock       collab.Clock
	persistence collab.Persistence
	recovery    *RecoveryManager
	emitter     emit.Emitter
	metrics     *monitor.Metrics

	breakerThreshold int
	breakerTimeout   float64
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		registry:   DefaultRegistry,
		maxWorkers: 10,
		poolTotal: Resources{
			CPUCores: 8, MemoryMB: 8192, NetworkMbps: 1000, GPUMemoryMB: 0, StorageIOMBps: 500,
		},
		clock:   collab.SystemClock{},
		emitter: emit.Null{},
	}
}

// WithRegistry overrides the node-type registry (default DefaultRegistry,
// the one flow/nodes self-registers into).
func WithRegistry(r *Registry) Option {
	return func(c *engineConfig) error {
		if r == nil {
			return ErrNilOption("registry")
		}
		c.registry = r
		return nil
	}
}

// WithMaxWorkers overrides the scheduler's per-batch concurrency cap
// (default 10).
func WithMaxWorkers(n int) Option {
	return func(c *engineConfig) error {
		if n <= 0 {
			return ErrNilOption("max_workers must be positive")
		}
		c.maxWorkers = n
		return nil
	}
}

// WithResourcePoolTotals overrides the process-wide resource pool's
// capacity (default a modest single-host sizing).
func WithResourcePoolTotals(total Resources) Option {
	return func(c *engineConfig) error {
		c.poolTotal = total
		return nil
	}
}

// WithClock overrides the engine's time source (default SystemClock).
// Tests inject a fake to make backoff assertions deterministic; the
// circuit breaker's open-state timeout runs on the wall clock.
func WithClock(clock collab.Clock) Option {
	return func(c *engineConfig) error {
		if clock == nil {
			return ErrNilOption("clock")
		}
		c.clock = clock
		return nil
	}
}

// WithPersistence wires the fire-and-forget execution persistence
// collaborator (default none: executions are not durably recorded).
func WithPersistence(p collab.Persistence) Option {
	return func(c *engineConfig) error {
		c.persistence = p
		return nil
	}
}

// WithRecoveryManager overrides the recovery manager (default a fresh
// one built from the resolved clock). Rarely needed outside tests that
// want to pre-seed per-node policy overrides before the engine starts.
func WithRecoveryManager(rm *RecoveryManager) Option {
	return func(c *engineConfig) error {
		if rm == nil {
			return ErrNilOption("recovery manager")
		}
		c.recovery = rm
		return nil
	}
}

// WithCircuitBreakerConfig overrides the circuit-breaker failure
// threshold (default 5) and open-state timeout in seconds (default 60)
// for nodes whose policy is circuit_break.
func WithCircuitBreakerConfig(threshold int, timeoutSeconds float64) Option {
	return func(c *engineConfig) error {
		if threshold <= 0 || timeoutSeconds <= 0 {
			return ErrNilOption("circuit breaker threshold and timeout must be positive")
		}
		c.breakerThreshold = threshold
		c.breakerTimeout = timeoutSeconds
		return nil
	}
}

// WithEmitter wires an observability emitter (default emit.Null{}, which
// discards everything). Execution start/terminal and per-step events flow
// through it; a slow emitter slows execution, so buffering emitters are
// preferred for I/O-bound backends.
func WithEmitter(em emit.Emitter) Option {
	return func(c *engineConfig) error {
		if em == nil {
			return ErrNilOption("emitter")
		}
		c.emitter = em
		return nil
	}
}

// WithMetrics wires the Prometheus-backed monitor (default none). Node
// outcomes and workflow terminal statuses are recorded through it.
func WithMetrics(m *monitor.Metrics) Option {
	return func(c *engineConfig) error {
		if m == nil {
			return ErrNilOption("metrics")
		}
		c.metrics = m
		return nil
	}
}

// ErrNilOption reports an invalid option argument; kept as a constructor
// rather than a sentinel var since the message varies per call site.
func ErrNilOption(what string) error {
	return &optionError{what: what}
}

type optionError struct{ what string }

func (e *optionError) Error() string { return "flow: invalid option: " + e.what }
