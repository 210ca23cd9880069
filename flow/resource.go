package flow

import (
	"sync"
	"time"
)

// Resources is a vector of fungible capacity consumed by a batch of nodes.
// All five dimensions are carried even when a given deployment only
// meaningfully bounds one or two of them.
type Resources struct {
	CPUCores        float64 `json:"cpu_cores"`
	MemoryMB        float64 `json:"memory_mb"`
	NetworkMbps     float64 `json:"network_mbps"`
	GPUMemoryMB     float64 `json:"gpu_memory_mb"`
	StorageIOMBps   float64 `json:"storage_io_mbps"`
}

// Fits reports whether want can be satisfied given avail remaining capacity.
func (want Resources) Fits(avail Resources) bool {
	return want.CPUCores <= avail.CPUCores &&
		want.MemoryMB <= avail.MemoryMB &&
		want.NetworkMbps <= avail.NetworkMbps &&
		want.GPUMemoryMB <= avail.GPUMemoryMB &&
		want.StorageIOMBps <= avail.StorageIOMBps
}

// Add returns the element-wise sum of a and b.
func (a Resources) Add(b Resources) Resources {
	return Resources{
		CPUCores:      a.CPUCores + b.CPUCores,
		MemoryMB:      a.MemoryMB + b.MemoryMB,
		NetworkMbps:   a.NetworkMbps + b.NetworkMbps,
		GPUMemoryMB:   a.GPUMemoryMB + b.GPUMemoryMB,
		StorageIOMBps: a.StorageIOMBps + b.StorageIOMBps,
	}
}

// Sub returns the element-wise difference a - b.
func (a Resources) Sub(b Resources) Resources {
	return Resources{
		CPUCores:      a.CPUCores - b.CPUCores,
		MemoryMB:      a.MemoryMB - b.MemoryMB,
		NetworkMbps:   a.NetworkMbps - b.NetworkMbps,
		GPUMemoryMB:   a.GPUMemoryMB - b.GPUMemoryMB,
		StorageIOMBps: a.StorageIOMBps - b.StorageIOMBps,
	}
}

// ResourcePool is the engine's single, process-wide, mutex-guarded ledger of
// total and currently-used capacity. One ResourcePool backs one Engine
// instance; the scheduler is the only component that mutates it.
type ResourcePool struct {
	mu    sync.Mutex
	total Resources
	used  Resources
}

// NewResourcePool creates a pool with the given totals.
func NewResourcePool(total Resources) *ResourcePool {
	return &ResourcePool{total: total}
}

// CanAllocate reports, under lock, whether want fits the remaining capacity.
func (p *ResourcePool) CanAllocate(want Resources) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return want.Fits(p.total.Sub(p.used))
}

// Allocate attempts to reserve want atomically with the fit check. Returns
// false without mutating state if the pool cannot currently satisfy want.
func (p *ResourcePool) Allocate(want Resources) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !want.Fits(p.total.Sub(p.used)) {
		return false
	}
	p.used = p.used.Add(want)
	return true
}

// Release returns previously-allocated capacity to the pool.
func (p *ResourcePool) Release(amount Resources) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = p.used.Sub(amount)
	// Clamp away any floating point drift so usage never reports negative,
	// which would otherwise make CanAllocate's subtraction over-permissive.
	if p.used.CPUCores < 0 {
		p.used.CPUCores = 0
	}
	if p.used.MemoryMB < 0 {
		p.used.MemoryMB = 0
	}
	if p.used.NetworkMbps < 0 {
		p.used.NetworkMbps = 0
	}
	if p.used.GPUMemoryMB < 0 {
		p.used.GPUMemoryMB = 0
	}
	if p.used.StorageIOMBps < 0 {
		p.used.StorageIOMBps = 0
	}
}

// Snapshot returns the current total/used split for monitoring.
func (p *ResourcePool) Snapshot() (total, used Resources) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.used
}

// CircuitBreakerState is the per-node circuit breaker record.
// It is the externally-observable shape; Breaker (breaker.go) is the
// implementation that produces and maintains it (backed by gobreaker).
type CircuitBreakerState struct {
	IsOpen          bool      `json:"is_open"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	SuccessCount    int       `json:"success_count"`
	TotalCalls      int       `json:"total_calls"`
}
