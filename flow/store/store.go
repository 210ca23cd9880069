// Package store provides concrete implementations of the engine's
// persistence collaborator: an in-memory store for tests and short-lived
// deployments, and a SQLite-backed store for single-process durability.
// Both satisfy collab.Persistence, so the engine's fire-and-forget
// SaveExecution hook can be wired to either without the engine knowing
// which backend is behind it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ragforge/flowengine/flow/collab"
)

// ErrNotFound is returned when a requested execution id does not exist.
var ErrNotFound = errors.New("store: execution not found")

// ExecutionRecord is the durable form of one saved execution: the
// engine's snapshot plus the request metadata SaveExecution carries.
type ExecutionRecord struct {
	ExecutionID    string
	WorkflowID     string
	TenantID       string
	ExecutorID     string
	Status         string
	Snapshot       map[string]any
	Config         map[string]any
	Debug          bool
	EnableParallel bool
	SavedAt        time.Time
}

// ExecutionStore persists and retrieves execution records. SaveExecution
// is the collab.Persistence contract the engine calls; the read side
// serves status endpoints and the retry-from-node facility, which loads
// a base execution's recorded outputs.
type ExecutionStore interface {
	collab.Persistence

	// GetExecution loads one record, or ErrNotFound.
	GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)

	// ListExecutions returns the tenant's records newest-first. A
	// non-positive limit means no limit; an empty tenantID matches every
	// tenant.
	ListExecutions(ctx context.Context, tenantID string, limit int) ([]*ExecutionRecord, error)

	// DeleteExecution removes one record, or ErrNotFound.
	DeleteExecution(ctx context.Context, executionID string) error

	// Close releases backend resources.
	Close() error
}

// snapshotString reads a string field out of the engine's snapshot map,
// tolerating absence.
func snapshotString(snapshot map[string]any, key string) string {
	if snapshot == nil {
		return ""
	}
	s, _ := snapshot[key].(string)
	return s
}
