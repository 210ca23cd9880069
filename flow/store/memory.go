package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps execution records in memory. Thread-safe; records are
// lost when the process exits. Suited to tests and deployments that
// treat execution history as disposable.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*ExecutionRecord
}

// NewMemStore builds an empty in-memory execution store.
func NewMemStore() *MemStore {
	return &MemStore{records: map[string]*ExecutionRecord{}}
}

var _ ExecutionStore = (*MemStore)(nil)

// SaveExecution implements collab.Persistence. Saving an id that already
// exists replaces the record, so repeated saves over an execution's
// lifetime converge on its final state.
func (m *MemStore) SaveExecution(ctx context.Context, executionID string, snapshot map[string]any, tenantID, executorID string, config map[string]any, debug, enableParallel bool) error {
	rec := &ExecutionRecord{
		ExecutionID:    executionID,
		WorkflowID:     snapshotString(snapshot, "workflow_id"),
		TenantID:       tenantID,
		ExecutorID:     executorID,
		Status:         snapshotString(snapshot, "status"),
		Snapshot:       snapshot,
		Config:         config,
		Debug:          debug,
		EnableParallel: enableParallel,
		SavedAt:        time.Now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[executionID] = rec
	return nil
}

func (m *MemStore) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) ListExecutions(ctx context.Context, tenantID string, limit int) ([]*ExecutionRecord, error) {
	m.mu.RLock()
	var out []*ExecutionRecord
	for _, rec := range m.records {
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) DeleteExecution(ctx context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[executionID]; !ok {
		return ErrNotFound
	}
	delete(m.records, executionID)
	return nil
}

func (m *MemStore) Close() error { return nil }
