package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemStoreSuite(t *testing.T) {
	runExecutionStoreSuite(t, func(t *testing.T) ExecutionStore {
		return NewMemStore()
	})
}

func TestMemStoreConcurrentSaves(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("e%d", i)
			snap := map[string]any{"workflow_id": "wf1", "status": "completed"}
			if err := s.SaveExecution(ctx, id, snap, "t1", "u1", nil, false, false); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	recs, err := s.ListExecutions(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 20 {
		t.Errorf("expected 20 records, got %d", len(recs))
	}
}

func TestMemStoreGetReturnsCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if err := s.SaveExecution(ctx, "e1", map[string]any{"workflow_id": "wf1", "status": "completed"}, "t1", "u1", nil, false, false); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	rec.Status = "mutated"
	again, err := s.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != "completed" {
		t.Error("caller mutation leaked into the store")
	}
}
