package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// runExecutionStoreSuite exercises the ExecutionStore contract against
// any backend; memory and sqlite both run it.
func runExecutionStoreSuite(t *testing.T, open func(t *testing.T) ExecutionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGetRoundTrip", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		snapshot := map[string]any{
			"execution_id": "e1",
			"workflow_id":  "wf1",
			"status":       "completed",
			"output_data":  map[string]any{"result": "pong"},
		}
		if err := s.SaveExecution(ctx, "e1", snapshot, "t1", "u1", map[string]any{"top_k": float64(3)}, true, false); err != nil {
			t.Fatal(err)
		}
		rec, err := s.GetExecution(ctx, "e1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.WorkflowID != "wf1" || rec.Status != "completed" || rec.TenantID != "t1" || rec.ExecutorID != "u1" {
			t.Errorf("record metadata %+v", rec)
		}
		if !rec.Debug || rec.EnableParallel {
			t.Errorf("flags %+v", rec)
		}
		out, _ := rec.Snapshot["output_data"].(map[string]any)
		if out["result"] != "pong" {
			t.Errorf("snapshot %v", rec.Snapshot)
		}
		if rec.Config["top_k"] != float64(3) {
			t.Errorf("config %v", rec.Config)
		}
		if rec.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
	})

	t.Run("SaveTwiceConvergesOnFinalState", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		running := map[string]any{"workflow_id": "wf1", "status": "running"}
		done := map[string]any{"workflow_id": "wf1", "status": "completed"}
		if err := s.SaveExecution(ctx, "e1", running, "t1", "u1", nil, false, false); err != nil {
			t.Fatal(err)
		}
		if err := s.SaveExecution(ctx, "e1", done, "t1", "u1", nil, false, true); err != nil {
			t.Fatal(err)
		}
		rec, err := s.GetExecution(ctx, "e1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status != "completed" || !rec.EnableParallel {
			t.Errorf("second save did not replace: %+v", rec)
		}
		all, err := s.ListExecutions(ctx, "t1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 {
			t.Errorf("upsert produced %d rows", len(all))
		}
	})

	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		if _, err := s.GetExecution(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListFiltersByTenantNewestFirst", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("e%d", i)
			snap := map[string]any{"workflow_id": "wf1", "status": "completed"}
			if err := s.SaveExecution(ctx, id, snap, "t1", "u1", nil, false, false); err != nil {
				t.Fatal(err)
			}
			time.Sleep(2 * time.Millisecond) // distinct saved_at ordering
		}
		if err := s.SaveExecution(ctx, "other", map[string]any{"workflow_id": "wf2"}, "t2", "u2", nil, false, false); err != nil {
			t.Fatal(err)
		}

		recs, err := s.ListExecutions(ctx, "t1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 records for t1, got %d", len(recs))
		}
		if recs[0].ExecutionID != "e2" {
			t.Errorf("newest-first ordering broken: first is %s", recs[0].ExecutionID)
		}

		limited, err := s.ListExecutions(ctx, "t1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 2 {
			t.Errorf("limit ignored: got %d", len(limited))
		}
	})

	t.Run("DeleteRemovesRecord", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		if err := s.SaveExecution(ctx, "e1", map[string]any{"workflow_id": "wf1"}, "t1", "u1", nil, false, false); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteExecution(ctx, "e1"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetExecution(ctx, "e1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("record survived delete: %v", err)
		}
		if err := s.DeleteExecution(ctx, "e1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("double delete returned %v", err)
		}
	})
}
