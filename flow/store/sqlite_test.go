package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreSuite(t *testing.T) {
	runExecutionStoreSuite(t, func(t *testing.T) ExecutionStore {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "flow.db"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	snap := map[string]any{"workflow_id": "wf1", "status": "completed", "output_data": map[string]any{"result": "pong"}}
	if err := s.SaveExecution(ctx, "e1", snap, "t1", "u1", nil, false, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	rec, err := reopened.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "completed" || !rec.EnableParallel {
		t.Errorf("record after reopen %+v", rec)
	}
	out, _ := rec.Snapshot["output_data"].(map[string]any)
	if out["result"] != "pong" {
		t.Errorf("snapshot after reopen %v", rec.Snapshot)
	}
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.SaveExecution(ctx, "e1", map[string]any{"workflow_id": "wf1", "status": "error"}, "t1", "u1", nil, false, false); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "error" {
		t.Errorf("status %q", rec.Status)
	}
}
