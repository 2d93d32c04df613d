// internal/tasks/store_test.go
package tasks

import (
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(db), cleanup
}

func TestStoreSaveAndLoad(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	task := New("ws-1", "Test task", "Description", 3)

	if err := s.Save(task); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.GetByID(task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if loaded.Title != task.Title {
		t.Errorf("title mismatch: %q != %q", loaded.Title, task.Title)
	}
	if loaded.Priority != task.Priority {
		t.Errorf("priority mismatch: %d != %d", loaded.Priority, task.Priority)
	}
}

func TestStoreGetByStatus(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	t1 := New("ws-1", "Task 1", "", 3)
	time.Sleep(1 * time.Millisecond)
	t2 := New("ws-1", "Task 2", "", 3)
	t2.Status = StatusAssigned

	if err := s.Save(t1); err != nil {
		t.Fatalf("Save t1 failed: %v", err)
	}
	if err := s.Save(t2); err != nil {
		t.Fatalf("Save t2 failed: %v", err)
	}

	pending, err := s.GetByStatus("ws-1", StatusPending)
	if err != nil {
		t.Fatal(err)
	}

	if len(pending) != 1 {
		t.Errorf("expected 1 pending task, got %d", len(pending))
	}
}

func TestStoreRoundTripsBlockedByAndContext(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	task := New("ws-1", "Blocked task", "", 5)
	task.BlockedByTaskIDs = []string{"TASK-1", "TASK-2"}
	task.Status = StatusBlocked
	task.Context = map[string]any{"skillSlugs": []any{"go-review"}}

	if err := s.Save(task); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.GetByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.BlockedByTaskIDs) != 2 {
		t.Fatalf("expected 2 blockers, got %d", len(loaded.BlockedByTaskIDs))
	}
	if loaded.Context["skillSlugs"] == nil {
		t.Error("expected context to round-trip")
	}
}

func TestGetBlockingOn(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	blocker := New("ws-1", "Blocker", "", 5)
	blocker.Status = StatusCompleted
	blocked := New("ws-1", "Blocked", "", 5)
	blocked.Status = StatusBlocked
	blocked.BlockedByTaskIDs = []string{blocker.ID}

	if err := s.Save(blocker); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(blocked); err != nil {
		t.Fatal(err)
	}

	successors, err := s.GetBlockingOn(blocker.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(successors) != 1 || successors[0].ID != blocked.ID {
		t.Fatalf("expected to find the blocked successor, got %v", successors)
	}
}
