package workers

import (
	"testing"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(db), cleanup
}

func TestWorkerSaveAndLoad(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	w := New("acct-1", "TASK-1", "ws-1")
	w.CurrentAction = "Analyzing..."

	if err := s.Save(w); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.GetByID(w.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.CurrentAction != "Analyzing..." {
		t.Errorf("currentAction mismatch: %q", loaded.CurrentAction)
	}
	if loaded.Status != StatusStarting {
		t.Errorf("expected starting status, got %s", loaded.Status)
	}
}

func TestMilestoneCapEnforcedOnPersist(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	w := New("acct-1", "TASK-1", "ws-1")
	for i := 0; i < 60; i++ {
		w.AppendMilestone(Milestone{Type: "phase", Label: "step"})
	}
	if len(w.Milestones) != MilestoneCap {
		t.Fatalf("in-memory append should already cap at %d, got %d", MilestoneCap, len(w.Milestones))
	}

	if err := s.Save(w); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.GetByID(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Milestones) > MilestoneCap {
		t.Errorf("expected milestones capped at %d, got %d", MilestoneCap, len(loaded.Milestones))
	}
}

func TestCountActiveForAccount(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	w1 := New("acct-1", "TASK-1", "ws-1")
	w2 := New("acct-1", "TASK-2", "ws-1")
	w2.Status = StatusCompleted
	w2.TouchActivity()

	if err := s.Save(w1); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(w2); err != nil {
		t.Fatal(err)
	}

	count, err := CountActiveForAccount(s.db, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 active worker, got %d", count)
	}
}

func TestWaitingForRoundTrip(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	w := New("acct-1", "TASK-1", "ws-1")
	w.Status = StatusWaitingInput
	w.WaitingFor = &WaitingFor{Type: "plan_approval", Prompt: "Approve?", ToolUseID: "tu-1", Options: []string{"bypass", "review", "request_changes"}}

	if err := s.Save(w); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.GetByID(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.WaitingFor == nil || loaded.WaitingFor.ToolUseID != "tu-1" {
		t.Fatalf("expected waitingFor to round-trip, got %+v", loaded.WaitingFor)
	}
	if len(loaded.WaitingFor.Options) != 3 {
		t.Errorf("expected 3 options, got %d", len(loaded.WaitingFor.Options))
	}
}
