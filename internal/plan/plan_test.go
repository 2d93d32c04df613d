package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildd-ai/coordinatord/internal/store"
	"github.com/buildd-ai/coordinatord/internal/workers"
)

func setupTestPlanStore(t *testing.T) (*Store, *workers.Store, func()) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	workerStore := workers.NewStore(db)
	return NewStore(workerStore, nil), workerStore, cleanup
}

func TestEnterAndExitPlanModeCapturesContentAfterIndex(t *testing.T) {
	s, workerStore, cleanup := setupTestPlanStore(t)
	defer cleanup()

	w := workers.New("acct-1", "TASK-1", "ws-1")
	if err := workerStore.Save(w); err != nil {
		t.Fatal(err)
	}

	if err := s.EnterPlanMode(w.ID, 2); err != nil {
		t.Fatalf("EnterPlanMode failed: %v", err)
	}

	messages := []string{"msg0", "msg1", "msg2", "plan part one", "plan part two"}
	content, err := s.ExitPlanMode(w.ID, "tu-1", messages)
	if err != nil {
		t.Fatalf("ExitPlanMode failed: %v", err)
	}
	if content != "plan part oneplan part two" {
		t.Errorf("unexpected plan content: %q", content)
	}

	loaded, err := workerStore.GetByID(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != workers.StatusWaitingInput {
		t.Errorf("expected waiting_input, got %s", loaded.Status)
	}
	if loaded.WaitingFor == nil || loaded.WaitingFor.ToolUseID != "tu-1" {
		t.Fatalf("expected waitingFor to be recorded, got %+v", loaded.WaitingFor)
	}

	if _, err := os.Stat(filepath.Join(PlansDir(), w.ID+".md")); err != nil {
		t.Errorf("expected plan file on disk: %v", err)
	}
}

func TestRespondChangeRequestStartsNewGeneration(t *testing.T) {
	s, workerStore, cleanup := setupTestPlanStore(t)
	defer cleanup()

	w := workers.New("acct-1", "TASK-1", "ws-1")
	w.Status = workers.StatusWaitingInput
	w.WaitingFor = &workers.WaitingFor{Type: "plan_approval", ToolUseID: "tu-1", Options: PlanOptions}
	w.SessionGeneration = 1
	if err := workerStore.Save(w); err != nil {
		t.Fatal(err)
	}

	res, err := s.Respond(w.ID, "please also add tests")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if res.Disposition != ChangeRequest || !res.NewGeneration {
		t.Errorf("expected change-request resolution, got %+v", res)
	}

	loaded, err := workerStore.GetByID(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SessionGeneration != 2 {
		t.Errorf("expected sessionGeneration bumped to 2, got %d", loaded.SessionGeneration)
	}
	if loaded.Status != workers.StatusRunning {
		t.Errorf("expected worker resumed to running, got %s", loaded.Status)
	}
}

func TestRespondApproveBypass(t *testing.T) {
	s, workerStore, cleanup := setupTestPlanStore(t)
	defer cleanup()

	w := workers.New("acct-1", "TASK-1", "ws-1")
	w.Status = workers.StatusWaitingInput
	w.WaitingFor = &workers.WaitingFor{Type: "plan_approval", ToolUseID: "tu-1", Options: PlanOptions}
	if err := workerStore.Save(w); err != nil {
		t.Fatal(err)
	}

	res, err := s.Respond(w.ID, "Approve & implement (bypass permissions)")
	if err != nil {
		t.Fatal(err)
	}
	if res.Disposition != ApproveBypass || !res.BypassPerms {
		t.Errorf("expected bypass approval, got %+v", res)
	}
}
