package reassign

import (
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/store"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/buildd-ai/coordinatord/internal/workers"
)

func TestReassignPendingTaskReemitsAssigned(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	taskStore := tasks.NewStore(db)
	task := tasks.New("ws-1", "do a thing", "", 5)
	if err := taskStore.Save(task); err != nil {
		t.Fatal(err)
	}

	bus := dispatch.NewBus(nil)
	go bus.Run()
	r := NewReassigner(db, bus)

	outcome, err := r.ReassignTask(task.ID, false, false)
	if err != nil {
		t.Fatalf("ReassignTask failed: %v", err)
	}
	if !outcome.Reassigned || outcome.WasAssigned {
		t.Errorf("unexpected outcome for pending task: %+v", outcome)
	}
}

func TestReassignRunningTaskWithoutForceReportsTakeover(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	taskStore := tasks.NewStore(db)
	task := tasks.New("ws-1", "do a thing", "", 5)
	task.Status = tasks.StatusRunning
	expires := time.Now().Add(-time.Minute)
	task.ExpiresAt = &expires
	if err := taskStore.Save(task); err != nil {
		t.Fatal(err)
	}

	r := NewReassigner(db, nil)
	outcome, err := r.ReassignTask(task.ID, false, false)
	if err != nil {
		t.Fatalf("ReassignTask failed: %v", err)
	}
	if outcome.Reassigned {
		t.Errorf("expected no reassignment without force")
	}
	if !outcome.CanTakeover {
		t.Errorf("expected canTakeover=true for an expired lease")
	}
}

func TestReassignForceFailsActiveWorkersAndResetsTask(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	taskStore := tasks.NewStore(db)
	workerStore := workers.NewStore(db)

	task := tasks.New("ws-1", "do a thing", "", 5)
	task.Status = tasks.StatusRunning
	task.ClaimedBy = "WRK-old"
	if err := taskStore.Save(task); err != nil {
		t.Fatal(err)
	}

	w := workers.New("acct-1", task.ID, "ws-1")
	w.ID = "WRK-old"
	w.Status = workers.StatusRunning
	if err := workerStore.Save(w); err != nil {
		t.Fatal(err)
	}

	r := NewReassigner(db, nil)
	outcome, err := r.ReassignTask(task.ID, true, true)
	if err != nil {
		t.Fatalf("ReassignTask failed: %v", err)
	}
	if !outcome.Reassigned || !outcome.WasAssigned {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	reloaded, err := taskStore.GetByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != tasks.StatusPending || reloaded.ClaimedBy != "" {
		t.Errorf("expected task reset to pending and unclaimed, got %+v", reloaded)
	}

	failedWorker, err := workerStore.GetByID("WRK-old")
	if err != nil {
		t.Fatal(err)
	}
	if failedWorker.Status != workers.StatusFailed || failedWorker.Error != "Task was reassigned" {
		t.Errorf("expected old worker failed with reassignment error, got %+v", failedWorker)
	}
}

func TestReassignTerminalTaskReturnsAlready(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	taskStore := tasks.NewStore(db)
	task := tasks.New("ws-1", "do a thing", "", 5)
	task.Status = tasks.StatusCompleted
	if err := taskStore.Save(task); err != nil {
		t.Fatal(err)
	}

	r := NewReassigner(db, nil)
	outcome, err := r.ReassignTask(task.ID, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reassigned || outcome.Reason != "already completed" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}
