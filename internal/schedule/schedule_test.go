package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/store"
	"github.com/buildd-ai/coordinatord/internal/tasks"
)

func TestValidateCronRejectsGarbage(t *testing.T) {
	if err := ValidateCron("not a cron", time.UTC); err == nil {
		t.Error("expected invalid cron expression to fail validation")
	}
}

func TestNextRunAtRespectsTimezone(t *testing.T) {
	next, err := NextRunAt("0 9 * * *", "America/New_York", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NextRunAt failed: %v", err)
	}
	if next.Location() != time.UTC {
		t.Errorf("expected UTC-normalized result, got %s", next.Location())
	}
}

func TestTaskTemplateRenderSubstitutesTriggerValue(t *testing.T) {
	tmpl := TaskTemplate{Title: "New item: {{triggerValue}}", Description: "Handle {{triggerValue}} please"}
	rendered := tmpl.Render("issue-42")
	if rendered.Title != "New item: issue-42" {
		t.Errorf("unexpected title: %q", rendered.Title)
	}
	if rendered.Description != "Handle issue-42 please" {
		t.Errorf("unexpected description: %q", rendered.Description)
	}
}

func TestSchedulerTickInstantiatesTaskAndAdvances(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	scheduleStore := NewStore(db)
	sc := New("ws-1", "nightly sweep", "*/1 * * * *", "UTC", TaskTemplate{Title: "sweep", Priority: 3})
	past := time.Now().Add(-time.Minute)
	sc.NextRunAt = &past
	if err := scheduleStore.Save(sc); err != nil {
		t.Fatal(err)
	}

	sched := NewScheduler(db, nil)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	taskStore := tasks.NewStore(db)
	live, err := taskStore.CountLiveFromSchedule(sc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if live != 1 {
		t.Fatalf("expected 1 live task instantiated, got %d", live)
	}

	reloaded, err := scheduleStore.GetByID(sc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.TotalRuns != 1 {
		t.Errorf("expected totalRuns=1, got %d", reloaded.TotalRuns)
	}
	if reloaded.NextRunAt == nil || !reloaded.NextRunAt.After(past) {
		t.Errorf("expected nextRunAt advanced, got %v", reloaded.NextRunAt)
	}
}

func TestSchedulerSkipsInstantiationAtCapacityWithoutCountingFailure(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	scheduleStore := NewStore(db)
	taskStore := tasks.NewStore(db)

	sc := New("ws-1", "capped", "*/1 * * * *", "UTC", TaskTemplate{Title: "capped", Priority: 1})
	sc.MaxConcurrentFromSchedule = 1
	past := time.Now().Add(-time.Minute)
	sc.NextRunAt = &past
	if err := scheduleStore.Save(sc); err != nil {
		t.Fatal(err)
	}

	existing := tasks.New("ws-1", "already running", "", 1)
	existing.Status = tasks.StatusRunning
	existing.Context = map[string]any{"scheduleId": sc.ID}
	if err := taskStore.Save(existing); err != nil {
		t.Fatal(err)
	}

	sched := NewScheduler(db, nil)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloaded, err := scheduleStore.GetByID(sc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.TotalRuns != 0 {
		t.Errorf("expected no new run while at capacity, got totalRuns=%d", reloaded.TotalRuns)
	}
	if reloaded.ConsecutiveFailures != 0 {
		t.Errorf("capacity skip must not count as a failure, got %d", reloaded.ConsecutiveFailures)
	}
}
