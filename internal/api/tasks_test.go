package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/tasks"
)

// TestTaskStartRedispatchesPendingTask covers spec.md §6 "Dispatch pending
// task": starting a pending task succeeds, leaves it pending (assignment
// is the Claim Engine's job, not this endpoint's), and reports
// {started,targetLocalUiUrl}.
func TestTaskStartRedispatchesPendingTask(t *testing.T) {
	s, cleanup := newTestServer(t, 5)
	defer cleanup()
	r := s.Router()

	task := seedPendingTask(t, s, "ws-1")

	w := doRequest(t, r, http.MethodPost, "/tasks/"+task.ID+"/start", map[string]any{"targetLocalUiUrl": "http://localhost:4000"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Started          bool   `json:"started"`
		TargetLocalUiURL string `json:"targetLocalUiUrl"`
	}
	decodeBody(t, w, &body)
	if !body.Started {
		t.Error("expected started=true")
	}
	if body.TargetLocalUiURL != "http://localhost:4000" {
		t.Errorf("expected targetLocalUiUrl echoed back, got %q", body.TargetLocalUiURL)
	}

	reloaded, err := s.taskStore.GetByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != tasks.StatusPending {
		t.Errorf("expected task to remain pending after /start, got %s", reloaded.Status)
	}
}

// TestTaskStartWithoutBodySucceeds covers the optional-body case: no
// targetLocalUiUrl means any eligible runner may claim.
func TestTaskStartWithoutBodySucceeds(t *testing.T) {
	s, cleanup := newTestServer(t, 5)
	defer cleanup()
	r := s.Router()

	task := seedPendingTask(t, s, "ws-1")

	w := doRequest(t, r, http.MethodPost, "/tasks/"+task.ID+"/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// TestTaskStartRejectsNonPendingTask covers the guard: /start only applies
// to pending tasks.
func TestTaskStartRejectsNonPendingTask(t *testing.T) {
	s, cleanup := newTestServer(t, 5)
	defer cleanup()
	r := s.Router()

	task := seedPendingTask(t, s, "ws-1")
	task.Status = tasks.StatusAssigned
	if err := s.taskStore.Save(task); err != nil {
		t.Fatal(err)
	}

	w := doRequest(t, r, http.MethodPost, "/tasks/"+task.ID+"/start", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a non-pending task, got %d: %s", w.Code, w.Body.String())
	}
}

// TestReassignForbiddenWithoutStalenessOrOwnership covers the 403 reason
// contract: force-reassigning an active, non-stale task without workspace
// ownership is forbidden, with a reason in the body.
func TestReassignForbiddenWithoutStalenessOrOwnership(t *testing.T) {
	s, cleanup := newTestServer(t, 5)
	defer cleanup()
	r := s.Router()

	task := seedPendingTask(t, s, "ws-1")
	claimWorker(t, s, r, task.ID)

	reloaded, err := s.taskStore.GetByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	reloaded.ExpiresAt = &future
	if err := s.taskStore.Save(reloaded); err != nil {
		t.Fatal(err)
	}

	w := doRequest(t, r, http.MethodPost, "/tasks/"+task.ID+"/reassign?force=true", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["error"] == nil || body["error"] == "" {
		t.Errorf("expected a reason in the 403 body, got %v", body)
	}
}

// TestReassignWithoutForceReportsCanTakeover covers the non-force path:
// it never mutates state and reports whether a takeover is possible.
func TestReassignWithoutForceReportsCanTakeover(t *testing.T) {
	s, cleanup := newTestServer(t, 5)
	defer cleanup()
	r := s.Router()

	task := seedPendingTask(t, s, "ws-1")
	claimWorker(t, s, r, task.ID)

	w := doRequest(t, r, http.MethodPost, "/tasks/"+task.ID+"/reassign", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Reassigned  bool `json:"reassigned"`
		CanTakeover bool `json:"canTakeover"`
	}
	decodeBody(t, w, &body)
	if body.Reassigned {
		t.Error("expected reassigned=false without force")
	}
	if body.CanTakeover {
		t.Error("expected canTakeover=false for a fresh lease without workspace ownership")
	}
}
