// Package plan implements the Plan Approval Subsystem: capturing a
// worker's plan-mode output, pausing for human review, and resuming with
// one of three dispositions (spec.md §4.6).
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/workers"
)

// Disposition is a recognized response to a pending plan.
type Disposition string

const (
	ApproveBypass Disposition = "approve_bypass"
	ApproveReview Disposition = "approve_review"
	ChangeRequest Disposition = "change_request"
)

// PlanOptions are the three choices surfaced to the user, verbatim
// per spec.md §4.6.
var PlanOptions = []string{"bypass", "review", "request_changes"}

// PlansDir is the durable storage root for rendered plan content. The
// kernel only exposes the filename contract; writing the markdown file
// is a collaborator concern.
func PlansDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".buildd", "plans")
}

// PlanPath returns the durable storage path for a worker's plan.
func PlanPath(workerID string) string {
	return filepath.Join(PlansDir(), workerID+".md")
}

// Store persists and resumes plan-mode workers.
type Store struct {
	workers *workers.Store
	bus     *dispatch.Bus
}

// NewStore builds a plan subsystem view over the shared worker store.
func NewStore(workerStore *workers.Store, bus *dispatch.Bus) *Store {
	return &Store{workers: workerStore, bus: bus}
}

// EnterPlanMode records the message index at which the agent entered
// plan mode (step 0 of §4.6, captured before ExitPlanMode fires).
func (s *Store) EnterPlanMode(workerID string, messageIndex int) error {
	w, err := s.workers.GetByID(workerID)
	if err != nil {
		return err
	}
	if w == nil {
		return kernelerr.NotFoundf("worker %s not found", workerID)
	}
	w.PlanStartMessageIndex = &messageIndex
	w.CurrentAction = "Planning..."
	w.TouchActivity()
	return s.workers.Save(w)
}

// ExitPlanMode implements §4.6 steps 1-5: extracts plan content from the
// assistant messages after planStartMessageIndex, writes it to durable
// storage, and transitions the worker to waiting_input.
func (s *Store) ExitPlanMode(workerID, toolUseID string, assistantMessages []string) (string, error) {
	w, err := s.workers.GetByID(workerID)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", kernelerr.NotFoundf("worker %s not found", workerID)
	}
	if w.PlanStartMessageIndex == nil {
		return "", kernelerr.Invalidf("worker %s never entered plan mode", workerID)
	}

	start := *w.PlanStartMessageIndex
	var content string
	for i, msg := range assistantMessages {
		if i > start {
			content += msg
		}
	}

	if err := writePlanFile(workerID, content); err != nil {
		return "", fmt.Errorf("persist plan content: %w", err)
	}

	w.PlanContent = content
	w.Status = workers.StatusWaitingInput
	w.WaitingFor = &workers.WaitingFor{
		Type:      "plan_approval",
		Prompt:    "Review the plan and choose how to proceed.",
		ToolUseID: toolUseID,
		Options:   PlanOptions,
	}
	w.AppendMilestone(workers.Milestone{Type: "plan_awaiting", Label: "plan awaiting approval", Timestamp: time.Now()})
	w.TouchActivity()
	if err := s.workers.Save(w); err != nil {
		return "", err
	}

	if s.bus != nil {
		s.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkerChannel(workerID),
			Type:    dispatch.EventWorkerProgress,
			Payload: map[string]any{"worker": w, "milestone": "plan_awaiting"},
		})
	}
	return content, nil
}

func writePlanFile(workerID, content string) error {
	dir := PlansDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(PlanPath(workerID), []byte(content), 0o644)
}

// Resolution describes how the Plan Approval Subsystem decided to respond.
type Resolution struct {
	Disposition   Disposition
	BypassPerms   bool
	NewGeneration bool
}

// Resolve maps free-form user input to a Disposition per §4.6's three
// recognized responses; any text that doesn't match the two canonical
// approvals is a change-request.
func Resolve(response string) Disposition {
	switch response {
	case "Approve & implement (bypass permissions)":
		return ApproveBypass
	case "Approve & implement (with review)":
		return ApproveReview
	default:
		return ChangeRequest
	}
}

// Respond applies a user's plan-approval response to the worker.
func (s *Store) Respond(workerID, rawResponse string) (*Resolution, error) {
	w, err := s.workers.GetByID(workerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, kernelerr.NotFoundf("worker %s not found", workerID)
	}
	if w.Status != workers.StatusWaitingInput || w.WaitingFor == nil || w.WaitingFor.Type != "plan_approval" {
		return nil, kernelerr.Invalidf("worker %s has no pending plan approval", workerID)
	}

	disposition := Resolve(rawResponse)
	res := &Resolution{Disposition: disposition}

	switch disposition {
	case ApproveBypass:
		res.BypassPerms = true
		w.Status = workers.StatusRunning
		w.WaitingFor = nil
		w.CurrentAction = "Implementing (bypass permissions)..."
		w.TouchActivity()

	case ApproveReview:
		w.Status = workers.StatusRunning
		w.WaitingFor = nil
		w.CurrentAction = "Implementing..."
		w.TouchActivity()

	case ChangeRequest:
		res.NewGeneration = true
		w.Reactivate()
		w.CurrentAction = "Revising plan..."
		w.PendingInstructions = rawResponse
	}

	if err := s.workers.Save(w); err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkerChannel(workerID),
			Type:    dispatch.EventWorkerProgress,
			Payload: map[string]any{"worker": w, "disposition": disposition},
		})
	}
	return res, nil
}
