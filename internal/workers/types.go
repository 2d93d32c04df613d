// Package workers implements the Worker record: one execution attempt
// against one task, owned by an agent account.
package workers

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a worker.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusIdle         Status = "idle"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusStale        Status = "stale"
)

// ActiveStatuses are the statuses counted against a worker's account's
// maxConcurrentWorkers limit (§4.3 step 1).
var ActiveStatuses = []Status{StatusStarting, StatusRunning, StatusWaitingInput, StatusIdle}

// IsActive reports whether status counts toward concurrency admission.
func IsActive(s Status) bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}

// MilestoneCap is the bounded sliding window enforced at persist time
// (spec.md §4.2, testable property 4).
const MilestoneCap = 50

// Milestone is one entry in a worker's append-only, persist-time-truncated
// progress log.
type Milestone struct {
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"ts"`
	Progress  *float64  `json:"progress,omitempty"`
	ToolCount *int      `json:"toolCount,omitempty"`
}

// WaitingFor describes the open tool-use a worker is blocked on while in
// waiting_input (plan approval or a free-form question).
type WaitingFor struct {
	Type      string   `json:"type"`
	Prompt    string   `json:"prompt"`
	ToolUseID string   `json:"toolUseId"`
	Options   []string `json:"options,omitempty"`
}

// Worker is one execution attempt for one task.
type Worker struct {
	ID                     string       `json:"id"`
	AccountID              string       `json:"accountId"`
	TaskID                 string       `json:"taskId"`
	WorkspaceID            string       `json:"workspaceId"`
	Branch                 string       `json:"branch,omitempty"`
	Status                 Status       `json:"status"`
	StartedAt              *time.Time   `json:"startedAt,omitempty"`
	CompletedAt            *time.Time   `json:"completedAt,omitempty"`
	Error                  string       `json:"error,omitempty"`
	CostUSD                float64      `json:"costUsd"`
	Turns                  int          `json:"turns"`
	InputTokens            int          `json:"inputTokens"`
	OutputTokens           int          `json:"outputTokens"`
	LocalUiURL             string       `json:"localUiUrl,omitempty"`
	CurrentAction          string       `json:"currentAction,omitempty"`
	Milestones             []Milestone  `json:"milestones,omitempty"`
	WaitingFor             *WaitingFor  `json:"waitingFor,omitempty"`
	LastCommitSha          string       `json:"lastCommitSha,omitempty"`
	CommitCount            int          `json:"commitCount"`
	FilesChanged           int          `json:"filesChanged"`
	LinesAdded             int          `json:"linesAdded"`
	LinesRemoved           int          `json:"linesRemoved"`
	PRUrl                  string       `json:"prUrl,omitempty"`
	PRNumber               int          `json:"prNumber,omitempty"`
	PendingInstructions    string       `json:"pendingInstructions,omitempty"`
	PlanStartMessageIndex  *int         `json:"planStartMessageIndex,omitempty"`
	PlanContent            string       `json:"planContent,omitempty"`
	SessionGeneration      int          `json:"sessionGeneration"`
	ResultMeta             map[string]any `json:"resultMeta,omitempty"`
	LastActivityAt         time.Time    `json:"lastActivityAt"`
	CreatedAt              time.Time    `json:"createdAt"`
	UpdatedAt              time.Time    `json:"updatedAt"`
}

// New creates a worker in its initial `starting` state for a freshly
// claimed task.
func New(accountID, taskID, workspaceID string) *Worker {
	now := time.Now()
	return &Worker{
		ID:                "WRK-" + uuid.NewString(),
		AccountID:         accountID,
		TaskID:            taskID,
		WorkspaceID:       workspaceID,
		Status:            StatusStarting,
		SessionGeneration: 1,
		LastActivityAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// TouchActivity bumps LastActivityAt; called on every PATCH, matching
// the stale-checker's use of "no activity" as its clock.
func (w *Worker) TouchActivity() {
	w.LastActivityAt = time.Now()
	w.UpdatedAt = w.LastActivityAt
}

// AppendMilestone adds a milestone and truncates to MilestoneCap most
// recent entries; the cap is enforced here, at the point of mutation
// immediately before persistence, not at read time.
func (w *Worker) AppendMilestone(m Milestone) {
	w.Milestones = append(w.Milestones, m)
	if len(w.Milestones) > MilestoneCap {
		w.Milestones = w.Milestones[len(w.Milestones)-MilestoneCap:]
	}
}

// IsPlanning reports whether the worker has entered plan mode (extends
// the stale threshold per §4.8).
func (w *Worker) IsPlanning() bool {
	return w.PlanStartMessageIndex != nil
}

// Reactivate transitions a completed/failed worker back to running,
// incrementing sessionGeneration and clearing terminal fields (§4.2).
func (w *Worker) Reactivate() {
	w.SessionGeneration++
	w.Status = StatusRunning
	w.CompletedAt = nil
	w.Error = ""
	w.TouchActivity()
}
