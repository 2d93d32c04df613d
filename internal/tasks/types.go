// internal/tasks/types.go
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mode distinguishes a normal execution task from a planning-only one.
type Mode string

const (
	ModeExecute  Mode = "execute"
	ModePlanning Mode = "planning"
)

// OutputRequirement gates what a worker must produce before completing.
type OutputRequirement string

const (
	OutputAuto             OutputRequirement = "auto"
	OutputPRRequired       OutputRequirement = "pr_required"
	OutputArtifactRequired OutputRequirement = "artifact_required"
	OutputNone             OutputRequirement = "none"
)

// validTransitions encodes the allowed status graph from spec.md §4.1.
// It includes the reactivation edges (completed/failed -> assigned), which
// the worker PATCH handler takes through TransitionTo, and the reassignment
// edges (assigned/running -> pending); internal/reassign sets that status
// directly because it also clears the claim fields.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusBlocked},
	StatusBlocked:   {StatusPending},
	StatusAssigned:  {StatusRunning, StatusPending},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusPending},
	StatusCompleted: {StatusAssigned}, // reactivation only
	StatusFailed:    {StatusAssigned}, // reactivation only
}

// Milestone is extracted from the phase timeline on completion.
type Milestone struct {
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"ts"`
	Progress  *float64  `json:"progress,omitempty"`
	ToolCount *int      `json:"toolCount,omitempty"`
}

// Result is the snapshot populated only once a task reaches completed.
type Result struct {
	Commits          []string       `json:"commits,omitempty"`
	Files            []string       `json:"files,omitempty"`
	LastCommitSha    string         `json:"lastCommitSha,omitempty"`
	LinesAdded       int            `json:"linesAdded,omitempty"`
	LinesRemoved     int            `json:"linesRemoved,omitempty"`
	PRUrl            string         `json:"prUrl,omitempty"`
	PhaseTimeline    []Milestone    `json:"phaseTimeline,omitempty"`
	LastQuestion     string         `json:"lastQuestion,omitempty"`
	StructuredOutput map[string]any `json:"structuredOutput,omitempty"`
}

// Task is the unit of work mediated by the coordination kernel.
type Task struct {
	ID                string            `json:"id"`
	WorkspaceID       string            `json:"workspaceId"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Priority          int               `json:"priority"`
	Status            Status            `json:"status"`
	ProjectTag        string            `json:"projectTag,omitempty"`
	BlockedByTaskIDs  []string          `json:"blockedByTaskIds,omitempty"`
	Mode              Mode              `json:"mode"`
	OutputRequirement OutputRequirement `json:"outputRequirement"`
	OutputSchema      map[string]any    `json:"outputSchema,omitempty"`
	ClaimedBy         string            `json:"claimedBy,omitempty"`
	ClaimedAt         *time.Time        `json:"claimedAt,omitempty"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
	Context           map[string]any    `json:"context,omitempty"`
	Result            *Result           `json:"result,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// New creates a task with defaults applied, mirroring the teacher's
// NewTask constructor convention (auto id, zeroed optional fields).
func New(workspaceID, title, description string, priority int) *Task {
	now := time.Now()
	return &Task{
		ID:                fmt.Sprintf("TASK-%d", now.UnixNano()),
		WorkspaceID:       workspaceID,
		Title:             title,
		Description:       description,
		Priority:          priority,
		Status:            StatusPending,
		Mode:              ModeExecute,
		OutputRequirement: OutputAuto,
		Context:           make(map[string]any),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Validate checks the task carries valid field values before it is stored.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.Priority < 0 || t.Priority > 10 {
		return fmt.Errorf("priority must be between 0 and 10")
	}
	if t.WorkspaceID == "" {
		return fmt.Errorf("workspaceId is required")
	}
	switch t.OutputRequirement {
	case OutputAuto, OutputPRRequired, OutputArtifactRequired, OutputNone, "":
	default:
		return fmt.Errorf("invalid output requirement: %s", t.OutputRequirement)
	}
	if t.OutputSchema != nil {
		if _, err := compileOutputSchema(t.OutputSchema); err != nil {
			return fmt.Errorf("invalid outputSchema: %w", err)
		}
	}
	return nil
}

// compileOutputSchema validates that a caller-supplied outputSchema is
// itself a well-formed JSON Schema (spec.md §4.1 "structured output").
func compileOutputSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytesReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "task-output-schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}

// ValidateStructuredOutput checks a completed task's structuredOutput
// result against its declared outputSchema, when one was provided.
func ValidateStructuredOutput(schema map[string]any, output map[string]any) error {
	if schema == nil {
		return nil
	}
	compiled, err := compileOutputSchema(schema)
	if err != nil {
		return fmt.Errorf("compile outputSchema: %w", err)
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytesReader(raw))
	if err != nil {
		return err
	}
	if err := compiled.Validate(inst); err != nil {
		return fmt.Errorf("structuredOutput does not match outputSchema: %w", err)
	}
	return nil
}

// TransitionTo attempts to move the task to newStatus via the plain
// state graph. It changes only Status and UpdatedAt; callers that must
// also reset other fields (reassignment) do so themselves.
func (t *Task) TransitionTo(newStatus Status) error {
	allowed, ok := validTransitions[t.Status]
	if !ok {
		return fmt.Errorf("unknown current status: %s", t.Status)
	}
	for _, s := range allowed {
		if s == newStatus {
			t.Status = newStatus
			t.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s", t.Status, newStatus)
}

// IsTerminal returns true if the task is in a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsClaimable reports whether the task is eligible for the Claim Engine.
func (t *Task) IsClaimable() bool {
	return t.Status == StatusPending
}
