// internal/tasks/types_test.go
package tasks

import (
	"testing"
)

func TestTaskStatusTransitions(t *testing.T) {
	task := &Task{
		ID:          "TASK-001",
		WorkspaceID: "ws-1",
		Title:       "Test task",
		Status:      StatusPending,
		Priority:    3,
	}

	// pending -> assigned is valid
	if err := task.TransitionTo(StatusAssigned); err != nil {
		t.Errorf("expected valid transition, got: %v", err)
	}

	// assigned -> completed is invalid (must pass through running)
	task.Status = StatusAssigned
	if err := task.TransitionTo(StatusCompleted); err == nil {
		t.Error("expected invalid transition error")
	}
}

func TestTaskPriorityValidation(t *testing.T) {
	tests := []struct {
		priority int
		valid    bool
	}{
		{-1, false},
		{0, true},
		{10, true},
		{11, false},
	}

	for _, tt := range tests {
		task := &Task{WorkspaceID: "ws-1", Title: "Test", Priority: tt.priority}
		err := task.Validate()
		if tt.valid && err != nil {
			t.Errorf("priority %d should be valid, got: %v", tt.priority, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("priority %d should be invalid", tt.priority)
		}
	}
}

func TestNewTask(t *testing.T) {
	task := New("ws-1", "Test title", "Test description", 2)

	if task.ID == "" {
		t.Error("expected auto-generated ID")
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending status, got: %s", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestTaskIsTerminal(t *testing.T) {
	task := New("ws-1", "t", "", 1)
	if task.IsTerminal() {
		t.Error("new task should not be terminal")
	}
	task.Status = StatusCompleted
	if !task.IsTerminal() {
		t.Error("completed task should be terminal")
	}
}

func TestDependencyStatusInvariant(t *testing.T) {
	task := New("ws-1", "t", "", 1)
	task.BlockedByTaskIDs = []string{"TASK-1"}
	task.Status = StatusBlocked

	if task.IsClaimable() {
		t.Error("blocked task must not be claimable")
	}
	if err := task.TransitionTo(StatusPending); err != nil {
		t.Fatalf("blocked -> pending should be valid once blockers clear: %v", err)
	}
	if !task.IsClaimable() {
		t.Error("task should be claimable once unblocked")
	}
}
