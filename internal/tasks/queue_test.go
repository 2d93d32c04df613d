// internal/tasks/queue_test.go
package tasks

import (
	"testing"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue()

	q.Add(New("ws-1", "Low priority", "", 1))
	q.Add(New("ws-1", "Critical", "", 9))
	q.Add(New("ws-1", "Medium", "", 4))

	task := q.Peek()
	if task.Priority != 9 {
		t.Errorf("expected priority 9, got %d", task.Priority)
	}
}

func TestQueueRemovesTask(t *testing.T) {
	q := NewQueue()
	t1 := New("ws-1", "Task 1", "", 3)
	q.Add(t1)
	q.Add(New("ws-1", "Task 2", "", 3))

	if q.Len() != 2 {
		t.Errorf("expected 2 tasks, got %d", q.Len())
	}

	q.Remove(t1.ID)

	if q.Len() != 1 {
		t.Errorf("expected 1 task after remove, got %d", q.Len())
	}
}

func TestQueueGetByID(t *testing.T) {
	q := NewQueue()
	task := New("ws-1", "Find me", "", 3)
	q.Add(task)

	found := q.GetByID(task.ID)
	if found == nil {
		t.Error("expected to find task by ID")
	}
	if found.Title != "Find me" {
		t.Errorf("wrong task returned")
	}
}

func TestQueueGetByStatus(t *testing.T) {
	q := NewQueue()
	t1 := New("ws-1", "Pending 1", "", 3)
	t2 := New("ws-1", "Pending 2", "", 3)
	t3 := New("ws-1", "Assigned", "", 3)
	t3.Status = StatusAssigned

	q.Add(t1)
	q.Add(t2)
	q.Add(t3)

	pending := q.GetByStatus(StatusPending)
	if len(pending) != 2 {
		t.Errorf("expected 2 pending tasks, got %d", len(pending))
	}
}

func TestQueuePeekSkipsNonPending(t *testing.T) {
	q := NewQueue()
	t1 := New("ws-1", "Claimed already", "", 9)
	t1.Status = StatusAssigned
	q.Add(t1)
	q.Add(New("ws-1", "Still pending", "", 1))

	task := q.Peek()
	if task == nil || task.Title != "Still pending" {
		t.Error("expected Peek to skip the non-pending, higher-priority task")
	}
}
