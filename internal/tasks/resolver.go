package tasks

import (
	"fmt"
	"time"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
)

// Resolver lifts blocked tasks once their dependencies complete
// (spec.md §4.1 "Dependency resolution", §5 "Dependency resolution").
type Resolver struct {
	store *Store
	bus   *dispatch.Bus
}

// NewResolver builds a resolver over the shared task store.
func NewResolver(store *Store, bus *dispatch.Bus) *Resolver {
	return &Resolver{store: store, bus: bus}
}

// OnTaskCompleted walks every task blocked on completedTaskID and, for
// each whose blockers are now all completed, flips it blocked -> pending
// and emits TaskUnblocked. The walk is not transactional with the
// triggering completion: each flip is independently atomic, so re-running
// the walk for the same completed task is a no-op on tasks already moved
// past blocked (spec.md §5).
func (r *Resolver) OnTaskCompleted(completedTaskID string) error {
	candidates, err := r.store.GetBlockingOn(completedTaskID)
	if err != nil {
		return fmt.Errorf("load tasks blocked on %s: %w", completedTaskID, err)
	}

	for _, candidate := range candidates {
		if candidate.Status != StatusBlocked {
			continue
		}
		allDone, err := r.allBlockersCompleted(candidate)
		if err != nil {
			return err
		}
		if !allDone {
			continue
		}
		if err := candidate.TransitionTo(StatusPending); err != nil {
			continue
		}
		candidate.UpdatedAt = time.Now()
		if err := r.store.Save(candidate); err != nil {
			return fmt.Errorf("unblock task %s: %w", candidate.ID, err)
		}
		r.publishUnblocked(candidate)
	}
	return nil
}

func (r *Resolver) allBlockersCompleted(task *Task) (bool, error) {
	for _, blockerID := range task.BlockedByTaskIDs {
		blocker, err := r.store.GetByID(blockerID)
		if err != nil {
			return false, err
		}
		if blocker == nil || blocker.Status != StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (r *Resolver) publishUnblocked(task *Task) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(dispatch.Event{
		Channel: dispatch.WorkspaceChannel(task.WorkspaceID),
		Type:    dispatch.EventTaskUnblocked,
		Payload: map[string]any{"task": task},
	})
	r.bus.Publish(dispatch.Event{
		Channel: dispatch.WorkspaceChannel(task.WorkspaceID),
		Type:    dispatch.EventTaskAssigned,
		Payload: map[string]any{"task": task},
	})
}
