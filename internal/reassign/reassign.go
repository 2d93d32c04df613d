// Package reassign implements stale-worker recovery and task reassignment
// (spec.md §4.8). It owns no storage of its own; it operates directly on
// the tasks and workers stores under the same database used by the Claim
// Engine.
package reassign

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/buildd-ai/coordinatord/internal/workers"
)

// StaleThreshold is how long a running worker may go without activity
// before it is marked stale.
const StaleThreshold = 5 * time.Minute

// PlanStaleThreshold extends the window while the worker is planning,
// since plan synthesis is legitimately quiet (spec.md §4.8).
const PlanStaleThreshold = 15 * time.Minute

// CheckInterval matches the teacher's heartbeat-checker cadence, run
// server-side and by each runner.
const CheckInterval = 60 * time.Second

// Checker periodically marks inactive workers stale and fails their tasks.
type Checker struct {
	db          *sql.DB
	taskStore   *tasks.Store
	workerStore *workers.Store
	bus         *dispatch.Bus
}

// NewChecker builds a stale-recovery checker over the shared database.
func NewChecker(db *sql.DB, bus *dispatch.Bus) *Checker {
	return &Checker{
		db:          db,
		taskStore:   tasks.NewStore(db),
		workerStore: workers.NewStore(db),
		bus:         bus,
	}
}

// Run starts the periodic stale-check loop; call it in its own goroutine.
func (c *Checker) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	log.Printf("[REASSIGN] stale checker starting (interval=%v, threshold=%v, planThreshold=%v)", CheckInterval, StaleThreshold, PlanStaleThreshold)

	for {
		select {
		case <-stop:
			log.Printf("[REASSIGN] stale checker stopping")
			return
		case <-ticker.C:
			if err := c.CheckOnce(); err != nil {
				log.Printf("[REASSIGN] stale check failed: %v", err)
			}
		}
	}
}

// CheckOnce scans running workers for staleness (workers in any other
// status, waiting_input included, are never considered) and fails the
// task of every worker it marks stale. It runs only from Run; no HTTP
// route calls it.
func (c *Checker) CheckOnce() error {
	rows, err := c.db.Query(`SELECT id, task_id, status, plan_start_message_index, last_activity_at FROM workers WHERE status = ?`, workers.StatusRunning)
	if err != nil {
		return fmt.Errorf("query running workers: %w", err)
	}
	type candidate struct {
		id, taskID     string
		planning       bool
		lastActivityAt time.Time
	}
	var candidates []candidate
	for rows.Next() {
		var cand candidate
		var planIdx sql.NullInt64
		if err := rows.Scan(&cand.id, &cand.taskID, new(string), &planIdx, &cand.lastActivityAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan worker row: %w", err)
		}
		cand.planning = planIdx.Valid
		candidates = append(candidates, cand)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	for _, cand := range candidates {
		threshold := StaleThreshold
		if cand.planning {
			threshold = PlanStaleThreshold
		}
		if now.Sub(cand.lastActivityAt) <= threshold {
			continue
		}
		if err := c.markStale(cand.id, cand.taskID); err != nil {
			log.Printf("[REASSIGN] failed to mark worker %s stale: %v", cand.id, err)
		}
	}
	return nil
}

func (c *Checker) markStale(workerID, taskID string) error {
	w, err := c.workerStore.GetByID(workerID)
	if err != nil {
		return err
	}
	w.Status = workers.StatusStale
	w.TouchActivity()
	if err := c.workerStore.Save(w); err != nil {
		return err
	}

	task, err := c.taskStore.GetByID(taskID)
	if err != nil {
		return err
	}
	if task != nil && !task.IsTerminal() {
		if task.Status == tasks.StatusAssigned {
			_ = task.TransitionTo(tasks.StatusRunning)
		}
		if err := task.TransitionTo(tasks.StatusFailed); err == nil {
			task.UpdatedAt = time.Now()
			if err := c.taskStore.Save(task); err != nil {
				return err
			}
			if c.bus != nil {
				c.bus.Publish(dispatch.Event{
					Channel: dispatch.WorkerChannel(workerID),
					Type:    dispatch.EventWorkerFailed,
					Payload: map[string]any{"worker": w, "reason": "stale"},
				})
			}
		}
	}
	log.Printf("[REASSIGN] worker %s marked stale, task %s failed", workerID, taskID)
	return nil
}

// Outcome is the result of a ReassignTask call.
type Outcome struct {
	Reassigned  bool   `json:"reassigned"`
	WasAssigned bool   `json:"wasAssigned,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CanTakeover bool   `json:"canTakeover,omitempty"`
}

// Reassigner resolves the ReassignTask operation (spec.md §4.8).
type Reassigner struct {
	db          *sql.DB
	taskStore   *tasks.Store
	workerStore *workers.Store
	bus         *dispatch.Bus
}

// NewReassigner builds a Reassigner over the shared database.
func NewReassigner(db *sql.DB, bus *dispatch.Bus) *Reassigner {
	return &Reassigner{db: db, taskStore: tasks.NewStore(db), workerStore: workers.NewStore(db), bus: bus}
}

// ReassignTask implements spec.md §4.8's state machine.
func (r *Reassigner) ReassignTask(taskID string, force, isWorkspaceOwner bool) (*Outcome, error) {
	task, err := r.taskStore.GetByID(taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil {
		return nil, kernelerr.NotFoundf("task %s not found", taskID)
	}

	switch task.Status {
	case tasks.StatusCompleted, tasks.StatusFailed:
		return &Outcome{Reassigned: false, Reason: "already " + string(task.Status)}, nil

	case tasks.StatusPending:
		r.publishTaskAssigned(task, "")
		return &Outcome{Reassigned: true, WasAssigned: false}, nil

	case tasks.StatusAssigned, tasks.StatusRunning:
		isStale := task.ExpiresAt != nil && task.ExpiresAt.Before(time.Now())
		canTakeover := isWorkspaceOwner || isStale

		if !force {
			return &Outcome{Reassigned: false, Reason: "reassignment requires force or ownership/staleness", CanTakeover: canTakeover}, nil
		}
		if !canTakeover {
			return nil, kernelerr.New(kernelerr.Forbidden, "not stale and not the workspace owner")
		}

		if err := r.failActiveWorkersForTask(taskID); err != nil {
			return nil, err
		}

		task.Status = tasks.StatusPending
		task.ClaimedBy = ""
		task.ClaimedAt = nil
		task.ExpiresAt = nil
		task.UpdatedAt = time.Now()
		if err := r.taskStore.Save(task); err != nil {
			return nil, fmt.Errorf("reset task to pending: %w", err)
		}
		r.publishTaskAssigned(task, "")
		return &Outcome{Reassigned: true, WasAssigned: true}, nil

	default:
		return &Outcome{Reassigned: false, Reason: fmt.Sprintf("cannot reassign task in status %s", task.Status)}, nil
	}
}

func (r *Reassigner) failActiveWorkersForTask(taskID string) error {
	ws, err := r.workerStore.GetByTask(taskID)
	if err != nil {
		return fmt.Errorf("load workers for task: %w", err)
	}
	for _, w := range ws {
		if !workers.IsActive(w.Status) {
			continue
		}
		w.Status = workers.StatusFailed
		w.Error = "Task was reassigned"
		w.TouchActivity()
		now := time.Now()
		w.CompletedAt = &now
		if err := r.workerStore.Save(w); err != nil {
			return fmt.Errorf("fail worker %s: %w", w.ID, err)
		}
		if r.bus != nil {
			r.bus.Publish(dispatch.Event{
				Channel: dispatch.WorkerChannel(w.ID),
				Type:    dispatch.EventWorkerFailed,
				Payload: map[string]any{"worker": w, "reason": "reassigned"},
			})
		}
	}
	return nil
}

func (r *Reassigner) publishTaskAssigned(task *tasks.Task, targetLocalUiURL string) {
	if r.bus == nil {
		return
	}
	payload := map[string]any{"task": task}
	if targetLocalUiURL != "" {
		payload["targetLocalUiUrl"] = targetLocalUiURL
	}
	r.bus.Publish(dispatch.Event{
		Channel: dispatch.WorkspaceChannel(task.WorkspaceID),
		Type:    dispatch.EventTaskAssigned,
		Payload: payload,
	})
}
