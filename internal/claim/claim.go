// Package claim implements the Claim Engine: atomic binding of a pending
// task to a newly created worker, gated by per-account concurrency
// admission (spec.md §4.3).
package claim

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

// Account is the minimal concurrency-admission view the Claim Engine needs;
// auth/account management is a collaborator concern (spec.md §1).
type Account struct {
	ID                  string
	MaxConcurrentWorkers int
}

// AccountLookup resolves an account's concurrency limit.
type AccountLookup interface {
	GetAccount(id string) (*Account, error)
}

// Engine runs the claim algorithm against the shared database.
type Engine struct {
	db       *sql.DB
	accounts AccountLookup
	bus      *dispatch.Bus
	LeaseTTL time.Duration
}

// New creates a Claim Engine. leaseTTL defaults to 15 minutes per spec.md §5.
func New(db *sql.DB, accounts AccountLookup, bus *dispatch.Bus, leaseTTL time.Duration) *Engine {
	if leaseTTL <= 0 {
		leaseTTL = 15 * time.Minute
	}
	return &Engine{db: db, accounts: accounts, bus: bus, LeaseTTL: leaseTTL}
}

// Result is returned on a successful claim.
type Result struct {
	Worker *workers.Worker
	Task   *tasks.Task
}

// Claim runs the §4.3 algorithm. If taskID is empty, the highest-priority
// pending task in workspaceID is selected (priority desc, createdAt asc).
func (e *Engine) Claim(accountID, workspaceID, taskID string) (*Result, error) {
	account, err := e.accounts.GetAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil {
		return nil, kernelerr.NotFoundf("account %s not found", accountID)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	// Step 1: admission count, read within the same transaction as the
	// claim-UPDATE so the count and the update observe the same snapshot
	// (spec.md §5 "Admission counting").
	var current int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM workers WHERE account_id = ? AND status IN ('starting','running','waiting_input','idle')`, accountID).Scan(&current); err != nil {
		return nil, fmt.Errorf("count active workers: %w", err)
	}
	if current >= account.MaxConcurrentWorkers {
		return nil, kernelerr.CapacityExceededErr(current, account.MaxConcurrentWorkers)
	}

	// Step 2/3: resolve the target task.
	var taskRow *sql.Row
	if taskID != "" {
		taskRow = tx.QueryRow(`SELECT id, status, claimed_by FROM tasks WHERE id = ?`, taskID)
		var id, status string
		var claimedBy sql.NullString
		if err := taskRow.Scan(&id, &status, &claimedBy); err == sql.ErrNoRows {
			return nil, kernelerr.NotFoundf("task %s not found", taskID)
		} else if err != nil {
			return nil, fmt.Errorf("load task: %w", err)
		}
		if status != string(tasks.StatusPending) || claimedBy.Valid {
			return nil, kernelerr.Conflictf("task %s is not claimable (status=%s)", taskID, status)
		}
	} else {
		taskRow = tx.QueryRow(`SELECT id FROM tasks WHERE workspace_id = ? AND status = 'pending'
			ORDER BY priority DESC, created_at ASC LIMIT 1`, workspaceID)
		if err := taskRow.Scan(&taskID); err == sql.ErrNoRows {
			return nil, kernelerr.NotFoundf("no pending task available in workspace %s", workspaceID)
		} else if err != nil {
			return nil, fmt.Errorf("select pending task: %w", err)
		}
	}

	worker := workers.New(accountID, taskID, workspaceID)
	now := time.Now()
	expiresAt := now.Add(e.LeaseTTL)

	// Step 4: the atomic predicated UPDATE. A predicate miss (zero rows
	// affected) means another transaction won the race; abort as Conflict.
	res, err := tx.Exec(`
		UPDATE tasks SET status = 'assigned', claimed_by = ?, claimed_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending' AND (claimed_by IS NULL OR expires_at < ?)
	`, worker.ID, now, expiresAt, now, taskID, now)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim update rows affected: %w", err)
	}
	if affected == 0 {
		return nil, kernelerr.Conflictf("task %s was claimed by another worker", taskID)
	}

	if err := insertWorker(tx, worker); err != nil {
		return nil, fmt.Errorf("insert worker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	task, err := e.loadTask(taskID)
	if err != nil {
		log.Printf("[CLAIM] claimed task %s but failed to reload it: %v", taskID, err)
	}

	if e.bus != nil {
		e.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(workspaceID),
			Type:    dispatch.EventTaskClaimed,
			Payload: map[string]any{"taskId": taskID, "workerId": worker.ID},
		})
		e.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkerChannel(worker.ID),
			Type:    dispatch.EventWorkerStarted,
			Payload: map[string]any{"worker": worker},
		})
	}

	return &Result{Worker: worker, Task: task}, nil
}

func insertWorker(tx *sql.Tx, w *workers.Worker) error {
	_, err := tx.Exec(`
		INSERT INTO workers (id, account_id, task_id, workspace_id, status, session_generation,
			last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.AccountID, w.TaskID, w.WorkspaceID, w.Status, w.SessionGeneration,
		w.LastActivityAt, w.CreatedAt, w.UpdatedAt)
	return err
}

func (e *Engine) loadTask(id string) (*tasks.Task, error) {
	store := tasks.NewStore(e.db)
	return store.GetByID(id)
}
