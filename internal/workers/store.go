// internal/workers/store.go
package workers

import (
	"database/sql"
	"encoding/json"
)

// Store persists workers to the shared kernel SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore creates a new worker store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const workerColumns = `id, account_id, task_id, workspace_id, branch, status, started_at,
	completed_at, error, cost_usd, turns, input_tokens, output_tokens, local_ui_url,
	current_action, milestones, waiting_for, last_commit_sha, commit_count, files_changed,
	lines_added, lines_removed, pr_url, pr_number, pending_instructions,
	plan_start_message_index, plan_content, session_generation, result_meta,
	last_activity_at, created_at, updated_at`

// Save creates or updates a worker, truncating milestones to MilestoneCap
// at the point of persistence (spec.md §9 "Milestone ring").
func (s *Store) Save(w *Worker) error {
	if len(w.Milestones) > MilestoneCap {
		w.Milestones = w.Milestones[len(w.Milestones)-MilestoneCap:]
	}

	milestones, _ := json.Marshal(w.Milestones)

	var waitingFor sql.NullString
	if w.WaitingFor != nil {
		b, _ := json.Marshal(w.WaitingFor)
		waitingFor = sql.NullString{String: string(b), Valid: true}
	}

	var resultMeta sql.NullString
	if len(w.ResultMeta) > 0 {
		b, _ := json.Marshal(w.ResultMeta)
		resultMeta = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			branch=excluded.branch,
			status=excluded.status,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at,
			error=excluded.error,
			cost_usd=excluded.cost_usd,
			turns=excluded.turns,
			input_tokens=excluded.input_tokens,
			output_tokens=excluded.output_tokens,
			local_ui_url=excluded.local_ui_url,
			current_action=excluded.current_action,
			milestones=excluded.milestones,
			waiting_for=excluded.waiting_for,
			last_commit_sha=excluded.last_commit_sha,
			commit_count=excluded.commit_count,
			files_changed=excluded.files_changed,
			lines_added=excluded.lines_added,
			lines_removed=excluded.lines_removed,
			pr_url=excluded.pr_url,
			pr_number=excluded.pr_number,
			pending_instructions=excluded.pending_instructions,
			plan_start_message_index=excluded.plan_start_message_index,
			plan_content=excluded.plan_content,
			session_generation=excluded.session_generation,
			result_meta=excluded.result_meta,
			last_activity_at=excluded.last_activity_at,
			updated_at=excluded.updated_at
	`,
		w.ID, w.AccountID, w.TaskID, w.WorkspaceID, nullableString(w.Branch), w.Status,
		w.StartedAt, w.CompletedAt, nullableString(w.Error), w.CostUSD, w.Turns,
		w.InputTokens, w.OutputTokens, nullableString(w.LocalUiURL), nullableString(w.CurrentAction),
		string(milestones), waitingFor, nullableString(w.LastCommitSha), w.CommitCount,
		w.FilesChanged, w.LinesAdded, w.LinesRemoved, nullableString(w.PRUrl), nullableInt(w.PRNumber),
		nullableString(w.PendingInstructions), w.PlanStartMessageIndex, nullableString(w.PlanContent),
		w.SessionGeneration, resultMeta, w.LastActivityAt, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

// GetByID retrieves a worker by ID.
func (s *Store) GetByID(id string) (*Worker, error) {
	row := s.db.QueryRow(`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	return scanWorker(row)
}

// GetByTask retrieves every worker that has ever claimed a task,
// newest-first (a task may accumulate failed workers across reassignments).
func (s *Store) GetByTask(taskID string) ([]*Worker, error) {
	rows, err := s.db.Query(`SELECT `+workerColumns+` FROM workers WHERE task_id = ? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkers(rows)
}

// GetByAccount lists workers owned by an account, optionally filtered by status.
func (s *Store) GetByAccount(accountID string, status Status) ([]*Worker, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(`SELECT `+workerColumns+` FROM workers WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	} else {
		rows, err = s.db.Query(`SELECT `+workerColumns+` FROM workers WHERE account_id = ? AND status = ? ORDER BY created_at DESC`, accountID, status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkers(rows)
}

// CountActiveForAccount counts workers in any ActiveStatuses state for the
// given account — the Claim Engine's ONLY admission gate (§4.3 step 1).
// Callers that need this read serialized with a concurrent claim-UPDATE
// must run it inside the same *sql.Tx (see internal/claim).
func CountActiveForAccount(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, accountID string) (int, error) {
	row := q.QueryRow(`SELECT COUNT(*) FROM workers WHERE account_id = ? AND status IN ('starting','running','waiting_input','idle')`, accountID)
	var count int
	err := row.Scan(&count)
	return count, err
}

func scanWorker(row *sql.Row) (*Worker, error) {
	var w Worker
	var branch, errStr, localUiURL, currentAction, lastCommitSha, prUrl, pendingInstructions, planContent sql.NullString
	var milestones string
	var waitingFor, resultMeta sql.NullString
	var startedAt, completedAt sql.NullTime
	var prNumber sql.NullInt64

	err := row.Scan(
		&w.ID, &w.AccountID, &w.TaskID, &w.WorkspaceID, &branch, &w.Status, &startedAt,
		&completedAt, &errStr, &w.CostUSD, &w.Turns, &w.InputTokens, &w.OutputTokens,
		&localUiURL, &currentAction, &milestones, &waitingFor, &lastCommitSha, &w.CommitCount,
		&w.FilesChanged, &w.LinesAdded, &w.LinesRemoved, &prUrl, &prNumber, &pendingInstructions,
		&w.PlanStartMessageIndex, &planContent, &w.SessionGeneration, &resultMeta,
		&w.LastActivityAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	hydrateWorker(&w, branch, errStr, localUiURL, currentAction, lastCommitSha, prUrl,
		pendingInstructions, planContent, milestones, waitingFor, resultMeta, startedAt, completedAt, prNumber)
	return &w, nil
}

func scanWorkers(rows *sql.Rows) ([]*Worker, error) {
	var out []*Worker
	for rows.Next() {
		var w Worker
		var branch, errStr, localUiURL, currentAction, lastCommitSha, prUrl, pendingInstructions, planContent sql.NullString
		var milestones string
		var waitingFor, resultMeta sql.NullString
		var startedAt, completedAt sql.NullTime
		var prNumber sql.NullInt64

		err := rows.Scan(
			&w.ID, &w.AccountID, &w.TaskID, &w.WorkspaceID, &branch, &w.Status, &startedAt,
			&completedAt, &errStr, &w.CostUSD, &w.Turns, &w.InputTokens, &w.OutputTokens,
			&localUiURL, &currentAction, &milestones, &waitingFor, &lastCommitSha, &w.CommitCount,
			&w.FilesChanged, &w.LinesAdded, &w.LinesRemoved, &prUrl, &prNumber, &pendingInstructions,
			&w.PlanStartMessageIndex, &planContent, &w.SessionGeneration, &resultMeta,
			&w.LastActivityAt, &w.CreatedAt, &w.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		hydrateWorker(&w, branch, errStr, localUiURL, currentAction, lastCommitSha, prUrl,
			pendingInstructions, planContent, milestones, waitingFor, resultMeta, startedAt, completedAt, prNumber)
		out = append(out, &w)
	}
	return out, rows.Err()
}

func hydrateWorker(w *Worker, branch, errStr, localUiURL, currentAction, lastCommitSha, prUrl,
	pendingInstructions, planContent sql.NullString, milestones string, waitingFor, resultMeta sql.NullString,
	startedAt, completedAt sql.NullTime, prNumber sql.NullInt64) {

	w.Branch = branch.String
	w.Error = errStr.String
	w.LocalUiURL = localUiURL.String
	w.CurrentAction = currentAction.String
	w.LastCommitSha = lastCommitSha.String
	w.PRUrl = prUrl.String
	w.PendingInstructions = pendingInstructions.String
	w.PlanContent = planContent.String
	if startedAt.Valid {
		w.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	if prNumber.Valid {
		n := int(prNumber.Int64)
		w.PRNumber = n
	}
	_ = json.Unmarshal([]byte(milestones), &w.Milestones)
	if waitingFor.Valid {
		var wf WaitingFor
		if json.Unmarshal([]byte(waitingFor.String), &wf) == nil {
			w.WaitingFor = &wf
		}
	}
	if resultMeta.Valid {
		_ = json.Unmarshal([]byte(resultMeta.String), &w.ResultMeta)
	}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
