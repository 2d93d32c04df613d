// internal/tasks/store.go
package tasks

import (
	"database/sql"
	"encoding/json"
)

// Store persists tasks to the shared kernel SQLite database. The tasks
// table is created by internal/store's embedded schema; Store only reads
// and writes rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new task store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, workspace_id, title, description, priority, status, project_tag,
	blocked_by, mode, output_requirement, output_schema, claimed_by, claimed_at,
	expires_at, context, result, created_at, updated_at`

// Save creates or updates a task.
func (s *Store) Save(task *Task) error {
	blockedBy, _ := json.Marshal(nonNilStrings(task.BlockedByTaskIDs))
	context, _ := json.Marshal(nonNilMap(task.Context))

	var outputSchema sql.NullString
	if len(task.OutputSchema) > 0 {
		b, _ := json.Marshal(task.OutputSchema)
		outputSchema = sql.NullString{String: string(b), Valid: true}
	}

	var result sql.NullString
	if task.Result != nil {
		b, _ := json.Marshal(task.Result)
		result = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			description=excluded.description,
			priority=excluded.priority,
			status=excluded.status,
			project_tag=excluded.project_tag,
			blocked_by=excluded.blocked_by,
			mode=excluded.mode,
			output_requirement=excluded.output_requirement,
			output_schema=excluded.output_schema,
			claimed_by=excluded.claimed_by,
			claimed_at=excluded.claimed_at,
			expires_at=excluded.expires_at,
			context=excluded.context,
			result=excluded.result,
			updated_at=excluded.updated_at
	`,
		task.ID, task.WorkspaceID, task.Title, task.Description, task.Priority,
		task.Status, nullableString(task.ProjectTag), string(blockedBy), task.Mode,
		task.OutputRequirement, outputSchema, nullableString(task.ClaimedBy),
		task.ClaimedAt, task.ExpiresAt, string(context), result,
		task.CreatedAt, task.UpdatedAt,
	)
	return err
}

// GetByID retrieves a task by ID, returning (nil, nil) if no such task
// exists so callers can distinguish "not found" from a storage error.
func (s *Store) GetByID(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return task, err
}

// GetByStatus retrieves all tasks with a given status in a workspace.
func (s *Store) GetByStatus(workspaceID string, status Status) ([]*Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE workspace_id = ? AND status = ? ORDER BY priority DESC, created_at ASC`,
		workspaceID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetByWorkspace retrieves all tasks for a workspace.
func (s *Store) GetByWorkspace(workspaceID string) ([]*Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE workspace_id = ? ORDER BY priority DESC, created_at ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetBlockingOn returns tasks that list blockerID in their blockedBy set,
// used by the dependency resolver (resolver.go) on task completion.
func (s *Store) GetBlockingOn(blockerID string) ([]*Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks WHERE status = 'blocked'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	var blocking []*Task
	for _, t := range all {
		for _, b := range t.BlockedByTaskIDs {
			if b == blockerID {
				blocking = append(blocking, t)
				break
			}
		}
	}
	return blocking, nil
}

// Delete removes a task.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// CountLiveFromSchedule counts tasks in non-terminal states whose context
// carries `scheduleId == scheduleID`, used by the Scheduler's concurrency
// gate (§4.7).
func (s *Store) CountLiveFromSchedule(scheduleID string) (int, error) {
	rows, err := s.db.Query(`SELECT context FROM tasks WHERE status IN ('pending','assigned','running','blocked')`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, err
		}
		var ctx map[string]any
		if err := json.Unmarshal([]byte(raw), &ctx); err != nil {
			continue
		}
		if id, _ := ctx["scheduleId"].(string); id == scheduleID {
			count++
		}
	}
	return count, rows.Err()
}

func scanTask(row *sql.Row) (*Task, error) {
	var task Task
	var blockedBy, context string
	var projectTag, claimedBy, outputSchema, result sql.NullString
	var claimedAt, expiresAt sql.NullTime

	err := row.Scan(
		&task.ID, &task.WorkspaceID, &task.Title, &task.Description, &task.Priority,
		&task.Status, &projectTag, &blockedBy, &task.Mode, &task.OutputRequirement,
		&outputSchema, &claimedBy, &claimedAt, &expiresAt, &context, &result,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	hydrateTask(&task, projectTag, claimedBy, outputSchema, result, claimedAt, expiresAt, blockedBy, context)
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		var task Task
		var blockedBy, context string
		var projectTag, claimedBy, outputSchema, result sql.NullString
		var claimedAt, expiresAt sql.NullTime

		err := rows.Scan(
			&task.ID, &task.WorkspaceID, &task.Title, &task.Description, &task.Priority,
			&task.Status, &projectTag, &blockedBy, &task.Mode, &task.OutputRequirement,
			&outputSchema, &claimedBy, &claimedAt, &expiresAt, &context, &result,
			&task.CreatedAt, &task.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		hydrateTask(&task, projectTag, claimedBy, outputSchema, result, claimedAt, expiresAt, blockedBy, context)
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func hydrateTask(task *Task, projectTag, claimedBy, outputSchema, result sql.NullString, claimedAt, expiresAt sql.NullTime, blockedBy, context string) {
	task.ProjectTag = projectTag.String
	task.ClaimedBy = claimedBy.String
	if claimedAt.Valid {
		task.ClaimedAt = &claimedAt.Time
	}
	if expiresAt.Valid {
		task.ExpiresAt = &expiresAt.Time
	}
	if outputSchema.Valid && outputSchema.String != "" {
		_ = json.Unmarshal([]byte(outputSchema.String), &task.OutputSchema)
	}
	if result.Valid && result.String != "" {
		var r Result
		if err := json.Unmarshal([]byte(result.String), &r); err == nil {
			task.Result = &r
		}
	}
	_ = json.Unmarshal([]byte(blockedBy), &task.BlockedByTaskIDs)
	_ = json.Unmarshal([]byte(context), &task.Context)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

