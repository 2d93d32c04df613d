package schedule

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Store persists schedules to the shared kernel database.
type Store struct {
	db *sql.DB
}

// NewStore creates a schedule store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const scheduleColumns = `id, workspace_id, name, cron_expr, timezone, enabled, task_template,
	trigger_spec, trigger_last_checked_at, trigger_last_value, trigger_total_checks, next_run_at,
	max_concurrent_from_schedule, pause_after_failures, consecutive_failures, last_error, total_runs,
	created_at, updated_at`

// Save creates or updates a schedule.
func (s *Store) Save(sc *Schedule) error {
	tmpl, err := marshalJSON(sc.TaskTemplate)
	if err != nil {
		return err
	}

	var trigger sql.NullString
	if sc.Trigger != nil {
		b, err := marshalJSON(sc.Trigger)
		if err != nil {
			return err
		}
		trigger = sql.NullString{String: b, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			cron_expr=excluded.cron_expr,
			timezone=excluded.timezone,
			enabled=excluded.enabled,
			task_template=excluded.task_template,
			trigger_spec=excluded.trigger_spec,
			trigger_last_checked_at=excluded.trigger_last_checked_at,
			trigger_last_value=excluded.trigger_last_value,
			trigger_total_checks=excluded.trigger_total_checks,
			next_run_at=excluded.next_run_at,
			max_concurrent_from_schedule=excluded.max_concurrent_from_schedule,
			pause_after_failures=excluded.pause_after_failures,
			consecutive_failures=excluded.consecutive_failures,
			last_error=excluded.last_error,
			total_runs=excluded.total_runs,
			updated_at=excluded.updated_at
	`, sc.ID, sc.WorkspaceID, sc.Name, sc.CronExpr, sc.Timezone, sc.Enabled, tmpl,
		trigger, nullableTime(sc.LastCheckedAt), nullableString(sc.LastTriggerValue), sc.TriggerTotalChecks,
		nullableTime(sc.NextRunAt), sc.MaxConcurrentFromSchedule, sc.PauseAfterFailures, sc.ConsecutiveFailures,
		nullableString(sc.LastError), sc.TotalRuns, sc.CreatedAt, sc.UpdatedAt)
	return err
}

// GetByID retrieves a schedule by id.
func (s *Store) GetByID(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

// Due returns every enabled schedule whose nextRunAt has passed, the
// §4.7 step-1 candidate set for one tick.
func (s *Store) Due(now time.Time) ([]*Schedule, error) {
	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sc, err := scanScheduleRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListByWorkspace returns every schedule owned by a workspace, regardless
// of enabled state or next-run timing.
func (s *Store) ListByWorkspace(workspaceID string) ([]*Schedule, error) {
	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules WHERE workspace_id = ? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sc, err := scanScheduleRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanSchedule(row *sql.Row) (*Schedule, error) {
	var sc Schedule
	var tmpl string
	var trigger, lastTriggerValue, lastError sql.NullString
	var lastCheckedAt, nextRunAt sql.NullTime
	err := row.Scan(&sc.ID, &sc.WorkspaceID, &sc.Name, &sc.CronExpr, &sc.Timezone, &sc.Enabled, &tmpl,
		&trigger, &lastCheckedAt, &lastTriggerValue, &sc.TriggerTotalChecks, &nextRunAt,
		&sc.MaxConcurrentFromSchedule, &sc.PauseAfterFailures, &sc.ConsecutiveFailures, &lastError, &sc.TotalRuns,
		&sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	hydrateSchedule(&sc, tmpl, trigger, lastCheckedAt, lastTriggerValue, nextRunAt, lastError)
	return &sc, nil
}

func scanScheduleRows(rows *sql.Rows) (*Schedule, error) {
	var sc Schedule
	var tmpl string
	var trigger, lastTriggerValue, lastError sql.NullString
	var lastCheckedAt, nextRunAt sql.NullTime
	err := rows.Scan(&sc.ID, &sc.WorkspaceID, &sc.Name, &sc.CronExpr, &sc.Timezone, &sc.Enabled, &tmpl,
		&trigger, &lastCheckedAt, &lastTriggerValue, &sc.TriggerTotalChecks, &nextRunAt,
		&sc.MaxConcurrentFromSchedule, &sc.PauseAfterFailures, &sc.ConsecutiveFailures, &lastError, &sc.TotalRuns,
		&sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	hydrateSchedule(&sc, tmpl, trigger, lastCheckedAt, lastTriggerValue, nextRunAt, lastError)
	return &sc, nil
}

func hydrateSchedule(sc *Schedule, tmpl string, trigger sql.NullString, lastCheckedAt sql.NullTime, lastTriggerValue sql.NullString, nextRunAt sql.NullTime, lastError sql.NullString) {
	_ = json.Unmarshal([]byte(tmpl), &sc.TaskTemplate)
	if trigger.Valid {
		var trg Trigger
		if json.Unmarshal([]byte(trigger.String), &trg) == nil {
			sc.Trigger = &trg
		}
	}
	if lastCheckedAt.Valid {
		sc.LastCheckedAt = &lastCheckedAt.Time
	}
	sc.LastTriggerValue = lastTriggerValue.String
	if nextRunAt.Valid {
		sc.NextRunAt = &nextRunAt.Time
	}
	sc.LastError = lastError.String
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
