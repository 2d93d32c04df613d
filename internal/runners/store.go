package runners

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Store persists runner registry rows to the shared kernel database.
type Store struct {
	db *sql.DB
}

// NewStore creates a new runner store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert records a heartbeat, creating the runner row on first contact and
// refreshing lastHeartbeatAt/activeWorkers/capacity on every subsequent one.
func (s *Store) Upsert(hb Heartbeat) (*Runner, error) {
	now := time.Now()
	workspaceIDs, err := json.Marshal(hb.WorkspaceIDs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO runners (id, account_id, url, workspace_ids, active_workers, capacity, version, last_heartbeat_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			url = excluded.url,
			workspace_ids = excluded.workspace_ids,
			active_workers = excluded.active_workers,
			capacity = excluded.capacity,
			version = excluded.version,
			last_heartbeat_at = excluded.last_heartbeat_at
	`, hb.RunnerID, hb.AccountID, hb.URL, string(workspaceIDs), hb.ActiveWorkers, hb.Capacity, hb.Version, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetByID(hb.RunnerID)
}

// GetByID retrieves a runner by id.
func (s *Store) GetByID(id string) (*Runner, error) {
	row := s.db.QueryRow(`SELECT id, account_id, url, workspace_ids, active_workers, capacity, version, last_heartbeat_at, created_at
		FROM runners WHERE id = ?`, id)
	return scanRunner(row)
}

// ActiveRunners returns every runner that has heartbeated within
// HeartbeatWindow. Stale rows are filtered out of the result but never
// deleted, so a late heartbeat makes such a runner active again.
func (s *Store) ActiveRunners() ([]*Runner, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var active []*Runner
	for _, r := range all {
		if r.IsActive(now) {
			active = append(active, r)
		}
	}
	return active, nil
}

// CapacityFor returns the spare capacity across active runners advertising
// workspaceID: sum(capacity) - sum(activeWorkers).
func (s *Store) CapacityFor(workspaceID string) (int, error) {
	active, err := s.ActiveRunners()
	if err != nil {
		return 0, err
	}
	var capacity, used int
	for _, r := range active {
		if r.AdvertisesWorkspace(workspaceID) {
			capacity += r.Capacity
			used += r.ActiveWorkers
		}
	}
	return capacity - used, nil
}

func (s *Store) all() ([]*Runner, error) {
	rows, err := s.db.Query(`SELECT id, account_id, url, workspace_ids, active_workers, capacity, version, last_heartbeat_at, created_at FROM runners`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Runner
	for rows.Next() {
		r, err := scanRunnerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunner(row *sql.Row) (*Runner, error) {
	return scanInto(row)
}

func scanRunnerRows(rows *sql.Rows) (*Runner, error) {
	return scanInto(rows)
}

func scanInto(s rowScanner) (*Runner, error) {
	var r Runner
	var workspaceIDs string
	if err := s.Scan(&r.ID, &r.AccountID, &r.URL, &workspaceIDs, &r.ActiveWorkers, &r.Capacity, &r.Version, &r.LastHeartbeatAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(workspaceIDs), &r.WorkspaceIDs)
	return &r, nil
}
