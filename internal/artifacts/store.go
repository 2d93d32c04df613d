package artifacts

import (
	"database/sql"
	"encoding/json"
)

// Store persists artifacts to the shared kernel database.
type Store struct {
	db *sql.DB
}

// NewStore creates an artifact store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const artifactColumns = `id, worker_id, workspace_id, artifact_key, art_type, title, content, metadata, share_token, created_at, updated_at`

// Save creates an artifact, or upserts by (workspaceId, artifactKey) when
// ArtifactKey is set — the caller's idempotent-retry path.
func (s *Store) Save(a *Artifact) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}

	var key sql.NullString
	if a.ArtifactKey != "" {
		key = sql.NullString{String: a.ArtifactKey, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, artifact_key) WHERE artifact_key IS NOT NULL DO UPDATE SET
			title=excluded.title,
			content=excluded.content,
			metadata=excluded.metadata,
			updated_at=excluded.updated_at
	`, a.ID, a.WorkerID, a.WorkspaceID, key, a.Type, a.Title, a.Content, string(metadata), a.ShareToken, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetByID retrieves an artifact by id.
func (s *Store) GetByID(id string) (*Artifact, error) {
	row := s.db.QueryRow(`SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	return scanArtifact(row)
}

// ListByWorker lists every artifact a worker has produced.
func (s *Store) ListByWorker(workerID string) ([]*Artifact, error) {
	rows, err := s.db.Query(`SELECT `+artifactColumns+` FROM artifacts WHERE worker_id = ? ORDER BY created_at ASC`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifactRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountForWorker satisfies internal/outputgate.ArtifactCounter.
func (s *Store) CountForWorker(workerID string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE worker_id = ?`, workerID)
	var n int
	err := row.Scan(&n)
	return n, err
}

func scanArtifact(row *sql.Row) (*Artifact, error) {
	var a Artifact
	var key, content sql.NullString
	var metadata string
	if err := row.Scan(&a.ID, &a.WorkerID, &a.WorkspaceID, &key, &a.Type, &a.Title, &content, &metadata, &a.ShareToken, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	hydrateArtifact(&a, key, content, metadata)
	return &a, nil
}

func scanArtifactRows(rows *sql.Rows) (*Artifact, error) {
	var a Artifact
	var key, content sql.NullString
	var metadata string
	if err := rows.Scan(&a.ID, &a.WorkerID, &a.WorkspaceID, &key, &a.Type, &a.Title, &content, &metadata, &a.ShareToken, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	hydrateArtifact(&a, key, content, metadata)
	return &a, nil
}

func hydrateArtifact(a *Artifact, key, content sql.NullString, metadata string) {
	a.ArtifactKey = key.String
	a.Content = content.String
	_ = json.Unmarshal([]byte(metadata), &a.Metadata)
}
