package skills

import (
	"database/sql"
)

// Store persists workspace skills to the shared kernel database.
type Store struct {
	db *sql.DB
}

// NewStore creates a skill store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const skillColumns = `id, workspace_id, slug, name, description, content, content_hash, source, origin, enabled, created_at, updated_at`

// Save creates or upserts a skill by (workspaceId, slug); re-saving the
// same slug with different content refreshes contentHash and bumps
// updatedAt, which is how the runner's dedup-on-mismatch path notices.
func (s *Store) Save(sk *Skill) error {
	_, err := s.db.Exec(`
		INSERT INTO workspace_skills (`+skillColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, slug) DO UPDATE SET
			name=excluded.name,
			description=excluded.description,
			content=excluded.content,
			content_hash=excluded.content_hash,
			source=excluded.source,
			origin=excluded.origin,
			enabled=excluded.enabled,
			updated_at=excluded.updated_at
	`, sk.ID, sk.WorkspaceID, sk.Slug, sk.Name, nullableString(sk.Description), sk.Content, sk.ContentHash,
		nullableString(sk.Source), sk.Origin, sk.Enabled, sk.CreatedAt, sk.UpdatedAt)
	return err
}

// GetBySlug retrieves a skill by (workspaceId, slug).
func (s *Store) GetBySlug(workspaceID, slug string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM workspace_skills WHERE workspace_id = ? AND slug = ?`, workspaceID, slug)
	return scanSkill(row)
}

// GetByID retrieves a skill by id.
func (s *Store) GetByID(id string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM workspace_skills WHERE id = ?`, id)
	return scanSkill(row)
}

// ListByWorkspace lists every skill registered to a workspace.
func (s *Store) ListByWorkspace(workspaceID string) ([]*Skill, error) {
	rows, err := s.db.Query(`SELECT `+skillColumns+` FROM workspace_skills WHERE workspace_id = ? ORDER BY name ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Skill
	for rows.Next() {
		sk, err := scanSkillRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func scanSkill(row *sql.Row) (*Skill, error) {
	var sk Skill
	var description, source sql.NullString
	if err := row.Scan(&sk.ID, &sk.WorkspaceID, &sk.Slug, &sk.Name, &description, &sk.Content, &sk.ContentHash, &source, &sk.Origin, &sk.Enabled, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
		return nil, err
	}
	sk.Description = description.String
	sk.Source = source.String
	return &sk, nil
}

func scanSkillRows(rows *sql.Rows) (*Skill, error) {
	var sk Skill
	var description, source sql.NullString
	if err := rows.Scan(&sk.ID, &sk.WorkspaceID, &sk.Slug, &sk.Name, &description, &sk.Content, &sk.ContentHash, &source, &sk.Origin, &sk.Enabled, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
		return nil, err
	}
	sk.Description = description.String
	sk.Source = source.String
	return &sk, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
