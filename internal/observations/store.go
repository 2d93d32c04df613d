package observations

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Store persists observations and exposes FTS5 full-text search.
type Store struct {
	db *sql.DB
}

// NewStore creates an observation store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const observationColumns = `id, workspace_id, obs_type, title, content, files, concepts, created_at`

// Save inserts an observation. Observations are append-only: there is no
// update path, only supersession by a newer observation.
func (s *Store) Save(o *Observation) error {
	files, err := json.Marshal(o.Files)
	if err != nil {
		return err
	}
	concepts, err := json.Marshal(o.Concepts)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.WorkspaceID, o.Type, o.Title, o.Content, string(files), string(concepts), o.CreatedAt)
	return err
}

// Delete removes an observation by id; the observations_ad trigger keeps
// the FTS index in sync.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM observations WHERE id = ?`, id)
	return err
}

// GetByID retrieves an observation by id.
func (s *Store) GetByID(id string) (*Observation, error) {
	row := s.db.QueryRow(`SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	return scanObservation(row)
}

// ListByWorkspace lists observations newest-first.
func (s *Store) ListByWorkspace(workspaceID string, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+observationColumns+` FROM observations WHERE workspace_id = ? ORDER BY created_at DESC LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// Search runs an FTS5 MATCH query scoped to a workspace, ranked by bm25.
func (s *Store) Search(workspaceID, query string, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT o.id, o.workspace_id, o.obs_type, o.title, o.content, o.files, o.concepts, o.created_at
		FROM observations o
		JOIN observations_fts fts ON o.rowid = fts.rowid
		WHERE observations_fts MATCH ? AND o.workspace_id = ?
		ORDER BY rank
		LIMIT ?
	`, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// BatchSave inserts several observations in one call, used by bulk-import
// collaborators (the /observations/batch surface).
func (s *Store) BatchSave(obs []*Observation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, o := range obs {
		files, _ := json.Marshal(o.Files)
		concepts, _ := json.Marshal(o.Concepts)
		if _, err := tx.Exec(`INSERT INTO observations (`+observationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.WorkspaceID, o.Type, o.Title, o.Content, string(files), string(concepts), o.CreatedAt); err != nil {
			return fmt.Errorf("batch insert observation %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// Digest is a deterministic rollup of a workspace's observations, grouped
// by type with the most common concepts surfaced — not an LLM summary.
type Digest struct {
	WorkspaceID  string         `json:"workspaceId"`
	TotalCount   int            `json:"totalCount"`
	ByType       map[string]int `json:"byType"`
	TopConcepts  []string       `json:"topConcepts"`
	MostRecentAt string         `json:"mostRecentAt,omitempty"`
}

// Compact builds a deterministic digest over a workspace's observations.
func (s *Store) Compact(workspaceID string) (*Digest, error) {
	obs, err := s.ListByWorkspace(workspaceID, 1000)
	if err != nil {
		return nil, err
	}

	digest := &Digest{WorkspaceID: workspaceID, ByType: map[string]int{}}
	conceptCounts := map[string]int{}
	for _, o := range obs {
		digest.TotalCount++
		digest.ByType[o.Type]++
		for _, c := range o.Concepts {
			conceptCounts[c]++
		}
	}
	if len(obs) > 0 {
		digest.MostRecentAt = obs[0].CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	type kv struct {
		concept string
		count   int
	}
	var ranked []kv
	for c, n := range conceptCounts {
		ranked = append(ranked, kv{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].concept < ranked[j].concept
	})
	for i, kv := range ranked {
		if i >= 10 {
			break
		}
		digest.TopConcepts = append(digest.TopConcepts, kv.concept)
	}
	return digest, nil
}

func scanObservation(row *sql.Row) (*Observation, error) {
	var o Observation
	var files, concepts string
	if err := row.Scan(&o.ID, &o.WorkspaceID, &o.Type, &o.Title, &o.Content, &files, &concepts, &o.CreatedAt); err != nil {
		return nil, err
	}
	hydrateObservation(&o, files, concepts)
	return &o, nil
}

func scanObservations(rows *sql.Rows) ([]*Observation, error) {
	var out []*Observation
	for rows.Next() {
		var o Observation
		var files, concepts string
		if err := rows.Scan(&o.ID, &o.WorkspaceID, &o.Type, &o.Title, &o.Content, &files, &concepts, &o.CreatedAt); err != nil {
			return nil, err
		}
		hydrateObservation(&o, files, concepts)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func hydrateObservation(o *Observation, files, concepts string) {
	_ = json.Unmarshal([]byte(files), &o.Files)
	_ = json.Unmarshal([]byte(concepts), &o.Concepts)
}

// SanitizeFTSQuery escapes characters FTS5's query syntax would otherwise
// interpret as operators, so a user's free-text search never throws a
// syntax error back at them.
func SanitizeFTSQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
