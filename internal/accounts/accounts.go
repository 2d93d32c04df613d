// Package accounts is the kernel's minimal default implementation of the
// auth-context and account-lookup collaborators spec.md §1 scopes out of
// the kernel proper. A real deployment is expected to swap this for its
// own identity provider; this package only satisfies claim.AccountLookup
// and api.AuthContext well enough to run the kernel standalone.
package accounts

import (
	"database/sql"
	"time"

	"github.com/buildd-ai/coordinatord/internal/claim"
)

// Store resolves API keys to accounts and answers concurrency-limit
// lookups, backed by the shared accounts table.
type Store struct {
	db *sql.DB
}

// NewStore builds an account store over the shared database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create registers an account with the given api key and concurrency
// limit, or updates both if the account id already exists.
func (s *Store) Create(id string, maxConcurrentWorkers int, apiKey string) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, api_key, max_concurrent_workers, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET api_key = excluded.api_key, max_concurrent_workers = excluded.max_concurrent_workers
	`, id, apiKey, maxConcurrentWorkers, time.Now())
	return err
}

// GetAccount implements claim.AccountLookup.
func (s *Store) GetAccount(id string) (*claim.Account, error) {
	var a claim.Account
	err := s.db.QueryRow(`SELECT id, max_concurrent_workers FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.MaxConcurrentWorkers)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAccountID implements api.AuthContext by looking an API key up
// directly in the accounts table. An empty or unrecognized key resolves
// to "", which the middleware treats as unauthenticated.
func (s *Store) ResolveAccountID(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	var id string
	if err := s.db.QueryRow(`SELECT id FROM accounts WHERE api_key = ?`, apiKey).Scan(&id); err != nil {
		return ""
	}
	return id
}
