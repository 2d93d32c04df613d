// Package observations implements the Observation Index: a workspace's
// append-mostly memory store, full-text searchable via SQLite FTS5.
package observations

import (
	"time"

	"github.com/google/uuid"
)

// Observation is one recorded note against a workspace's memory.
type Observation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Files       []string  `json:"files,omitempty"`
	Concepts    []string  `json:"concepts,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// New creates an observation in its stored-as-is form; the index has no
// concept of editing, only supersession by a new observation (append-only
// per spec.md §3's memory model).
func New(workspaceID, obsType, title, content string) *Observation {
	return &Observation{
		ID:          "OBS-" + uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        obsType,
		Title:       title,
		Content:     content,
		CreatedAt:   time.Now(),
	}
}
