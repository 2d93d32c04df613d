// Package artifacts implements the Artifact Store: durable, shareable
// byproducts a worker produces besides a git commit or PR (spec.md §3,
// referenced by the Output-Completion Gate in §4.9).
package artifacts

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is one durable, shareable output a worker produced.
type Artifact struct {
	ID          string         `json:"id"`
	WorkerID    string         `json:"workerId"`
	WorkspaceID string         `json:"workspaceId"`
	ArtifactKey string         `json:"artifactKey,omitempty"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ShareToken  string         `json:"shareToken"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// New creates an artifact, generating a fresh share token.
func New(workerID, workspaceID, artType, title string) *Artifact {
	now := time.Now()
	return &Artifact{
		ID:          "ART-" + uuid.NewString(),
		WorkerID:    workerID,
		WorkspaceID: workspaceID,
		Type:        artType,
		Title:       title,
		Metadata:    map[string]any{},
		ShareToken:  uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
