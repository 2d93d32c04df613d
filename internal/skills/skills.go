// Package skills implements the Skill Store and the Skill Install
// Pipeline: content-push and command-push delivery of reusable agent
// skills into a workspace (spec.md §4.10).
package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Skill is a reusable bundle of instructions a workspace can install
// into a runner's `.claude/skills/<slug>/` directory.
type Skill struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	ContentHash string    `json:"contentHash"`
	Source      string    `json:"source,omitempty"`
	Origin      string    `json:"origin"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ContentHash returns the SHA-256 hex digest of content, the identity
// used for the runner's on-disk `.buildd-hash` dedup check.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// New creates a skill, computing its content hash.
func New(workspaceID, slug, name, content string) *Skill {
	now := time.Now()
	return &Skill{
		ID:          "SKL-" + uuid.NewString(),
		WorkspaceID: workspaceID,
		Slug:        slug,
		Name:        name,
		Content:     content,
		ContentHash: ContentHash(content),
		Origin:      "manual",
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
