// Package outputgate implements the Output-Completion Gate: the check
// run when a worker reports status=completed, deciding whether the task's
// outputRequirement is actually satisfied (spec.md §4.9).
package outputgate

import (
	"database/sql"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/buildd-ai/coordinatord/internal/workers"
)

// ArtifactCounter reports whether at least one artifact exists for a worker,
// satisfied by internal/artifacts.Store without a hard import-cycle dependency.
type ArtifactCounter interface {
	CountForWorker(workerID string) (int, error)
}

// Gate evaluates spec.md §4.9's requirement table.
type Gate struct {
	artifacts ArtifactCounter
}

// New builds a gate backed by the given artifact counter.
func New(artifacts ArtifactCounter) *Gate {
	return &Gate{artifacts: artifacts}
}

// Check runs the gate for a worker that just reported completed. It
// returns a *kernelerr.Error with Code=OutputGateFailed and a Hint on
// failure, nil on pass.
func (g *Gate) Check(task *tasks.Task, w *workers.Worker) error {
	switch task.OutputRequirement {
	case tasks.OutputNone:
		return nil

	case tasks.OutputPRRequired:
		if w.PRUrl != "" {
			return nil
		}
		return failHint("create_pr")

	case tasks.OutputArtifactRequired:
		if w.PRUrl != "" {
			return nil
		}
		n, err := g.artifactCount(w.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		return failHint("create_pr or create_artifact")

	case tasks.OutputAuto, "":
		if w.CommitCount == 0 {
			return nil
		}
		if w.PRUrl != "" {
			return nil
		}
		n, err := g.artifactCount(w.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		return failHint("create_pr or create_artifact")

	default:
		return kernelerr.Invalidf("unknown output requirement: %s", task.OutputRequirement)
	}
}

func (g *Gate) artifactCount(workerID string) (int, error) {
	if g.artifacts == nil {
		return 0, nil
	}
	n, err := g.artifacts.CountForWorker(workerID)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}

func failHint(hint string) error {
	err := kernelerr.New(kernelerr.OutputGateFailed, "worker completion blocked by output requirement")
	return kernelerr.WithHint(err, hint)
}
