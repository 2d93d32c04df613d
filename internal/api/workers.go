package api

import (
	"net/http"

	"github.com/buildd-ai/coordinatord/internal/artifacts"
	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/buildd-ai/coordinatord/internal/workers"
	"github.com/gorilla/mux"
)

// completeTask transitions the worker's task to completed, snapshotting the
// worker's execution metrics into the task's result (spec.md §4.1 "Result"),
// then unblocks any downstream tasks depending on it.
func (s *Server) completeTask(w *workers.Worker) error {
	task, err := s.loadTask(w.TaskID)
	if err != nil {
		return err
	}
	if task.Status == tasks.StatusAssigned {
		if err := task.TransitionTo(tasks.StatusRunning); err != nil {
			return err
		}
	}
	if task.Status != tasks.StatusCompleted {
		if err := task.TransitionTo(tasks.StatusCompleted); err != nil {
			return err
		}
	}
	task.Result = &tasks.Result{
		LastCommitSha: w.LastCommitSha,
		LinesAdded:    w.LinesAdded,
		LinesRemoved:  w.LinesRemoved,
		PRUrl:         w.PRUrl,
	}
	if err := s.taskStore.Save(task); err != nil {
		return err
	}
	return s.resolver.OnTaskCompleted(task.ID)
}

type claimRequest struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}
	result, err := s.claimEngine.Claim(AccountID(r), req.WorkspaceID, req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleWorkersMine(w http.ResponseWriter, r *http.Request) {
	status := workers.Status(r.URL.Query().Get("status"))
	list, err := s.workerStore.GetByAccount(AccountID(r), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleWorkersActive(w http.ResponseWriter, r *http.Request) {
	runners, err := s.runnerStore.ActiveRunners()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runners)
}

func (s *Server) handleWorkerGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker, err := s.workerStore.GetByID(id)
	if err != nil {
		writeError(w, kernelerr.NotFoundf("worker %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

// exitPlanModeRequest carries the raw assistant-message transcript a
// runner replays so the kernel can extract planContent itself
// (spec.md §4.6 steps 1-5).
type exitPlanModeRequest struct {
	ToolUseID         string   `json:"toolUseId"`
	AssistantMessages []string `json:"assistantMessages"`
}

// workerPatch carries only the fields a runner is allowed to push back;
// pointer/nil distinguishes "unset" from "set to zero value", mirroring
// the teacher's partial-update convention. The three plan-mode fields
// each route into the Plan Approval Subsystem (spec.md §4.6) rather
// than a bare field assignment, and are handled before any other field.
type workerPatch struct {
	Status          *string              `json:"status,omitempty"`
	Branch          *string              `json:"branch,omitempty"`
	CurrentAction   *string              `json:"currentAction,omitempty"`
	CostUSD         *float64             `json:"costUsd,omitempty"`
	Turns           *int                 `json:"turns,omitempty"`
	InputTokens     *int                 `json:"inputTokens,omitempty"`
	OutputTokens    *int                 `json:"outputTokens,omitempty"`
	LocalUiURL      *string              `json:"localUiUrl,omitempty"`
	LastCommitSha   *string              `json:"lastCommitSha,omitempty"`
	CommitCount     *int                 `json:"commitCount,omitempty"`
	FilesChanged    *int                 `json:"filesChanged,omitempty"`
	LinesAdded      *int                 `json:"linesAdded,omitempty"`
	LinesRemoved    *int                 `json:"linesRemoved,omitempty"`
	PRUrl           *string              `json:"prUrl,omitempty"`
	PRNumber        *int                 `json:"prNumber,omitempty"`
	AppendMilestone *workers.Milestone   `json:"appendMilestone,omitempty"`
	WaitingFor      *workers.WaitingFor  `json:"waitingFor,omitempty"`
	ResultMeta      map[string]any       `json:"resultMeta,omitempty"`
	EnterPlanMode   *int                 `json:"enterPlanMode,omitempty"`
	ExitPlanMode    *exitPlanModeRequest `json:"exitPlanMode,omitempty"`
	PlanResponse    *string              `json:"planResponse,omitempty"`
}

func (s *Server) handleWorkerPatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	worker, err := s.workerStore.GetByID(id)
	if err != nil {
		writeError(w, kernelerr.NotFoundf("worker %s not found", id))
		return
	}

	var patch workerPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	// Plan-mode transitions are dedicated Plan Approval Subsystem
	// operations: they load, mutate, and save the worker themselves, so
	// each returns immediately rather than falling into the generic
	// field patch below.
	switch {
	case patch.EnterPlanMode != nil:
		if err := s.planStore.EnterPlanMode(id, *patch.EnterPlanMode); err != nil {
			writeError(w, err)
			return
		}
		s.writeWorker(w, id)
		return

	case patch.ExitPlanMode != nil:
		if _, err := s.planStore.ExitPlanMode(id, patch.ExitPlanMode.ToolUseID, patch.ExitPlanMode.AssistantMessages); err != nil {
			writeError(w, err)
			return
		}
		s.writeWorker(w, id)
		return

	case patch.PlanResponse != nil:
		if _, err := s.planStore.Respond(id, *patch.PlanResponse); err != nil {
			writeError(w, err)
			return
		}
		s.writeWorker(w, id)
		return
	}

	terminal := worker.Status == workers.StatusCompleted || worker.Status == workers.StatusFailed
	reactivating := patch.Status != nil && workers.Status(*patch.Status) == workers.StatusRunning

	switch {
	case terminal && !reactivating:
		// spec.md §6: 409 on any PATCH against a terminated worker that
		// isn't the reactivation signal (status=running).
		writeError(w, kernelerr.Conflictf("worker %s is terminated; only reactivation (status=running) is allowed", id))
		return

	case terminal && reactivating:
		worker.Reactivate()
		if task, terr := s.loadTask(worker.TaskID); terr == nil {
			if task.Status == tasks.StatusCompleted || task.Status == tasks.StatusFailed {
				if err := task.TransitionTo(tasks.StatusAssigned); err == nil {
					if err := s.taskStore.Save(task); err != nil {
						writeError(w, err)
						return
					}
				}
			}
		}

	case patch.Status != nil:
		newStatus := workers.Status(*patch.Status)
		if newStatus == workers.StatusCompleted {
			task, err := s.loadTask(worker.TaskID)
			if err != nil {
				writeError(w, err)
				return
			}
			if gateErr := s.gate.Check(task, worker); gateErr != nil {
				writeError(w, gateErr)
				return
			}
		}
		worker.Status = newStatus
	}

	if patch.Branch != nil {
		worker.Branch = *patch.Branch
	}
	if patch.CurrentAction != nil {
		worker.CurrentAction = *patch.CurrentAction
	}
	if patch.CostUSD != nil {
		worker.CostUSD = *patch.CostUSD
	}
	if patch.Turns != nil {
		worker.Turns = *patch.Turns
	}
	if patch.InputTokens != nil {
		worker.InputTokens = *patch.InputTokens
	}
	if patch.OutputTokens != nil {
		worker.OutputTokens = *patch.OutputTokens
	}
	if patch.LocalUiURL != nil {
		worker.LocalUiURL = *patch.LocalUiURL
	}
	if patch.LastCommitSha != nil {
		worker.LastCommitSha = *patch.LastCommitSha
	}
	if patch.CommitCount != nil {
		worker.CommitCount = *patch.CommitCount
	}
	if patch.FilesChanged != nil {
		worker.FilesChanged = *patch.FilesChanged
	}
	if patch.LinesAdded != nil {
		worker.LinesAdded = *patch.LinesAdded
	}
	if patch.LinesRemoved != nil {
		worker.LinesRemoved = *patch.LinesRemoved
	}
	if patch.PRUrl != nil {
		worker.PRUrl = *patch.PRUrl
	}
	if patch.PRNumber != nil {
		worker.PRNumber = *patch.PRNumber
	}
	if patch.AppendMilestone != nil {
		worker.AppendMilestone(*patch.AppendMilestone)
	}
	if patch.WaitingFor != nil {
		worker.WaitingFor = patch.WaitingFor
	}
	if patch.ResultMeta != nil {
		worker.ResultMeta = patch.ResultMeta
	}

	// pendingInstructions is a one-shot message: delivered in this
	// response, then cleared so the next PATCH doesn't see it again
	// (spec.md §3).
	instructions := worker.PendingInstructions
	worker.PendingInstructions = ""
	worker.TouchActivity()

	if err := s.workerStore.Save(worker); err != nil {
		writeError(w, err)
		return
	}

	if worker.Status == workers.StatusCompleted {
		if err := s.completeTask(worker); err != nil {
			writeError(w, err)
			return
		}
	}

	resp := *worker
	resp.PendingInstructions = instructions
	writeJSON(w, http.StatusOK, &resp)
}

// writeWorker reloads and writes the current worker state, used by the
// plan-mode branches above whose underlying store methods already saved
// it.
func (s *Server) writeWorker(w http.ResponseWriter, id string) {
	worker, err := s.workerStore.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleArtifactCreate(w http.ResponseWriter, r *http.Request) {
	workerID := mux.Vars(r)["id"]
	worker, err := s.workerStore.GetByID(workerID)
	if err != nil {
		writeError(w, kernelerr.NotFoundf("worker %s not found", workerID))
		return
	}

	var body struct {
		ArtifactKey string         `json:"artifactKey,omitempty"`
		Type        string         `json:"type"`
		Title       string         `json:"title"`
		Content     string         `json:"content"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	a := artifacts.New(worker.ID, worker.WorkspaceID, body.Type, body.Title)
	a.ArtifactKey = body.ArtifactKey
	a.Content = body.Content
	a.Metadata = body.Metadata

	if err := s.artifactStore.Save(a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	workerID := mux.Vars(r)["id"]
	list, err := s.artifactStore.ListByWorker(workerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
