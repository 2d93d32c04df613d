package api

import (
	"net/http"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/gorilla/mux"
)

type taskCreateRequest struct {
	WorkspaceID       string            `json:"workspaceId"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Priority          int               `json:"priority"`
	ProjectTag        string            `json:"projectTag,omitempty"`
	BlockedByTaskIDs  []string          `json:"blockedByTaskIds,omitempty"`
	Mode              string            `json:"mode,omitempty"`
	OutputRequirement string            `json:"outputRequirement,omitempty"`
	OutputSchema      map[string]any    `json:"outputSchema,omitempty"`
	Context           map[string]any    `json:"context,omitempty"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	task := tasks.New(req.WorkspaceID, req.Title, req.Description, req.Priority)
	task.ProjectTag = req.ProjectTag
	task.BlockedByTaskIDs = req.BlockedByTaskIDs
	task.OutputSchema = req.OutputSchema
	if req.Mode != "" {
		task.Mode = tasks.Mode(req.Mode)
	}
	if req.OutputRequirement != "" {
		task.OutputRequirement = tasks.OutputRequirement(req.OutputRequirement)
	}
	if req.Context != nil {
		task.Context = req.Context
	}
	if len(task.BlockedByTaskIDs) > 0 {
		task.Status = tasks.StatusBlocked
	}

	if err := task.Validate(); err != nil {
		writeError(w, kernelerr.Invalidf("%v", err))
		return
	}
	if err := s.taskStore.Save(task); err != nil {
		writeError(w, err)
		return
	}

	if task.Status == tasks.StatusPending && s.bus != nil {
		s.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(task.WorkspaceID),
			Type:    dispatch.EventTaskAssigned,
			Payload: map[string]any{"task": task},
		})
	}

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) loadTask(id string) (*tasks.Task, error) {
	task, err := s.taskStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, kernelerr.NotFoundf("task %s not found", id)
	}
	return task, nil
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.loadTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type taskPatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	ProjectTag  *string        `json:"projectTag,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

func (s *Server) handleTaskPatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.loadTask(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var patch taskPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.ProjectTag != nil {
		task.ProjectTag = *patch.ProjectTag
	}
	if patch.Context != nil {
		task.Context = patch.Context
	}
	if err := task.Validate(); err != nil {
		writeError(w, kernelerr.Invalidf("%v", err))
		return
	}
	if err := s.taskStore.Save(task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.taskStore.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTaskStart re-dispatches a pending task to the bus (spec.md §4.1,
// §6 "Dispatch pending task"). pending -> assigned only happens through
// the Claim Engine (§4.3); this endpoint just re-announces the task so an
// eligible (or, with targetLocalUiUrl, a specific) runner picks it up.
func (s *Server) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.loadTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Status != tasks.StatusPending {
		writeError(w, kernelerr.Conflictf("task %s is not pending (status=%s)", id, task.Status))
		return
	}

	var body struct {
		TargetLocalUiURL string `json:"targetLocalUiUrl,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
			return
		}
	}

	if s.bus != nil {
		payload := map[string]any{"task": task}
		if body.TargetLocalUiURL != "" {
			payload["targetLocalUiUrl"] = body.TargetLocalUiURL
		}
		s.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(task.WorkspaceID),
			Type:    dispatch.EventTaskAssigned,
			Payload: payload,
		})
	}

	resp := struct {
		Started          bool   `json:"started"`
		TargetLocalUiURL string `json:"targetLocalUiUrl,omitempty"`
	}{Started: true, TargetLocalUiURL: body.TargetLocalUiURL}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTaskReassign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"
	isOwner := r.URL.Query().Get("isWorkspaceOwner") == "true"

	outcome, err := s.reassigner.ReassignTask(id, force, isOwner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
