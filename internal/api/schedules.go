package api

import (
	"net/http"
	"time"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/schedule"
	"github.com/gorilla/mux"
)

type scheduleCreateRequest struct {
	Name     string               `json:"name"`
	CronExpr string               `json:"cronExpr"`
	Timezone string               `json:"timezone"`
	Template schedule.TaskTemplate `json:"taskTemplate"`
	Trigger  *schedule.Trigger    `json:"trigger,omitempty"`
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]

	var req scheduleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		writeError(w, kernelerr.Invalidf("unknown timezone %q", req.Timezone))
		return
	}
	if err := schedule.ValidateCron(req.CronExpr, loc); err != nil {
		writeError(w, kernelerr.Invalidf("invalid cron expression: %v", err))
		return
	}

	sc := schedule.New(workspaceID, req.Name, req.CronExpr, req.Timezone, req.Template)
	sc.Trigger = req.Trigger

	next, err := schedule.NextRunAt(sc.CronExpr, sc.Timezone, time.Now())
	if err != nil {
		writeError(w, kernelerr.Invalidf("cannot compute next run: %v", err))
		return
	}
	sc.NextRunAt = &next

	if err := s.scheduleStore.Save(sc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	list, err := s.scheduleStore.ListByWorkspace(workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sid"]
	sc, err := s.scheduleStore.GetByID(id)
	if err != nil {
		writeError(w, kernelerr.NotFoundf("schedule %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type schedulePatch struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	CronExpr *string `json:"cronExpr,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

func (s *Server) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sid"]
	sc, err := s.scheduleStore.GetByID(id)
	if err != nil {
		writeError(w, kernelerr.NotFoundf("schedule %s not found", id))
		return
	}

	var patch schedulePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}
	if patch.CronExpr != nil {
		sc.CronExpr = *patch.CronExpr
	}
	if patch.Timezone != nil {
		sc.Timezone = *patch.Timezone
	}
	if patch.Enabled != nil {
		sc.Enabled = *patch.Enabled
	}
	if patch.CronExpr != nil || patch.Timezone != nil {
		next, err := schedule.NextRunAt(sc.CronExpr, sc.Timezone, time.Now())
		if err != nil {
			writeError(w, kernelerr.Invalidf("cannot compute next run: %v", err))
			return
		}
		sc.NextRunAt = &next
	}
	if err := s.scheduleStore.Save(sc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleScheduleValidate(w http.ResponseWriter, r *http.Request) {
	cronExpr := r.URL.Query().Get("cron")
	tz := r.URL.Query().Get("timezone")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		writeError(w, kernelerr.Invalidf("unknown timezone %q", tz))
		return
	}
	if err := schedule.ValidateCron(cronExpr, loc); err != nil {
		writeError(w, kernelerr.Invalidf("invalid cron expression: %v", err))
		return
	}
	next, err := schedule.NextRunAt(cronExpr, tz, time.Now())
	if err != nil {
		writeError(w, kernelerr.Invalidf("cannot compute next run: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nextRunAt": next})
}
