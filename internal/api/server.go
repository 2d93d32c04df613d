// Package api wires the coordination kernel's components onto an HTTP
// surface. The router and request parsing are a collaborator concern
// per spec.md §1; this package is the thin adapter the spec's §6 table
// describes.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/buildd-ai/coordinatord/internal/artifacts"
	"github.com/buildd-ai/coordinatord/internal/claim"
	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/observations"
	"github.com/buildd-ai/coordinatord/internal/outputgate"
	"github.com/buildd-ai/coordinatord/internal/plan"
	"github.com/buildd-ai/coordinatord/internal/reassign"
	"github.com/buildd-ai/coordinatord/internal/runners"
	"github.com/buildd-ai/coordinatord/internal/schedule"
	"github.com/buildd-ai/coordinatord/internal/skills"
	"github.com/buildd-ai/coordinatord/internal/tasks"
	"github.com/buildd-ai/coordinatord/internal/workers"
	"github.com/gorilla/mux"
)

// Server holds every store/engine the HTTP surface dispatches to.
type Server struct {
	db *sql.DB

	auth AuthContext
	bus  *dispatch.Bus

	taskStore        *tasks.Store
	workerStore      *workers.Store
	runnerStore      *runners.Store
	scheduleStore    *schedule.Store
	observationStore *observations.Store
	skillStore       *skills.Store
	artifactStore    *artifacts.Store

	claimEngine *claim.Engine
	reassigner  *reassign.Reassigner
	gate        *outputgate.Gate
	resolver    *tasks.Resolver
	installer   *skills.Installer
	planStore   *plan.Store
}

// New builds a Server over the shared database and dispatch bus. leaseTTL
// of 0 falls back to the claim.Engine default (15 minutes, spec.md §5).
func New(db *sql.DB, auth AuthContext, accounts claim.AccountLookup, bus *dispatch.Bus, leaseTTL time.Duration) *Server {
	taskStore := tasks.NewStore(db)
	workerStore := workers.NewStore(db)
	artifactStore := artifacts.NewStore(db)
	skillStore := skills.NewStore(db)

	return &Server{
		db:               db,
		auth:             auth,
		bus:              bus,
		taskStore:        taskStore,
		workerStore:      workerStore,
		runnerStore:      runners.NewStore(db),
		scheduleStore:    schedule.NewStore(db),
		observationStore: observations.NewStore(db),
		skillStore:       skillStore,
		artifactStore:    artifactStore,
		claimEngine:      claim.New(db, accounts, bus, leaseTTL),
		reassigner:       reassign.NewReassigner(db, bus),
		gate:             outputgate.New(artifactStore),
		resolver:         tasks.NewResolver(taskStore, bus),
		installer:        skills.NewInstaller(skillStore, bus, nil),
		planStore:        plan.NewStore(workerStore, bus),
	}
}

// Router builds the gorilla/mux router for the full §6 surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(SecurityHeaders)

	authed := r.NewRoute().Subrouter()
	authed.Use(RequireAPIKey(s.auth))

	authed.HandleFunc("/workers/claim", s.handleClaim).Methods(http.MethodPost)
	authed.HandleFunc("/workers/mine", s.handleWorkersMine).Methods(http.MethodGet)
	authed.HandleFunc("/workers/active", s.handleWorkersActive).Methods(http.MethodGet)
	authed.HandleFunc("/workers/{id}", s.handleWorkerGet).Methods(http.MethodGet)
	authed.HandleFunc("/workers/{id}", s.handleWorkerPatch).Methods(http.MethodPatch)
	authed.HandleFunc("/workers/{id}/artifacts", s.handleArtifactCreate).Methods(http.MethodPost)
	authed.HandleFunc("/workers/{id}/artifacts", s.handleArtifactList).Methods(http.MethodGet)

	authed.HandleFunc("/tasks", s.handleTaskCreate).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/{id}", s.handleTaskGet).Methods(http.MethodGet)
	authed.HandleFunc("/tasks/{id}", s.handleTaskPatch).Methods(http.MethodPatch)
	authed.HandleFunc("/tasks/{id}", s.handleTaskDelete).Methods(http.MethodDelete)
	authed.HandleFunc("/tasks/{id}/start", s.handleTaskStart).Methods(http.MethodPost)
	authed.HandleFunc("/tasks/{id}/reassign", s.handleTaskReassign).Methods(http.MethodPost)

	authed.HandleFunc("/workspaces/{id}/schedules", s.handleScheduleCreate).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{id}/schedules", s.handleScheduleList).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/schedules/validate", s.handleScheduleValidate).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/schedules/{sid}", s.handleScheduleGet).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/schedules/{sid}", s.handleScheduleUpdate).Methods(http.MethodPatch)

	authed.HandleFunc("/workspaces/{id}/observations", s.handleObservationList).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/observations/search", s.handleObservationSearch).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/observations/compact", s.handleObservationCompact).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/observations/batch", s.handleObservationBatch).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{id}/observations", s.handleObservationCreate).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{id}/observations/{oid}", s.handleObservationDelete).Methods(http.MethodDelete)

	authed.HandleFunc("/workspaces/{id}/skills", s.handleSkillList).Methods(http.MethodGet)
	authed.HandleFunc("/workspaces/{id}/skills", s.handleSkillCreate).Methods(http.MethodPost)
	authed.HandleFunc("/workspaces/{id}/skills/install", s.handleSkillInstall).Methods(http.MethodPost)

	r.HandleFunc("/runners/heartbeat", s.handleRunnerHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleSubscribe)

	return r
}
