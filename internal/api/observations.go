package api

import (
	"net/http"
	"strconv"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/observations"
	"github.com/gorilla/mux"
)

const defaultObservationLimit = 50

func (s *Server) handleObservationCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]

	var body struct {
		Type     string   `json:"type"`
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Files    []string `json:"files,omitempty"`
		Concepts []string `json:"concepts,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	o := observations.New(workspaceID, body.Type, body.Title, body.Content)
	o.Files = body.Files
	o.Concepts = body.Concepts

	if err := s.observationStore.Save(o); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleObservationBatch(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]

	var body struct {
		Observations []struct {
			Type     string   `json:"type"`
			Title    string   `json:"title"`
			Content  string   `json:"content"`
			Files    []string `json:"files,omitempty"`
			Concepts []string `json:"concepts,omitempty"`
		} `json:"observations"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}

	batch := make([]*observations.Observation, 0, len(body.Observations))
	for _, ob := range body.Observations {
		o := observations.New(workspaceID, ob.Type, ob.Title, ob.Content)
		o.Files = ob.Files
		o.Concepts = ob.Concepts
		batch = append(batch, o)
	}

	if err := s.observationStore.BatchSave(batch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleObservationList(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	limit := parseLimit(r, defaultObservationLimit)

	list, err := s.observationStore.ListByWorkspace(workspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleObservationSearch(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	query := r.URL.Query().Get("q")
	limit := parseLimit(r, defaultObservationLimit)

	list, err := s.observationStore.Search(workspaceID, observations.SanitizeFTSQuery(query), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleObservationCompact(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	digest, err := s.observationStore.Compact(workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleObservationDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["oid"]
	if err := s.observationStore.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
