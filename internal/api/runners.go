package api

import (
	"net/http"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
	"github.com/buildd-ai/coordinatord/internal/runners"
)

func (s *Server) handleRunnerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb runners.Heartbeat
	if err := decodeJSON(r, &hb); err != nil {
		writeError(w, kernelerr.Invalidf("malformed request body: %v", err))
		return
	}
	if hb.RunnerID == "" {
		writeError(w, kernelerr.Invalidf("runnerId is required"))
		return
	}

	runner, err := s.runnerStore.Upsert(hb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runner)
}
