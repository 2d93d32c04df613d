package api

import (
	"encoding/json"
	"net/http"

	"github.com/buildd-ai/coordinatord/internal/kernelerr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates a kernelerr.Error to its documented HTTP status
// (spec.md §7); any other error is surfaced as a 500.
func writeError(w http.ResponseWriter, err error) {
	kerr, ok := kernelerr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	body := map[string]any{"error": kerr.Reason, "code": kerr.Code}
	if kerr.Hint != "" {
		body["hint"] = kerr.Hint
	}
	for k, v := range kerr.Details {
		body[k] = v
	}

	status := http.StatusInternalServerError
	switch kerr.Code {
	case kernelerr.Unauthorized:
		status = http.StatusUnauthorized
	case kernelerr.Forbidden:
		status = http.StatusForbidden
	case kernelerr.NotFound:
		status = http.StatusNotFound
	case kernelerr.Conflict:
		status = http.StatusConflict
	case kernelerr.CapacityExceeded:
		status = http.StatusTooManyRequests
	case kernelerr.OutputGateFailed:
		status = http.StatusBadRequest
	case kernelerr.Invalid:
		status = http.StatusBadRequest
	case kernelerr.Aborted:
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
