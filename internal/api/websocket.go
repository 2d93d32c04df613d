package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// wsUpgrader mirrors the teacher's origin-checked upgrader; CheckOrigin is
// left permissive here since the runner fleet's allowed origins are a
// deployment-time configuration concern, not a kernel one.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSubscribe upgrades to a websocket and subscribes it to the
// channels named by the repeated ?channel= query parameter (spec.md §6
// "Event subscription").
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	channels := r.URL.Query()["channel"]
	if len(channels) == 0 {
		if raw := r.URL.Query().Get("channels"); raw != "" {
			channels = strings.Split(raw, ",")
		}
	}
	if len(channels) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one channel is required"})
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := s.bus.Register(conn, channels)
	go sub.ReadPump()
	go sub.WritePump()
}
