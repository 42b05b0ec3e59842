package api

import (
	"net/http"
)

func (s *Server) handleOpStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
		"operations":  s.ops.Snapshot(),
	})
}
