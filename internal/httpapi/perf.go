package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) perfRoutes(r chi.Router) {
	r.Get("/latency", s.handlePerfLatency)
	r.Delete("/latency", s.handlePerfReset)
}

// handlePerfLatency serves the rolling stage latency window. Without metrics
// the window is simply empty.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ResetLatency()
	w.WriteHeader(http.StatusNoContent)
}
