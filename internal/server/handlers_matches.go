package server

import (
	"net/http"
	"strconv"
)

// handleListMatches returns the standing match set in rank order.
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	matches, err := s.store.ListRankedMatches(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list matches")
		s.errorResponse(w, HTTPStatus(err), "failed to list matches")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"matches": matches})
}

// handleRunMatching triggers a synchronous matching pass and returns its
// summary. Matching is read-only over listings and fingerprints, so
// concurrent triggers are safe; the last writer's match set wins.
func (s *Server) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	res, err := s.matcher.Run(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("matching run failed")
		s.errorResponse(w, HTTPStatus(err), "matching run failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}
