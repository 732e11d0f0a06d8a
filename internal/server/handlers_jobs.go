package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/ingest"
)

var validateRequest = validator.New(validator.WithRequiredStructEnabled())

type enqueueJobRequest struct {
	Source        string `json:"source" validate:"required"`
	ExternalRunID string `json:"external_run_id" validate:"required"`
}

// handleEnqueueJob creates a queued ingestion job for a registered source.
func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateRequest.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := ingest.NewAdapter(req.Source); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "unknown source: "+req.Source)
		return
	}

	job, err := s.store.EnqueueJob(r.Context(), req.Source, req.ExternalRunID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to enqueue job")
		s.errorResponse(w, HTTPStatus(err), "failed to enqueue job")
		return
	}
	s.jsonResponse(w, http.StatusCreated, job)
}

// handleListJobs returns recent jobs, optionally filtered by source and
// status query parameters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Source: r.URL.Query().Get("source"),
		Status: db.JobStatus(r.URL.Query().Get("status")),
	}
	jobs, err := s.store.ListJobs(r.Context(), filters)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list jobs")
		s.errorResponse(w, HTTPStatus(err), "failed to list jobs")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), "job not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}
