package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angus/lotscout/internal/config"
	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/matching"
)

type memStore struct {
	jobs     map[uuid.UUID]*db.Job
	upserted []*db.NormalizedListing
	matches  []db.RankedMatch
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*db.Job)}
}

func (m *memStore) EnqueueJob(_ context.Context, source, externalRunID string) (*db.Job, error) {
	j := &db.Job{
		ID:            uuid.New(),
		Source:        source,
		ExternalRunID: externalRunID,
		Status:        db.JobQueued,
		CreatedAt:     time.Now(),
	}
	m.jobs[j.ID] = j
	return j, nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*db.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return j, nil
}

func (m *memStore) ListJobs(_ context.Context, filters db.JobFilters) ([]db.Job, error) {
	var jobs []db.Job
	for _, j := range m.jobs {
		if filters.Source != "" && j.Source != filters.Source {
			continue
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (m *memStore) UpsertListingBatch(_ context.Context, listings []*db.NormalizedListing) (db.BatchResult, error) {
	m.upserted = append(m.upserted, listings...)
	return db.BatchResult{Created: len(listings)}, nil
}

func (m *memStore) ListRankedMatches(_ context.Context, _ int) ([]db.RankedMatch, error) {
	return m.matches, nil
}

type stubMatcher struct {
	result *matching.RunResult
	runs   int
}

func (s *stubMatcher) Run(context.Context) (*matching.RunResult, error) {
	s.runs++
	return s.result, nil
}

func newTestServer(t *testing.T) (*Server, *memStore, *stubMatcher) {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	store := newMemStore()
	matcher := &stubMatcher{result: &matching.RunResult{Matches: 2, Precision: 1}}
	jwtService := NewJWTService(&config.JWTConfig{Secret: "test-secret", ExpirationHours: 1})
	srv := New(config.Config{Port: 0, WebhookToken: "hook-token"}, store, matcher, jwtService, zerolog.Nop())
	return srv, store, matcher
}

func dealerToken(t *testing.T, srv *Server) string {
	t.Helper()
	token, err := srv.jwtService.GenerateToken(uuid.New())
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnqueueJob(t *testing.T) {
	srv, store, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"source": "stub", "external_run_id": "run-42"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Authorization", "Bearer "+dealerToken(t, srv))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job db.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "stub", job.Source)
	assert.Equal(t, db.JobQueued, job.Status)
	assert.Len(t, store.jobs, 1)
}

func TestEnqueueJob_UnknownSource(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"source": "nope", "external_run_id": "run-42"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Authorization", "Bearer "+dealerToken(t, srv))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueJob_RequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"source": "stub", "external_run_id": "run-42"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+dealerToken(t, srv))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestWebhook(t *testing.T) {
	srv, store, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"items": [
		{"source_stock_id": "S-1", "year": 2019, "make": "Toyota", "model": "Hilux", "raw_text": "SR5 4x4"},
		{"source_stock_id": "S-2"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/ingest/pickles/webhook", body)
	req.Header.Set("Authorization", "Bearer hook-token")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res db.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Created)

	require.Len(t, store.upserted, 2)
	assert.Equal(t, "pickles", store.upserted[0].Source)
	assert.Equal(t, "S-1", store.upserted[0].SourceListingID)
	assert.True(t, store.upserted[0].VisibleToDealers)
}

func TestIngestWebhook_SchemaRejects(t *testing.T) {
	srv, store, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"items": [{"detail_url": "https://x"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/ingest/pickles/webhook", body)
	req.Header.Set("Authorization", "Bearer hook-token")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "schema validation failed")
	assert.Empty(t, store.upserted, "nothing persisted on validation failure")
}

func TestIngestWebhook_BadToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"items": []}`)
	req := httptest.NewRequest(http.MethodPost, "/ingest/pickles/webhook", body)
	req.Header.Set("Authorization", "Bearer wrong")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListMatches(t *testing.T) {
	srv, store, _ := newTestServer(t)
	store.matches = []db.RankedMatch{{
		Match: db.Match{
			ID:     uuid.New(),
			Tier:   1,
			Lane:   db.LanePrecision,
			Action: db.ActionBuy,
		},
		ListingConfidence: 0.9,
	}}
	req := httptest.NewRequest(http.MethodGet, "/matches", nil)
	req.Header.Set("Authorization", "Bearer "+dealerToken(t, srv))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"precision"`)
}

func TestRunMatching(t *testing.T) {
	srv, _, matcher := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/matching/run", nil)
	req.Header.Set("Authorization", "Bearer "+dealerToken(t, srv))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, matcher.runs)

	var res matching.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Matches)
}
