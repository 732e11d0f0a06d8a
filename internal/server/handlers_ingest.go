package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/ingest"
	"github.com/angus/lotscout/internal/schemas"
	"github.com/angus/lotscout/internal/server/middleware"
)

// maxWebhookBody caps the request body at 2 MiB; the schema additionally
// caps items per request.
const maxWebhookBody = 2 << 20

type stubIngestItem struct {
	SourceStockID string `json:"source_stock_id"`
	DetailURL     string `json:"detail_url,omitempty"`
	Year          int    `json:"year,omitempty"`
	Make          string `json:"make,omitempty"`
	Model         string `json:"model,omitempty"`
	Location      string `json:"location,omitempty"`
	RawText       string `json:"raw_text,omitempty"`
}

type stubIngestRequest struct {
	Items []stubIngestItem `json:"items"`
}

// WithEnricher installs the reference-data enrichment stage for webhook
// ingests. Returns s for chaining.
func (s *Server) WithEnricher(enrich ingest.Enricher) *Server {
	s.enrich = enrich
	return s
}

// handleIngestWebhook accepts listing batches from out-of-process scrapers
// that cannot run inside the workers. The body is schema-validated before
// anything touches the database; individual row failures surface as
// exception counts, not errors.
func (s *Server) handleIngestWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeWebhook(r) {
		s.errorResponse(w, http.StatusUnauthorized, "missing or invalid webhook token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := schemas.ValidateString(schemas.StubIngest, string(body)); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			s.jsonResponse(w, http.StatusBadRequest, map[string]any{
				"error":  "schema validation failed",
				"fields": ve.Errors,
			})
			return
		}
		s.log.Error().Err(err).Msg("schema load failed")
		s.errorResponse(w, http.StatusInternalServerError, "schema validation unavailable")
		return
	}

	var req stubIngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	source := r.PathValue("source")
	listings := make([]*db.NormalizedListing, 0, len(req.Items))
	for _, item := range req.Items {
		l := &db.NormalizedListing{
			Source:           source,
			SourceListingID:  item.SourceStockID,
			Year:             item.Year,
			Make:             item.Make,
			Model:            item.Model,
			Location:         item.Location,
			VariantRaw:       item.RawText,
			DetailURL:        item.DetailURL,
			Status:           db.ListingCatalogue,
			VisibleToDealers: true,
		}
		if s.enrich != nil {
			s.enrich.Enrich(l)
		}
		listings = append(listings, l)
	}

	res, err := s.store.UpsertListingBatch(r.Context(), listings)
	if err != nil {
		s.log.Error().Err(err).Str("source", source).Msg("batch upsert failed")
		s.errorResponse(w, HTTPStatus(err), "failed to persist listings")
		return
	}

	s.log.Info().
		Str("source", source).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("exceptions", res.Exceptions).
		Msg("webhook ingest")
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) authorizeWebhook(r *http.Request) bool {
	if s.webhookToken == "" {
		return false
	}
	token, ok := middleware.BearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) == 1
}
