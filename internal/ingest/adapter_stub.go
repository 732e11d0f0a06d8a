package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angus/lotscout/internal/db"
)

func init() {
	RegisterAdapter("stub", func() SourceAdapter { return &StubAdapter{Total: 250} })
}

// StubAdapter is a deterministic offline source used in development and
// smoke tests. It fabricates a fixed-size result set so executor runs are
// reproducible end to end without network access.
type StubAdapter struct {
	// Total is the size of the fabricated result set.
	Total int
}

// Source implements SourceAdapter.
func (a *StubAdapter) Source() string { return "stub" }

// RunStatus always reports the fabricated run complete.
func (a *StubAdapter) RunStatus(_ context.Context, _ string) (RunState, error) {
	return RunComplete, nil
}

// FetchPage returns the deterministic page at cursor.
func (a *StubAdapter) FetchPage(_ context.Context, externalRunID string, cursor, size int) ([]RawItem, error) {
	if cursor >= a.Total {
		return nil, nil
	}
	end := cursor + size
	if end > a.Total {
		end = a.Total
	}
	items := make([]RawItem, 0, end-cursor)
	for i := cursor; i < end; i++ {
		items = append(items, RawItem{
			SourceListingID: fmt.Sprintf("%s-%06d", externalRunID, i),
			Fields: map[string]string{
				"year":    strconv.Itoa(2015 + i%10),
				"make":    "Toyota",
				"model":   "Hilux",
				"variant": "SR5",
				"km":      strconv.Itoa(20000 + i*137%180000),
				"price":   strconv.Itoa(18000 + i*53%42000),
			},
		})
	}
	return items, nil
}

// Normalize maps a stub item to the canonical listing shape.
func (a *StubAdapter) Normalize(item RawItem) (*db.NormalizedListing, error) {
	if item.SourceListingID == "" {
		return nil, fmt.Errorf("missing source listing id")
	}
	year, err := strconv.Atoi(item.Fields["year"])
	if err != nil {
		return nil, fmt.Errorf("bad year %q: %w", item.Fields["year"], err)
	}
	km, err := strconv.Atoi(item.Fields["km"])
	if err != nil {
		return nil, fmt.Errorf("bad km %q: %w", item.Fields["km"], err)
	}
	price, _ := strconv.Atoi(item.Fields["price"])

	variant := strings.TrimSpace(item.Fields["variant"])
	auction := time.Now().Add(72 * time.Hour).Truncate(time.Hour)
	return &db.NormalizedListing{
		Source:            a.Source(),
		SourceListingID:   item.SourceListingID,
		Year:              year,
		Make:              strings.TrimSpace(item.Fields["make"]),
		Model:             strings.TrimSpace(item.Fields["model"]),
		VariantRaw:        variant,
		VariantNormalised: strings.ToUpper(variant),
		KM:                km,
		Price:             price,
		Status:            db.ListingCatalogue,
		VisibleToDealers:  true,
		AuctionAt:         &auction,
		Confidence:        0.9,
	}, nil
}
