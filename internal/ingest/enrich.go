package ingest

import (
	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/refdata"
)

// RefEnricher applies the shared reference tables to freshly normalized
// listings: salvage keywords in the raw variant text set excluded_reason,
// and the variant-family whitelist backfills variant_family. Existing
// values are never overwritten.
type RefEnricher struct {
	Ref *refdata.Set
}

// Enrich implements Enricher.
func (r *RefEnricher) Enrich(l *db.NormalizedListing) {
	if r.Ref == nil {
		return
	}
	if l.ExcludedReason == nil {
		if reason, ok := r.Ref.SalvageReason(l.VariantRaw); ok {
			l.ExcludedReason = &reason
		}
	}
	if l.VariantFamily == nil {
		if family, ok := r.Ref.FamilyFor(l.VariantNormalised); ok {
			l.VariantFamily = &family
		}
	}
}
