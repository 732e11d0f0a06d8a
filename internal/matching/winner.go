package matching

import (
	"strings"

	"github.com/angus/lotscout/internal/db"
)

// Winner-replication scoring: a specialized matcher for listings that look
// like a dealer's own historically profitable flips. Scores a listing
// against a past sale on variant similarity and km distance, then decides
// whether the estimated margin clears a confidence-scaled dollar threshold.

const (
	// kmTolerance is the band within which km distance earns full credit.
	kmTolerance = 15000

	badgeWeight = 0.6
	kmWeight    = 0.4

	// baseDollarThreshold is the margin an exact-badge opportunity must
	// clear. Weaker badge matches need proportionally more.
	baseDollarThreshold = 2000.0

	// maxDeltaRatio caps a plausible margin relative to asking price.
	// Anything above it is treated as an estimation artifact.
	maxDeltaRatio = 0.5
)

// BadgeScore compares normalized variants: 1.0 exact, 0.7 when one
// contains the other, 0 otherwise. A zero badge is a hard reject.
func BadgeScore(saleVariant, listingVariant string) float64 {
	a, b := canon(saleVariant), canon(listingVariant)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.7
	}
	return 0
}

// KMScore scores distance from the historical sale's median km in fixed
// tolerance bands: full credit within the base tolerance, partial credit
// out to 1.5x and 2x, zero beyond.
func KMScore(saleMedianKM, listingKM int) float64 {
	diff := float64(absInt(listingKM - saleMedianKM))
	switch {
	case diff <= kmTolerance:
		return 1.0
	case diff <= 1.5*kmTolerance:
		return 0.6
	case diff <= 2*kmTolerance:
		return 0.3
	}
	return 0
}

// WinnerScore is the outcome of scoring one listing against one past sale.
type WinnerScore struct {
	Sale    *db.WinnerSale
	Listing *db.NormalizedListing

	Badge    float64 `json:"badge"`
	KM       float64 `json:"km"`
	Combined float64 `json:"combined"`

	// EstimatedDelta is the projected margin in dollars; Threshold is the
	// badge-scaled margin it had to clear.
	EstimatedDelta float64 `json:"estimated_delta"`
	Threshold      float64 `json:"threshold"`
}

// ScoreWinner scores a listing against a historical sale. estimatedDelta is
// the projected profit on reselling the listing. Returns (nil, false) when
// the pair rejects: make/model mismatch, zero badge, km beyond all bands,
// or a delta outside guardrails.
func ScoreWinner(sale *db.WinnerSale, listing *db.NormalizedListing, estimatedDelta float64) (*WinnerScore, bool) {
	if canon(sale.Make) != canon(listing.Make) || canon(sale.Model) != canon(listing.Model) {
		return nil, false
	}

	badge := BadgeScore(sale.VariantNormalised, listing.VariantNormalised)
	if badge == 0 {
		return nil, false
	}
	km := KMScore(sale.MedianKM, listing.KM)
	if km == 0 {
		return nil, false
	}

	// Guardrails: a non-positive delta is no opportunity, and a delta above
	// half the asking price is an estimation artifact, not a bargain.
	if estimatedDelta <= 0 {
		return nil, false
	}
	if listing.Price > 0 && estimatedDelta > maxDeltaRatio*float64(listing.Price) {
		return nil, false
	}

	// The threshold loosens inversely with badge confidence: a weaker badge
	// match must promise a larger margin to surface.
	threshold := baseDollarThreshold / badge
	if estimatedDelta < threshold {
		return nil, false
	}

	return &WinnerScore{
		Sale:           sale,
		Listing:        listing,
		Badge:          badge,
		KM:             km,
		Combined:       badgeWeight*badge + kmWeight*km,
		EstimatedDelta: estimatedDelta,
		Threshold:      threshold,
	}, true
}
