package matching

import (
	"time"

	"github.com/angus/lotscout/internal/db"
)

// yearTolerance is the permitted difference between listing year and either
// end of the fingerprint's year range.
const yearTolerance = 1

// Candidate is one (fingerprint, listing) pair that met minimum criteria.
type Candidate struct {
	Fingerprint *db.Fingerprint
	Listing     *db.NormalizedListing

	Tier      int
	Lane      db.MatchLane
	MatchType db.MatchType
	Action    db.MatchAction
}

// Match evaluates a single pair. It assumes both sides already passed
// their own eligibility pre-filters (see EligibleListing and
// Fingerprint.Eligible); per-pair disqualifiers and tiering happen here.
// Returns (nil, false) when the pair produces nothing.
func Match(spec *db.Fingerprint, listing *db.NormalizedListing, now time.Time) (*Candidate, bool) {
	// Hard disqualifier on the listing.
	if listing.ExcludedReason != nil && *listing.ExcludedReason != "" {
		return nil, false
	}

	// Make/model must match exactly.
	if canon(spec.Make) != canon(listing.Make) || canon(spec.Model) != canon(listing.Model) {
		return nil, false
	}

	// Year tolerance: the listing may sit at most one year outside the
	// fingerprint's range.
	if listing.Year < spec.YearMin-yearTolerance || listing.Year > spec.YearMax+yearTolerance {
		return nil, false
	}

	futureLot := listing.FutureCatalogueLot(now)

	// Tier 1: exact variant. Discarded outright for future catalogue lots.
	if !futureLot {
		if c, ok := tierOne(spec, listing); ok {
			return c, true
		}
	}

	// Tier 2: pre-stored variant family.
	return tierTwo(spec, listing)
}

func tierOne(spec *db.Fingerprint, listing *db.NormalizedListing) (*Candidate, bool) {
	if canon(spec.VariantNormalised) != canon(listing.VariantNormalised) {
		return nil, false
	}

	if spec.SpecOnly() {
		// No km bounds: km, engine, drivetrain and transmission are not
		// checked at all.
		return &Candidate{
			Fingerprint: spec,
			Listing:     listing,
			Tier:        1,
			Lane:        db.LaneAdvisory,
			MatchType:   db.MatchSpecOnly,
			Action:      actionFor(db.LaneAdvisory),
		}, true
	}

	// Full fingerprint: refinement fields must agree where both sides
	// specify one. A mismatch falls through to Tier 2 rather than
	// rejecting the pair.
	if !fieldsAgree(spec.Engine, listing.Engine) ||
		!fieldsAgree(spec.Drivetrain, listing.Drivetrain) ||
		!fieldsAgree(spec.Transmission, listing.Transmission) {
		return nil, false
	}

	if listing.KM < *spec.KMMin || listing.KM > *spec.KMMax {
		// KM outside bounds: no Tier 1 match, Tier 2 may still apply.
		return nil, false
	}

	return &Candidate{
		Fingerprint: spec,
		Listing:     listing,
		Tier:        1,
		Lane:        db.LanePrecision,
		MatchType:   db.MatchKMBounded,
		Action:      actionFor(db.LanePrecision),
	}, true
}

func tierTwo(spec *db.Fingerprint, listing *db.NormalizedListing) (*Candidate, bool) {
	if !familiesEqual(spec.VariantFamily, listing.VariantFamily) {
		return nil, false
	}

	// Full fingerprints still enforce km at Tier 2; outside range rejects
	// with no further fallback. Spec-only fingerprints ignore km.
	if !spec.SpecOnly() {
		if listing.KM < *spec.KMMin || listing.KM > *spec.KMMax {
			return nil, false
		}
	}

	return &Candidate{
		Fingerprint: spec,
		Listing:     listing,
		Tier:        2,
		Lane:        db.LaneProbable,
		MatchType:   db.MatchVariantFamily,
		Action:      actionFor(db.LaneProbable),
	}, true
}

// actionFor is the single enforcement point for action promotion: only a
// Precision match recommends a buy. Probable matches stay advisory no
// matter how high the confidence score, pending external pressure signals
// (repeated pass-ins, days on market, reserve drops).
func actionFor(lane db.MatchLane) db.MatchAction {
	if lane == db.LanePrecision {
		return db.ActionBuy
	}
	return db.ActionWatch
}

// EligibleListing applies the listing-side pre-filters: dealer-visible and
// not sold/withdrawn. Future catalogue lots stay eligible; Match restricts
// them to Tier 2.
func EligibleListing(l *db.NormalizedListing) bool {
	if !l.VisibleToDealers {
		return false
	}
	switch l.Status {
	case db.ListingSold, db.ListingWithdrawn:
		return false
	}
	return true
}
