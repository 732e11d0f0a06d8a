package db

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

// Ingestion job statuses persisted in ingest_jobs.status.
const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobFetching JobStatus = "fetching"
	JobDone     JobStatus = "done"
	JobError    JobStatus = "error"
)

// ActiveJobStatuses are the statuses a worker may claim.
var ActiveJobStatuses = []JobStatus{JobQueued, JobRunning, JobFetching}

// Job represents one unit of ingestion work (one external scrape run).
// Only the current lease holder may mutate a job; leases expire by TTL.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	ExternalRunID string     `json:"external_run_id"`
	Source        string     `json:"source"`
	Status        JobStatus  `json:"status"`
	LockToken     *uuid.UUID `json:"lock_token,omitempty"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`

	// ProgressCursor is the offset into the paginated external result set
	// at which the next claimant resumes.
	ProgressCursor int   `json:"progress_cursor"`
	ItemsFetched   int64 `json:"items_fetched"`
	ItemsUpserted  int64 `json:"items_upserted"`

	Attempts  int     `json:"attempts"`
	LastError *string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListingStatus is the marketplace lifecycle state of a listing.
type ListingStatus string

// Listing statuses. Listings are never deleted; status is the soft lifecycle.
const (
	ListingCatalogue ListingStatus = "catalogue"
	ListingUpcoming  ListingStatus = "upcoming"
	ListingCleared   ListingStatus = "cleared"
	ListingPassedIn  ListingStatus = "passed_in"
	ListingWithdrawn ListingStatus = "withdrawn"
	ListingSold      ListingStatus = "sold"
)

// NormalizedListing is the canonical representation of a scraped vehicle
// listing, keyed by (source, source_listing_id).
type NormalizedListing struct {
	ID              uuid.UUID `json:"id"`
	Source          string    `json:"source"`
	SourceListingID string    `json:"source_listing_id"`

	Year              int     `json:"year"`
	Make              string  `json:"make"`
	Model             string  `json:"model"`
	VariantRaw        string  `json:"variant_raw"`
	VariantNormalised string  `json:"variant_normalised"`
	VariantFamily     *string `json:"variant_family,omitempty"` // precomputed offline, never derived at match time
	KM                int     `json:"km"`
	Price             int     `json:"price"`
	Location          string  `json:"location"`

	// Optional refinement attributes; empty when a source does not expose
	// them, in which case they never constrain a match.
	Engine       string `json:"engine,omitempty"`
	Drivetrain   string `json:"drivetrain,omitempty"`
	Transmission string `json:"transmission,omitempty"`

	Status           ListingStatus `json:"status"`
	VisibleToDealers bool          `json:"visible_to_dealers"`
	ExcludedReason   *string       `json:"excluded_reason,omitempty"`
	AuctionAt        *time.Time    `json:"auction_at,omitempty"`
	Confidence       float64       `json:"confidence"`

	DetailURL   string    `json:"detail_url,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// FutureCatalogueLot reports whether the listing is an upcoming catalogue
// lot with its auction still ahead. Such lots stay eligible for matching
// but only at Tier 2.
func (l *NormalizedListing) FutureCatalogueLot(now time.Time) bool {
	if l.AuctionAt == nil {
		return false
	}
	if l.Status != ListingCatalogue && l.Status != ListingUpcoming {
		return false
	}
	return l.AuctionAt.After(now)
}

// Fingerprint is a dealer's standing buy criterion.
type Fingerprint struct {
	ID       uuid.UUID `json:"id"`
	DealerID uuid.UUID `json:"dealer_id"`

	Make              string  `json:"make"`
	Model             string  `json:"model"`
	VariantNormalised string  `json:"variant_normalised"`
	VariantFamily     *string `json:"variant_family,omitempty"`

	YearMin int  `json:"year_min"`
	YearMax int  `json:"year_max"`
	KMMin   *int `json:"km_min,omitempty"`
	KMMax   *int `json:"km_max,omitempty"`

	// Optional refinement filters; empty string means "not specified".
	Engine       string `json:"engine,omitempty"`
	Drivetrain   string `json:"drivetrain,omitempty"`
	Transmission string `json:"transmission,omitempty"`

	IsActive  bool       `json:"is_active"`
	DoNotBuy  bool       `json:"do_not_buy"`
	ExpiresAt time.Time  `json:"expires_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpecOnly reports whether the fingerprint carries no km bounds. Km is
// ignored when matching against a spec-only fingerprint.
func (f *Fingerprint) SpecOnly() bool {
	return f.KMMin == nil || f.KMMax == nil
}

// Eligible reports whether the fingerprint participates in matching at all.
func (f *Fingerprint) Eligible(now time.Time) bool {
	return f.IsActive && !f.DoNotBuy && f.DeletedAt == nil && f.ExpiresAt.After(now)
}

// MatchLane is the coarse confidence bucket of a match.
type MatchLane string

// Lanes in priority order: Precision before Advisory before Probable.
const (
	LanePrecision MatchLane = "precision"
	LaneAdvisory  MatchLane = "advisory"
	LaneProbable  MatchLane = "probable"
)

// MatchType records which rule produced the match.
type MatchType string

const (
	MatchKMBounded     MatchType = "km_bounded"
	MatchSpecOnly      MatchType = "spec_only"
	MatchVariantFamily MatchType = "variant_family"
)

// MatchAction is the recommended action for a match. Probable-lane matches
// never promote to buy.
type MatchAction string

const (
	ActionBuy   MatchAction = "buy"
	ActionWatch MatchAction = "watch"
)

// Match is one (fingerprint, listing) pair produced by a matching run.
// Matches are recomputed per run, not incrementally maintained.
type Match struct {
	ID            uuid.UUID   `json:"id"`
	FingerprintID uuid.UUID   `json:"fingerprint_id"`
	ListingID     uuid.UUID   `json:"listing_id"`
	Tier          int         `json:"tier"`
	Lane          MatchLane   `json:"lane"`
	MatchType     MatchType   `json:"match_type"`
	Action        MatchAction `json:"action"`
	Confidence    float64     `json:"confidence"`
	MatchedAt     time.Time   `json:"matched_at"`
}

// WinnerSale is a dealer's historical profitable flip, used by
// winner-replication scoring.
type WinnerSale struct {
	ID                uuid.UUID `json:"id"`
	DealerID          uuid.UUID `json:"dealer_id"`
	Make              string    `json:"make"`
	Model             string    `json:"model"`
	VariantNormalised string    `json:"variant_normalised"`
	MedianKM          int       `json:"median_km"`
	SaleMargin        int       `json:"sale_margin"`
	SoldAt            time.Time `json:"sold_at"`
}
