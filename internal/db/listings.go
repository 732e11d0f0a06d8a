package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const listingColumns = `id, source, source_listing_id, year, make, model,
	variant_raw, variant_normalised, variant_family, km, price, location,
	engine, drivetrain, transmission, status, visible_to_dealers,
	excluded_reason, auction_at, confidence, detail_url, first_seen_at,
	last_seen_at`

func scanListing(row pgx.Row) (*NormalizedListing, error) {
	var l NormalizedListing
	err := row.Scan(&l.ID, &l.Source, &l.SourceListingID, &l.Year, &l.Make,
		&l.Model, &l.VariantRaw, &l.VariantNormalised, &l.VariantFamily,
		&l.KM, &l.Price, &l.Location, &l.Engine, &l.Drivetrain,
		&l.Transmission, &l.Status, &l.VisibleToDealers, &l.ExcludedReason,
		&l.AuctionAt, &l.Confidence, &l.DetailURL, &l.FirstSeenAt,
		&l.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const upsertListingSQL = `INSERT INTO listings
	(source, source_listing_id, year, make, model, variant_raw,
	 variant_normalised, variant_family, km, price, location, engine,
	 drivetrain, transmission, status, visible_to_dealers, excluded_reason,
	 auction_at, confidence, detail_url)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	ON CONFLICT (source, source_listing_id) DO UPDATE SET
	    year = $3,
	    make = $4,
	    model = $5,
	    variant_raw = $6,
	    variant_normalised = $7,
	    variant_family = COALESCE($8, listings.variant_family),
	    km = $9,
	    price = $10,
	    location = $11,
	    engine = $12,
	    drivetrain = $13,
	    transmission = $14,
	    status = $15,
	    visible_to_dealers = $16,
	    excluded_reason = $17,
	    auction_at = $18,
	    confidence = $19,
	    detail_url = $20,
	    last_seen_at = NOW()`

// UpsertListing idempotently persists a listing keyed by
// (source, source_listing_id). A repeat sighting overwrites attributes and
// advances last_seen_at; first_seen_at is preserved. A precomputed
// variant_family is never clobbered by a null (enrichment workers backfill
// it without disturbing identity). Returns whether the row was created.
func (db *DB) UpsertListing(ctx context.Context, l *NormalizedListing) (bool, error) {
	var isNew bool
	err := db.pool.QueryRow(ctx,
		upsertListingSQL+` RETURNING (xmax = 0)`,
		l.Source, l.SourceListingID, l.Year, l.Make, l.Model, l.VariantRaw,
		l.VariantNormalised, l.VariantFamily, l.KM, l.Price, l.Location,
		l.Engine, l.Drivetrain, l.Transmission, l.Status, l.VisibleToDealers,
		l.ExcludedReason, l.AuctionAt, l.Confidence, l.DetailURL,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("failed to upsert listing %s/%s: %w", l.Source, l.SourceListingID, err)
	}
	return isNew, nil
}

// BatchResult summarizes a batch upsert.
type BatchResult struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Exceptions int `json:"exceptions"`
}

// UpsertListingBatch persists a slice of listings in one round trip per
// batch. Individual failures are counted as exceptions, never fatal.
func (db *DB) UpsertListingBatch(ctx context.Context, listings []*NormalizedListing) (BatchResult, error) {
	var res BatchResult
	if len(listings) == 0 {
		return res, nil
	}

	b := &pgx.Batch{}
	for _, l := range listings {
		b.Queue(upsertListingSQL+` RETURNING (xmax = 0)`,
			l.Source, l.SourceListingID, l.Year, l.Make, l.Model, l.VariantRaw,
			l.VariantNormalised, l.VariantFamily, l.KM, l.Price, l.Location,
			l.Engine, l.Drivetrain, l.Transmission, l.Status,
			l.VisibleToDealers, l.ExcludedReason, l.AuctionAt, l.Confidence,
			l.DetailURL)
	}

	br := db.pool.SendBatch(ctx, b)
	defer br.Close()

	for range listings {
		var isNew bool
		if err := br.QueryRow().Scan(&isNew); err != nil {
			res.Exceptions++
			continue
		}
		if isNew {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// GetListing retrieves a listing by natural key.
func (db *DB) GetListing(ctx context.Context, source, sourceListingID string) (*NormalizedListing, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE source = $1 AND source_listing_id = $2`,
		source, sourceListingID)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// ListMatchableListings returns the listings a matching run considers:
// dealer-visible and not sold or withdrawn. Future catalogue lots are
// included; the engine restricts them to Tier 2.
func (db *DB) ListMatchableListings(ctx context.Context) ([]NormalizedListing, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE visible_to_dealers = TRUE
		   AND status NOT IN ('sold', 'withdrawn')
		 ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list matchable listings: %w", err)
	}
	defer rows.Close()

	var listings []NormalizedListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

// SetVariantFamily backfills the precomputed variant family for a listing.
// Used by enrichment workers; identity fields are untouched.
func (db *DB) SetVariantFamily(ctx context.Context, source, sourceListingID, family string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE listings SET variant_family = $3
		 WHERE source = $1 AND source_listing_id = $2`,
		source, sourceListingID, family)
	if err != nil {
		return fmt.Errorf("failed to set variant family: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
