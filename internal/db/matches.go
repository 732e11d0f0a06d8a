package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReplaceMatches replaces the standing match set with the output of one
// matching run, transactionally. Matches are recomputed per run rather than
// incrementally maintained, so the previous set is simply discarded.
func (db *DB) ReplaceMatches(ctx context.Context, matches []Match) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM matches`); err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}

	if len(matches) > 0 {
		b := &pgx.Batch{}
		for _, m := range matches {
			b.Queue(
				`INSERT INTO matches
				 (fingerprint_id, listing_id, tier, lane, match_type, action, confidence, matched_at)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				m.FingerprintID, m.ListingID, m.Tier, m.Lane, m.MatchType,
				m.Action, m.Confidence, m.MatchedAt,
			)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("failed to insert matches: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit matches: %w", err)
	}
	return nil
}

// RankedMatch is a match joined with enough listing detail for ranking
// and display.
type RankedMatch struct {
	Match
	ListingConfidence float64 `json:"listing_confidence"`
}

// ListRankedMatches returns the standing match set in global rank order:
// tier ascending, lane priority (precision, advisory, probable), listing
// confidence descending, then soonest auction first.
func (db *DB) ListRankedMatches(ctx context.Context, limit int) ([]RankedMatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT m.id, m.fingerprint_id, m.listing_id, m.tier, m.lane,
		        m.match_type, m.action, m.confidence, m.matched_at,
		        l.confidence
		 FROM matches m
		 JOIN listings l ON l.id = m.listing_id
		 ORDER BY m.tier,
		          CASE m.lane
		              WHEN 'precision' THEN 0
		              WHEN 'advisory' THEN 1
		              ELSE 2
		          END,
		          l.confidence DESC,
		          l.auction_at ASC NULLS LAST
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []RankedMatch
	for rows.Next() {
		var m RankedMatch
		if err := rows.Scan(&m.ID, &m.FingerprintID, &m.ListingID, &m.Tier,
			&m.Lane, &m.MatchType, &m.Action, &m.Confidence, &m.MatchedAt,
			&m.ListingConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// ListWinnerSales returns a dealer's historical profitable flips.
func (db *DB) ListWinnerSales(ctx context.Context) ([]WinnerSale, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, dealer_id, make, model, variant_normalised, median_km,
		        sale_margin, sold_at
		 FROM winner_sales ORDER BY sold_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list winner sales: %w", err)
	}
	defer rows.Close()

	var sales []WinnerSale
	for rows.Next() {
		var s WinnerSale
		if err := rows.Scan(&s.ID, &s.DealerID, &s.Make, &s.Model,
			&s.VariantNormalised, &s.MedianKM, &s.SaleMargin, &s.SoldAt); err != nil {
			return nil, fmt.Errorf("failed to scan winner sale: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, nil
}

// AppendAudit records a run outcome on the audit trail. Best effort by
// contract; callers ignore the error after logging it.
func (db *DB) AppendAudit(ctx context.Context, runName string, success bool, detail any) error {
	var detailJSON []byte
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
		detailJSON = b
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO audit_log (run_name, success, detail) VALUES ($1, $2, $3)`,
		runName, success, detailJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
