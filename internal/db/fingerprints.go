package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const fingerprintColumns = `id, dealer_id, make, model, variant_normalised,
	variant_family, year_min, year_max, km_min, km_max, engine, drivetrain,
	transmission, is_active, do_not_buy, expires_at, deleted_at,
	created_at, updated_at`

func scanFingerprint(row pgx.Row) (*Fingerprint, error) {
	var f Fingerprint
	err := row.Scan(&f.ID, &f.DealerID, &f.Make, &f.Model, &f.VariantNormalised,
		&f.VariantFamily, &f.YearMin, &f.YearMax, &f.KMMin, &f.KMMax,
		&f.Engine, &f.Drivetrain, &f.Transmission, &f.IsActive, &f.DoNotBuy,
		&f.ExpiresAt, &f.DeletedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFingerprint stores a dealer buy criterion.
func (db *DB) CreateFingerprint(ctx context.Context, f *Fingerprint) (*Fingerprint, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO fingerprints
		 (dealer_id, make, model, variant_normalised, variant_family,
		  year_min, year_max, km_min, km_max, engine, drivetrain,
		  transmission, is_active, do_not_buy, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 RETURNING `+fingerprintColumns,
		f.DealerID, f.Make, f.Model, f.VariantNormalised, f.VariantFamily,
		f.YearMin, f.YearMax, f.KMMin, f.KMMax, f.Engine, f.Drivetrain,
		f.Transmission, f.IsActive, f.DoNotBuy, f.ExpiresAt,
	)
	created, err := scanFingerprint(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint: %w", err)
	}
	return created, nil
}

// GetFingerprint retrieves a fingerprint by ID.
func (db *DB) GetFingerprint(ctx context.Context, id uuid.UUID) (*Fingerprint, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE id = $1`, id)
	f, err := scanFingerprint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return f, nil
}

// ListActiveFingerprints returns fingerprints eligible for matching:
// active, not do-not-buy, not expired, not soft-deleted.
func (db *DB) ListActiveFingerprints(ctx context.Context) ([]Fingerprint, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints
		 WHERE is_active = TRUE
		   AND do_not_buy = FALSE
		   AND expires_at > NOW()
		   AND deleted_at IS NULL
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active fingerprints: %w", err)
	}
	defer rows.Close()

	var specs []Fingerprint
	for rows.Next() {
		f, err := scanFingerprint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		specs = append(specs, *f)
	}
	return specs, nil
}

// SoftDeleteFingerprint retires a fingerprint without destroying history.
func (db *DB) SoftDeleteFingerprint(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE fingerprints SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
