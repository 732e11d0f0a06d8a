// Package lease implements time-limited exclusive claims on ingestion jobs.
//
// Workers are independent, stateless invocations; the job table is the only
// shared state. A claim is a single atomic conditional update, so exactly
// one of N concurrent claimants wins a given job. A crashed holder's lease
// expires by TTL and the job becomes claimable again, resuming from its
// last checkpoint.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/angus/lotscout/internal/db"
)

// DefaultTTL is deliberately much larger than one executor tick so a live
// holder never loses its lease mid-run.
const DefaultTTL = 60 * time.Second

// Store is the subset of the job store the lease manager needs.
// *db.DB satisfies it.
type Store interface {
	ClaimOldest(ctx context.Context, source string, token uuid.UUID, ttl time.Duration) (*db.Job, error)
	ExtendLease(ctx context.Context, id, token uuid.UUID, ttl time.Duration) error
	ReleaseLease(ctx context.Context, id, token uuid.UUID) error
}

// LeasedJob pairs a claimed job with the token proving ownership.
type LeasedJob struct {
	Job   *db.Job
	Token uuid.UUID
}

// Manager claims and maintains leases against the job store.
type Manager struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
}

// NewManager creates a lease manager. A non-positive ttl uses DefaultTTL.
func NewManager(store Store, ttl time.Duration, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, log: log}
}

// TTL returns the configured lease duration.
func (m *Manager) TTL() time.Duration { return m.ttl }

// TryClaim attempts to lease the oldest eligible job for the given source
// (empty source means any). Returns (nil, false, nil) when nothing is
// claimable or another worker won the race.
func (m *Manager) TryClaim(ctx context.Context, source string) (*LeasedJob, bool, error) {
	token := uuid.New()

	job, err := m.store.ClaimOldest(ctx, source, token, m.ttl)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("claim failed: %w", err)
	}

	m.log.Debug().
		Str("job_id", job.ID.String()).
		Str("source", job.Source).
		Str("status", string(job.Status)).
		Int("cursor", job.ProgressCursor).
		Msg("claimed job")

	return &LeasedJob{Job: job, Token: token}, true, nil
}

// Extend pushes the lease deadline forward for a held job.
func (m *Manager) Extend(ctx context.Context, leased *LeasedJob) error {
	if err := m.store.ExtendLease(ctx, leased.Job.ID, leased.Token, m.ttl); err != nil {
		return fmt.Errorf("extend failed: %w", err)
	}
	return nil
}

// Release gives up the lease without changing job status. Safe to call on
// an already-lost lease; releasing someone else's lease is impossible
// because the update is token-guarded.
func (m *Manager) Release(ctx context.Context, leased *LeasedJob) error {
	if err := m.store.ReleaseLease(ctx, leased.Job.ID, leased.Token); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}
