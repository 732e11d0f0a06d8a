package ingest

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/angus/lotscout/internal/db"
	"github.com/angus/lotscout/internal/lease"
)

const (
	defaultPageSize    = 100
	defaultMaxAttempts = 5
)

// Store is the subset of the job store the executor needs. *db.DB
// satisfies it. Every mutation is guarded by the lease token.
type Store interface {
	SetJobStatus(ctx context.Context, id, token uuid.UUID, status db.JobStatus) error
	IncrementProgress(ctx context.Context, id, token uuid.UUID, cursor int, fetchedDelta, upsertedDelta int64) error
	FinishJob(ctx context.Context, id, token uuid.UUID) error
	SuspendJob(ctx context.Context, id, token uuid.UUID) error
	FailJob(ctx context.Context, id, token uuid.UUID, msg string) error
	RecordJobError(ctx context.Context, id, token uuid.UUID, msg string, maxAttempts int) error
	ReleaseLease(ctx context.Context, id, token uuid.UUID) error
}

// Sink persists normalized listings idempotently. *db.DB satisfies it.
type Sink interface {
	UpsertListing(ctx context.Context, l *db.NormalizedListing) (bool, error)
}

// Enricher mutates a normalized listing between normalization and persist:
// salvage exclusion, variant-family backfill. *refdata.Set-backed
// enrichment is installed by the worker command.
type Enricher interface {
	Enrich(l *db.NormalizedListing)
}

// Result summarizes one executor invocation.
type Result struct {
	// Terminal is true when the job reached done or error.
	Terminal bool
	// Finished is true when the external result set was exhausted.
	Finished bool
	// Cursor is the absolute resume point after this invocation.
	Cursor int

	Fetched  int64
	Upserted int64
	Created  int64

	// MapRejects counts items the adapter could not normalize;
	// SinkRejects counts items the store could not persist. Both are
	// item-level and never fail the job.
	MapRejects  int
	SinkRejects int
}

// Executor runs the resumable work loop for one leased job, bounded by a
// wall-clock budget. The budget is re-checked at page boundaries only, so
// the unit of cancellation is one page of work.
type Executor struct {
	store       Store
	sink        Sink
	enrich      Enricher
	pageSize    int
	maxAttempts int
	now         func() time.Time
	log         zerolog.Logger
}

// WithEnricher installs an enrichment stage. Returns e for chaining.
func (e *Executor) WithEnricher(enrich Enricher) *Executor {
	e.enrich = enrich
	return e
}

// NewExecutor creates an executor. Zero pageSize/maxAttempts use defaults.
func NewExecutor(store Store, sink Sink, pageSize, maxAttempts int, log zerolog.Logger) *Executor {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Executor{
		store:       store,
		sink:        sink,
		pageSize:    pageSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
		log:         log,
	}
}

// Run executes the leased job until the result set is exhausted or the
// budget runs out, checkpointing progress after every page. It always
// leaves the job in a claimable or terminal state before returning.
func (e *Executor) Run(ctx context.Context, leased *lease.LeasedJob, adapter SourceAdapter, budget time.Duration) (res Result, err error) {
	job := leased.Job
	token := leased.Token
	start := e.now()

	// A panic inside the loop must not strand the lease: record it and
	// leave the job claimable for a bounded retry.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			e.log.Error().Str("job_id", job.ID.String()).
				Str("stack", string(debug.Stack())).Msg(msg)
			_ = e.store.RecordJobError(context.WithoutCancel(ctx), job.ID, token, msg, e.maxAttempts)
			err = fmt.Errorf("executor %s", msg)
		}
	}()

	// Upstream gate: until the remote run finishes producing results the
	// job stays running and is retried by the next scheduled invocation.
	if job.Status == db.JobQueued || job.Status == db.JobRunning {
		state, stErr := adapter.RunStatus(ctx, job.ExternalRunID)
		if stErr != nil {
			if recErr := e.store.RecordJobError(ctx, job.ID, token, stErr.Error(), e.maxAttempts); recErr != nil {
				return res, recErr
			}
			return res, fmt.Errorf("run status: %w", stErr)
		}
		switch {
		case state.Permanent():
			msg := fmt.Sprintf("upstream run %s reported %s", job.ExternalRunID, state)
			if failErr := e.store.FailJob(ctx, job.ID, token, msg); failErr != nil {
				return res, failErr
			}
			res.Terminal = true
			e.log.Warn().Str("job_id", job.ID.String()).Str("state", string(state)).Msg("upstream run failed permanently")
			return res, nil
		case state == RunProcessing:
			if relErr := e.store.ReleaseLease(ctx, job.ID, token); relErr != nil {
				return res, relErr
			}
			e.log.Debug().Str("job_id", job.ID.String()).Msg("upstream still processing")
			return res, nil
		}
		if setErr := e.store.SetJobStatus(ctx, job.ID, token, db.JobFetching); setErr != nil {
			return res, setErr
		}
	}

	cursor := job.ProgressCursor
	finished := false

	for e.now().Sub(start) < budget {
		items, fetchErr := adapter.FetchPage(ctx, job.ExternalRunID, cursor, e.pageSize)
		if fetchErr != nil {
			if recErr := e.store.RecordJobError(ctx, job.ID, token, fetchErr.Error(), e.maxAttempts); recErr != nil {
				return res, recErr
			}
			res.Cursor = cursor
			return res, fmt.Errorf("fetch page at %d: %w", cursor, fetchErr)
		}

		if len(items) == 0 {
			finished = true
			break
		}

		var upsertedDelta int64
		for _, item := range items {
			listing, mapErr := adapter.Normalize(item)
			if mapErr != nil {
				res.MapRejects++
				continue
			}
			if e.enrich != nil {
				e.enrich.Enrich(listing)
			}
			isNew, sinkErr := e.sink.UpsertListing(ctx, listing)
			if sinkErr != nil {
				res.SinkRejects++
				continue
			}
			upsertedDelta++
			if isNew {
				res.Created++
			}
		}

		cursor += len(items)
		res.Fetched += int64(len(items))
		res.Upserted += upsertedDelta

		// Absolute cursor, additive counters: a retried checkpoint can
		// never double-count upserts.
		if cpErr := e.store.IncrementProgress(ctx, job.ID, token, cursor, int64(len(items)), upsertedDelta); cpErr != nil {
			res.Cursor = cursor
			return res, cpErr
		}

		if len(items) < e.pageSize {
			// Short final page signals end of result set.
			finished = true
			break
		}
	}

	res.Cursor = cursor
	res.Finished = finished

	if finished {
		if finErr := e.store.FinishJob(ctx, job.ID, token); finErr != nil {
			return res, finErr
		}
		res.Terminal = true
		e.log.Info().Str("job_id", job.ID.String()).
			Int64("fetched", res.Fetched).Int64("upserted", res.Upserted).
			Int("map_rejects", res.MapRejects).Int("sink_rejects", res.SinkRejects).
			Msg("job done")
		return res, nil
	}

	// Budget exhausted mid-pagination: park in fetching and release so the
	// next claimant resumes at the checkpointed cursor.
	if susErr := e.store.SuspendJob(ctx, job.ID, token); susErr != nil {
		return res, susErr
	}
	e.log.Info().Str("job_id", job.ID.String()).Int("cursor", cursor).Msg("budget exhausted, job suspended")
	return res, nil
}
