package matching

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/angus/lotscout/internal/alert"
	"github.com/angus/lotscout/internal/db"
)

// Store is the persistence surface a matching run needs.
type Store interface {
	ListActiveFingerprints(ctx context.Context) ([]db.Fingerprint, error)
	ListMatchableListings(ctx context.Context) ([]db.NormalizedListing, error)
	ListWinnerSales(ctx context.Context) ([]db.WinnerSale, error)
	ReplaceMatches(ctx context.Context, matches []db.Match) error
}

// Alerter receives buy-lane matches after a run is stored. The alert
// dispatcher satisfies it.
type Alerter interface {
	Notify(msg alert.Message)
}

// Engine runs full matching passes: every active fingerprint against every
// matchable listing. Matches are recomputed wholesale each run rather than
// incrementally maintained.
type Engine struct {
	store   Store
	alerter Alerter
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine returns an Engine backed by store.
func NewEngine(store Store, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "matching").Logger(),
	}
}

// WithAlerter installs alert delivery for buy recommendations. Returns e
// for chaining.
func (e *Engine) WithAlerter(a Alerter) *Engine {
	e.alerter = a
	return e
}

// RunResult summarizes one matching pass.
type RunResult struct {
	Fingerprints int `json:"fingerprints"`
	Listings     int `json:"listings"`
	Matches      int `json:"matches"`
	Precision    int `json:"precision"`
	Advisory     int `json:"advisory"`
	Probable     int `json:"probable"`

	// WinnerFlags counts replication opportunities surfaced by the winner
	// pass. They are alert-only and carry no fingerprint, so they are not
	// stored in the match set.
	WinnerFlags int `json:"winner_flags"`
}

// Run executes one matching pass and replaces the stored match set.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	now := e.now()

	specs, err := e.store.ListActiveFingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	listings, err := e.store.ListMatchableListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}

	eligible := listings[:0]
	for i := range listings {
		if EligibleListing(&listings[i]) {
			eligible = append(eligible, listings[i])
		}
	}

	// One goroutine per fingerprint, bounded by CPU count. Each goroutine
	// owns its slice of the results, so only the append is locked.
	var (
		mu         sync.Mutex
		candidates []*Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range specs {
		spec := &specs[i]
		if !spec.Eligible(now) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var found []*Candidate
			for j := range eligible {
				if c, ok := Match(spec, &eligible[j], now); ok {
					found = append(found, c)
				}
			}
			if len(found) > 0 {
				mu.Lock()
				candidates = append(candidates, found...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching pass failed: %w", err)
	}

	Rank(candidates)

	res := &RunResult{
		Fingerprints: len(specs),
		Listings:     len(eligible),
		Matches:      len(candidates),
	}
	matches := make([]db.Match, 0, len(candidates))
	for _, c := range candidates {
		switch c.Lane {
		case db.LanePrecision:
			res.Precision++
		case db.LaneAdvisory:
			res.Advisory++
		case db.LaneProbable:
			res.Probable++
		}
		matches = append(matches, db.Match{
			FingerprintID: c.Fingerprint.ID,
			ListingID:     c.Listing.ID,
			Tier:          c.Tier,
			Lane:          c.Lane,
			MatchType:     c.MatchType,
			Action:        c.Action,
			Confidence:    c.Listing.Confidence,
			MatchedAt:     now,
		})
	}

	if err := e.store.ReplaceMatches(ctx, matches); err != nil {
		return nil, fmt.Errorf("failed to store matches: %w", err)
	}

	// Buy recommendations go out only after the match set is durably
	// stored; alert delivery is fire-and-forget.
	if e.alerter != nil {
		for _, c := range candidates {
			if c.Action != db.ActionBuy {
				continue
			}
			e.alerter.Notify(alert.Message{
				FingerprintID: c.Fingerprint.ID,
				ListingID:     c.Listing.ID,
				DealerID:      c.Fingerprint.DealerID,
				Lane:          c.Lane,
				Action:        c.Action,
				Summary: fmt.Sprintf("%d %s %s %s, %d km",
					c.Listing.Year, c.Listing.Make, c.Listing.Model,
					c.Listing.VariantNormalised, c.Listing.KM),
				DetailURL: c.Listing.DetailURL,
			})
		}
	}

	if err := e.winnerPass(ctx, eligible, res); err != nil {
		return nil, err
	}

	e.log.Info().
		Int("fingerprints", res.Fingerprints).
		Int("listings", res.Listings).
		Int("matches", res.Matches).
		Int("precision", res.Precision).
		Int("winner_flags", res.WinnerFlags).
		Msg("matching run complete")
	return res, nil
}

// winnerPass scans each dealer's historical profitable flips against the
// eligible listings and surfaces replication opportunities as watch
// alerts. The historical sale margin stands in for the projected margin;
// the scoring guardrails reject it when it is implausible for the listing.
func (e *Engine) winnerPass(ctx context.Context, listings []db.NormalizedListing, res *RunResult) error {
	sales, err := e.store.ListWinnerSales(ctx)
	if err != nil {
		return fmt.Errorf("failed to load winner sales: %w", err)
	}

	for i := range sales {
		sale := &sales[i]
		for j := range listings {
			listing := &listings[j]
			score, ok := ScoreWinner(sale, listing, float64(sale.SaleMargin))
			if !ok {
				continue
			}
			res.WinnerFlags++
			if e.alerter == nil {
				continue
			}
			e.alerter.Notify(alert.Message{
				SaleID:    sale.ID,
				ListingID: listing.ID,
				DealerID:  sale.DealerID,
				Lane:      db.LaneAdvisory,
				Action:    db.ActionWatch,
				Summary: fmt.Sprintf("resembles past flip %s %s %s (badge %.1f, est. margin $%.0f)",
					sale.Make, sale.Model, sale.VariantNormalised,
					score.Badge, score.EstimatedDelta),
				DetailURL: listing.DetailURL,
			})
		}
	}
	return nil
}
