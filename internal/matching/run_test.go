package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angus/lotscout/internal/alert"
	"github.com/angus/lotscout/internal/db"
)

type memMatchStore struct {
	fingerprints []db.Fingerprint
	listings     []db.NormalizedListing
	sales        []db.WinnerSale
	stored       []db.Match
	replaceCalls int
}

func (s *memMatchStore) ListActiveFingerprints(context.Context) ([]db.Fingerprint, error) {
	return s.fingerprints, nil
}

func (s *memMatchStore) ListMatchableListings(context.Context) ([]db.NormalizedListing, error) {
	return s.listings, nil
}

func (s *memMatchStore) ListWinnerSales(context.Context) ([]db.WinnerSale, error) {
	return s.sales, nil
}

func (s *memMatchStore) ReplaceMatches(_ context.Context, matches []db.Match) error {
	s.replaceCalls++
	s.stored = matches
	return nil
}

func TestEngineRun_ReplacesMatchSet(t *testing.T) {
	spec := *fullSpec()
	hit := *catalogueListing()
	miss := *catalogueListing()
	miss.SourceListingID = "P-1002"
	miss.Model = "Landcruiser"

	store := &memMatchStore{
		fingerprints: []db.Fingerprint{spec},
		listings:     []db.NormalizedListing{hit, miss},
	}
	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return testNow }

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matches)
	assert.Equal(t, 1, res.Precision)
	assert.Equal(t, 1, store.replaceCalls)
	require.Len(t, store.stored, 1)
	assert.Equal(t, spec.ID, store.stored[0].FingerprintID)
	assert.Equal(t, hit.ID, store.stored[0].ListingID)
	assert.Equal(t, db.ActionBuy, store.stored[0].Action)
	assert.Equal(t, testNow, store.stored[0].MatchedAt)
}

func TestEngineRun_SkipsIneligibleSides(t *testing.T) {
	expired := *fullSpec()
	expired.ExpiresAt = testNow.Add(-time.Hour)

	sold := *catalogueListing()
	sold.Status = db.ListingSold

	store := &memMatchStore{
		fingerprints: []db.Fingerprint{expired},
		listings:     []db.NormalizedListing{sold},
	}
	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return testNow }

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Matches)
	assert.Zero(t, res.Listings)
	assert.Empty(t, store.stored)
}

func TestEngineRun_ManyFingerprintsAllPaired(t *testing.T) {
	store := &memMatchStore{}
	for i := 0; i < 40; i++ {
		store.fingerprints = append(store.fingerprints, *fullSpec())
	}
	l := *catalogueListing()
	store.listings = []db.NormalizedListing{l}

	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return testNow }

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Matches)
	assert.Len(t, store.stored, 40)
	for _, m := range store.stored {
		assert.Equal(t, l.ID, m.ListingID)
	}
}

type memAlerter struct {
	msgs []alert.Message
}

func (m *memAlerter) Notify(msg alert.Message) {
	m.msgs = append(m.msgs, msg)
}

func TestEngineRun_AlertsOnBuyOnly(t *testing.T) {
	buySpec := *fullSpec()

	watchSpec := *fullSpec()
	watchSpec.KMMin, watchSpec.KMMax = nil, nil

	store := &memMatchStore{
		fingerprints: []db.Fingerprint{buySpec, watchSpec},
		listings:     []db.NormalizedListing{*catalogueListing()},
	}
	alerter := &memAlerter{}
	eng := NewEngine(store, zerolog.Nop()).WithAlerter(alerter)
	eng.now = func() time.Time { return testNow }

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matches)

	require.Len(t, alerter.msgs, 1, "only the precision match alerts")
	assert.Equal(t, buySpec.ID, alerter.msgs[0].FingerprintID)
	assert.Equal(t, buySpec.DealerID, alerter.msgs[0].DealerID)
	assert.Equal(t, db.ActionBuy, alerter.msgs[0].Action)
	assert.Contains(t, alerter.msgs[0].Summary, "Hilux")
}

func TestEngineRun_WinnerPassFlagsReplications(t *testing.T) {
	replica := db.WinnerSale{
		ID:                uuid.New(),
		DealerID:          uuid.New(),
		Make:              "Toyota",
		Model:             "Hilux",
		VariantNormalised: "SR5",
		MedianKM:          45000,
		SaleMargin:        4500,
	}
	unrelated := db.WinnerSale{
		ID:                uuid.New(),
		DealerID:          uuid.New(),
		Make:              "Ford",
		Model:             "Ranger",
		VariantNormalised: "XLT",
		MedianKM:          45000,
		SaleMargin:        4500,
	}

	store := &memMatchStore{
		listings: []db.NormalizedListing{*catalogueListing()},
		sales:    []db.WinnerSale{replica, unrelated},
	}
	alerter := &memAlerter{}
	eng := NewEngine(store, zerolog.Nop()).WithAlerter(alerter)
	eng.now = func() time.Time { return testNow }

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Matches)
	assert.Equal(t, 1, res.WinnerFlags)

	require.Len(t, alerter.msgs, 1)
	msg := alerter.msgs[0]
	assert.Equal(t, replica.ID, msg.SaleID)
	assert.Equal(t, replica.DealerID, msg.DealerID)
	assert.Equal(t, db.ActionWatch, msg.Action)
	assert.Contains(t, msg.Summary, "past flip")
}

func TestRank_Order(t *testing.T) {
	early := testNow.Add(time.Hour)
	late := testNow.Add(72 * time.Hour)

	mk := func(tier int, lane db.MatchLane, conf float64, auction *time.Time) *Candidate {
		l := catalogueListing()
		l.ID = uuid.New()
		l.Confidence = conf
		l.AuctionAt = auction
		return &Candidate{Fingerprint: fullSpec(), Listing: l, Tier: tier, Lane: lane}
	}

	t2 := mk(2, db.LaneProbable, 0.99, &early)
	t1adv := mk(1, db.LaneAdvisory, 0.9, &early)
	t1lowConf := mk(1, db.LanePrecision, 0.5, &early)
	t1late := mk(1, db.LanePrecision, 0.8, &late)
	t1early := mk(1, db.LanePrecision, 0.8, &early)
	t1noAuction := mk(1, db.LanePrecision, 0.8, nil)

	got := []*Candidate{t2, t1adv, t1lowConf, t1late, t1noAuction, t1early}
	Rank(got)

	want := []*Candidate{t1early, t1late, t1noAuction, t1lowConf, t1adv, t2}
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Same(t, want[i], got[i], "position %d", i)
	}
}
