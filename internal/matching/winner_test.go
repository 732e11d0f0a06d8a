package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angus/lotscout/internal/db"
)

func winnerSale() *db.WinnerSale {
	return &db.WinnerSale{
		Make:              "TOYOTA",
		Model:             "HILUX",
		VariantNormalised: "SR5",
		MedianKM:          50000,
		SaleMargin:        4500,
		SoldAt:            testNow.AddDate(0, -3, 0),
	}
}

func TestBadgeScore(t *testing.T) {
	assert.Equal(t, 1.0, BadgeScore("SR5", "sr5"))
	assert.Equal(t, 0.7, BadgeScore("SR5", "SR5 CRUISER"))
	assert.Equal(t, 0.7, BadgeScore("SR5 CRUISER", "SR5"))
	assert.Equal(t, 0.0, BadgeScore("SR5", "WORKMATE"))
	assert.Equal(t, 0.0, BadgeScore("", "SR5"))
}

func TestKMScore_Bands(t *testing.T) {
	for diff, want := range map[int]float64{
		0:     1.0,
		15000: 1.0,
		20000: 0.6,
		22500: 0.6,
		30000: 0.3,
		30001: 0.0,
	} {
		assert.Equal(t, want, KMScore(50000, 50000+diff), "diff %d", diff)
		assert.Equal(t, want, KMScore(50000, 50000-diff), "diff -%d", diff)
	}
}

func TestScoreWinner_ExactBadge(t *testing.T) {
	listing := catalogueListing()
	s, ok := ScoreWinner(winnerSale(), listing, 3000)
	require.True(t, ok)
	assert.Equal(t, 1.0, s.Badge)
	assert.Equal(t, 1.0, s.KM)
	assert.InDelta(t, 1.0, s.Combined, 1e-9)
	assert.Equal(t, 2000.0, s.Threshold)
}

func TestScoreWinner_WeakBadgeNeedsLargerMargin(t *testing.T) {
	listing := catalogueListing()
	listing.VariantNormalised = "SR5 CRUISER"

	// Threshold scales to 2000/0.7; a margin that clears the exact-badge
	// bar no longer clears this one.
	_, ok := ScoreWinner(winnerSale(), listing, 2500)
	assert.False(t, ok)

	s, ok := ScoreWinner(winnerSale(), listing, 3000)
	require.True(t, ok)
	assert.Equal(t, 0.7, s.Badge)
	assert.InDelta(t, 2000.0/0.7, s.Threshold, 1e-9)
	assert.InDelta(t, 0.6*0.7+0.4*1.0, s.Combined, 1e-9)
}

func TestScoreWinner_Guardrails(t *testing.T) {
	listing := catalogueListing()

	_, ok := ScoreWinner(winnerSale(), listing, 0)
	assert.False(t, ok, "non-positive delta")

	_, ok = ScoreWinner(winnerSale(), listing, -500)
	assert.False(t, ok, "negative delta")

	// More than half the asking price is an estimation artifact.
	_, ok = ScoreWinner(winnerSale(), listing, float64(listing.Price)*0.6)
	assert.False(t, ok, "implausibly large delta")
}

func TestScoreWinner_HardRejects(t *testing.T) {
	listing := catalogueListing()
	listing.Model = "Landcruiser"
	_, ok := ScoreWinner(winnerSale(), listing, 3000)
	assert.False(t, ok, "model mismatch")

	listing = catalogueListing()
	listing.VariantNormalised = "WORKMATE"
	_, ok = ScoreWinner(winnerSale(), listing, 5000)
	assert.False(t, ok, "zero badge")

	listing = catalogueListing()
	listing.KM = 90001
	_, ok = ScoreWinner(winnerSale(), listing, 5000)
	assert.False(t, ok, "km beyond all bands")
}
