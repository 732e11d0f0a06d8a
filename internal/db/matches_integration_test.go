//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedMatchPair(t *testing.T, db *DB, stockID string) (*Fingerprint, *NormalizedListing) {
	t.Helper()
	ctx := context.Background()

	kmMin, kmMax := 40000, 60000
	spec, err := db.CreateFingerprint(ctx, &Fingerprint{
		DealerID:          uuid.New(),
		Make:              "ITEST-TOYOTA",
		Model:             "HILUX",
		VariantNormalised: "SR5",
		YearMin:           2018,
		YearMax:           2020,
		KMMin:             &kmMin,
		KMMax:             &kmMax,
		IsActive:          true,
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateFingerprint failed: %v", err)
	}

	l := testListing(stockID)
	if _, err := db.UpsertListing(ctx, l); err != nil {
		t.Fatalf("UpsertListing failed: %v", err)
	}
	stored, err := db.GetListing(ctx, l.Source, l.SourceListingID)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	return spec, stored
}

func TestIntegration_ReplaceMatches(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	specA, listingA := seedMatchPair(t, db, "M-1")
	specB, listingB := seedMatchPair(t, db, "M-2")

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := []Match{
		{FingerprintID: specA.ID, ListingID: listingA.ID, Tier: 1,
			Lane: LanePrecision, MatchType: MatchKMBounded, Action: ActionBuy,
			Confidence: 0.9, MatchedAt: now},
		{FingerprintID: specB.ID, ListingID: listingB.ID, Tier: 2,
			Lane: LaneProbable, MatchType: MatchVariantFamily, Action: ActionWatch,
			Confidence: 0.5, MatchedAt: now},
	}
	if err := db.ReplaceMatches(ctx, first); err != nil {
		t.Fatalf("ReplaceMatches failed: %v", err)
	}

	matches, err := db.ListRankedMatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListRankedMatches failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Tier != 1 || matches[1].Tier != 2 {
		t.Error("Expected tier 1 ranked before tier 2")
	}

	// The next run's set wholly replaces the previous one.
	second := []Match{
		{FingerprintID: specB.ID, ListingID: listingA.ID, Tier: 2,
			Lane: LaneProbable, MatchType: MatchVariantFamily, Action: ActionWatch,
			Confidence: 0.4, MatchedAt: now},
	}
	if err := db.ReplaceMatches(ctx, second); err != nil {
		t.Fatalf("ReplaceMatches (second run) failed: %v", err)
	}

	matches, err = db.ListRankedMatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListRankedMatches failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match after replacement, got %d", len(matches))
	}
	if matches[0].FingerprintID != specB.ID || matches[0].ListingID != listingA.ID {
		t.Error("Expected only the second run's pair to survive")
	}

	// An empty run clears the set.
	if err := db.ReplaceMatches(ctx, nil); err != nil {
		t.Fatalf("ReplaceMatches (empty) failed: %v", err)
	}
	matches, err = db.ListRankedMatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListRankedMatches failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected empty match set, got %d", len(matches))
	}
}

func TestIntegration_ReplaceMatches_RollsBackOnBadRow(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	spec, listing := seedMatchPair(t, db, "M-3")
	now := time.Now().UTC()

	good := Match{FingerprintID: spec.ID, ListingID: listing.ID, Tier: 1,
		Lane: LanePrecision, MatchType: MatchKMBounded, Action: ActionBuy,
		Confidence: 0.9, MatchedAt: now}
	if err := db.ReplaceMatches(ctx, []Match{good}); err != nil {
		t.Fatalf("ReplaceMatches failed: %v", err)
	}

	// A row violating the listing FK fails the whole transaction; the
	// previous set must survive untouched.
	bad := good
	bad.ListingID = uuid.New()
	if err := db.ReplaceMatches(ctx, []Match{good, bad}); err == nil {
		t.Fatal("Expected ReplaceMatches to fail on FK violation")
	}

	matches, err := db.ListRankedMatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListRankedMatches failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected previous match set preserved, got %d rows", len(matches))
	}
	if matches[0].ListingID != listing.ID {
		t.Error("Expected the original match to survive the failed replacement")
	}
}
