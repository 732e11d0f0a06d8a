package matching

import (
	"sort"

	"github.com/angus/lotscout/internal/db"
)

// lanePriority orders lanes within a tier: Precision first, Probable last.
var lanePriority = map[db.MatchLane]int{
	db.LanePrecision: 0,
	db.LaneAdvisory:  1,
	db.LaneProbable:  2,
}

// Rank sorts candidates into presentation order: tier ascending, lane
// priority, listing confidence descending, then earliest auction first
// (listings with no auction date sort last). Sorting is stable so equal
// candidates keep their discovery order.
func Rank(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if lanePriority[a.Lane] != lanePriority[b.Lane] {
			return lanePriority[a.Lane] < lanePriority[b.Lane]
		}
		if a.Listing.Confidence != b.Listing.Confidence {
			return a.Listing.Confidence > b.Listing.Confidence
		}
		switch {
		case a.Listing.AuctionAt == nil && b.Listing.AuctionAt == nil:
			return false
		case a.Listing.AuctionAt == nil:
			return false
		case b.Listing.AuctionAt == nil:
			return true
		}
		return a.Listing.AuctionAt.Before(*b.Listing.AuctionAt)
	})
}
