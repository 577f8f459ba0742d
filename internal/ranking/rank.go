package ranking

import (
	"sort"
	"time"

	"TrendWatch/internal/model"
)

// Rank returns one group's snapshots reordered with ranks assigned. Valid snapshots come
// first by deviation descending (ties keep input order) ranked 1..N, then error snapshots in input
// order ranked N+1..N+M.
func Rank(snaps []model.Snapshot) []model.Snapshot {
	valid := make([]model.Snapshot, 0, len(snaps))
	var failed []model.Snapshot
	for _, s := range snaps {
		if s.Valid() {
			valid = append(valid, s)
		} else {
			failed = append(failed, s)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].DeviationPct > valid[j].DeviationPct })

	out := append(valid, failed...)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Ranks returns code -> rank for the valid snapshots of a ranked group; error entries are never
// persisted.
func Ranks(ranked []model.Snapshot) map[string]int {
	ranks := make(map[string]int, len(ranked))
	for _, s := range ranked {
		if s.Valid() {
			ranks[s.Code] = s.Rank
		}
	}
	return ranks
}

// ApplyRankChange sets RankChange = previous rank - current rank on each valid snapshot that has a
// rank in group recorded before date. Others get nil.
func ApplyRankChange(ranked []model.Snapshot, group string, date time.Time, prev Ledger) {
	for i := range ranked {
		ranked[i].RankChange = nil
		if !ranked[i].Valid() || prev == nil {
			continue
		}
		if before, ok := prev.RankBefore(date, ranked[i].Code, group); ok {
			change := before - ranked[i].Rank
			ranked[i].RankChange = &change
		}
	}
}
