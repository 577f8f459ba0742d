package ranking

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendWatch/internal/model"
)

func snap(code string, dev float64) model.Snapshot {
	return model.Snapshot{Code: code, DeviationPct: dev}
}

func failed(code string) model.Snapshot {
	return model.Snapshot{Code: code, Error: "data unavailable"}
}

func d(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func codes(snaps []model.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Code
	}
	return out
}

func TestRankOrdersByDeviationAndAppendsErrors(t *testing.T) {
	in := []model.Snapshot{
		failed("E1"),
		snap("A", 1.5),
		snap("B", -3),
		failed("E2"),
		snap("C", 7.25),
		snap("D", 0),
	}
	ranked := Rank(in)

	assert.Equal(t, []string{"C", "A", "D", "B", "E1", "E2"}, codes(ranked))
	for i, s := range ranked {
		assert.Equal(t, i+1, s.Rank)
	}
	for _, s := range ranked[:4] {
		assert.True(t, s.Valid())
	}
	assert.Zero(t, in[0].Rank, "input is not modified")
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	ranked := Rank([]model.Snapshot{snap("X", 2), snap("Y", 2), snap("Z", 3)})
	assert.Equal(t, []string{"Z", "X", "Y"}, codes(ranked))
}

func TestRankAllErrors(t *testing.T) {
	ranked := Rank([]model.Snapshot{failed("A"), failed("B")})
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Empty(t, Ranks(ranked))
}

func TestRanksSkipsErrors(t *testing.T) {
	ranked := Rank([]model.Snapshot{snap("A", 1), failed("E"), snap("B", 2)})
	assert.Equal(t, map[string]int{"B": 1, "A": 2}, Ranks(ranked))
}

func TestApplyRankChange(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.UpdateToday(d("2024-03-01"), map[string]map[string]int{
		"major_indices": {"A": 1, "B": 3, "C": 2},
	}))

	ranked := Rank([]model.Snapshot{snap("A", 1), snap("B", 9), snap("N", 5), failed("C")})
	ApplyRankChange(ranked, "major_indices", d("2024-03-04"), l)

	byCode := map[string]model.Snapshot{}
	for _, s := range ranked {
		byCode[s.Code] = s
	}
	require.NotNil(t, byCode["B"].RankChange)
	assert.Equal(t, 3-1, *byCode["B"].RankChange)
	require.NotNil(t, byCode["A"].RankChange)
	assert.Equal(t, 1-3, *byCode["A"].RankChange)
	assert.Nil(t, byCode["N"].RankChange, "no prior rank")
	assert.Nil(t, byCode["C"].RankChange, "error entry")

	ApplyRankChange(ranked, "sector_indices", d("2024-03-04"), l)
	for _, s := range ranked {
		assert.Nil(t, s.RankChange, "other group has no history")
	}
}

func TestMemoryLedgerRotation(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.UpdateToday(d("2024-03-01"), map[string]map[string]int{"g": {"A": 1}}))
	_, ok := l.YesterdayRank("A", "g")
	assert.False(t, ok)

	// same date overwrites without rotating
	require.NoError(t, l.UpdateToday(d("2024-03-01"), map[string]map[string]int{"g": {"A": 2}}))
	assert.Nil(t, l.Yesterday)

	require.NoError(t, l.UpdateToday(d("2024-03-04"), map[string]map[string]int{"g": {"A": 5}}))
	r, ok := l.YesterdayRank("A", "g")
	require.True(t, ok)
	assert.Equal(t, 2, r)

	// a re-run on the recorded date compares against the previous day, not itself
	r, ok = l.RankBefore(d("2024-03-04"), "A", "g")
	require.True(t, ok)
	assert.Equal(t, 2, r)
	r, ok = l.RankBefore(d("2024-03-05"), "A", "g")
	require.True(t, ok)
	assert.Equal(t, 5, r)
	_, ok = l.RankBefore(d("2024-03-01"), "A", "g")
	assert.False(t, ok)
}

func TestMemoryLedgerCopiesInput(t *testing.T) {
	l := NewMemoryLedger()
	ranks := map[string]map[string]int{"g": {"A": 1}}
	require.NoError(t, l.UpdateToday(d("2024-03-01"), ranks))
	ranks["g"]["A"] = 99

	r, _ := l.RankBefore(d("2024-03-02"), "A", "g")
	assert.Equal(t, 1, r)
}

func TestFileLedgerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ranking_history.json")

	l, err := OpenFileLedger(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.UpdateToday(d("2024-03-01"), map[string]map[string]int{
		"major_indices":  {"000300": 1},
		"sector_indices": {"BK0477": 2},
	}))
	require.NoError(t, l.UpdateToday(d("2024-03-04"), map[string]map[string]int{
		"major_indices": {"000300": 3},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"major_indices"`)
	assert.Contains(t, string(raw), `"date": "2024-03-04"`)

	reopened, err := OpenFileLedger(path, nil)
	require.NoError(t, err)
	r, ok := reopened.YesterdayRank("BK0477", "sector_indices")
	require.True(t, ok)
	assert.Equal(t, 2, r)
	r, ok = reopened.RankBefore(d("2024-03-05"), "000300", "major_indices")
	require.True(t, ok)
	assert.Equal(t, 3, r)
}

func TestFileLedgerReadsFlatFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "today": {"date": "2024-03-04", "major_indices": {"000300": 2}, "sector_indices": {}},
  "yesterday": null
}`), 0644))

	l, err := OpenFileLedger(path, nil)
	require.NoError(t, err)
	r, ok := l.RankBefore(d("2024-03-05"), "000300", "major_indices")
	require.True(t, ok)
	assert.Equal(t, 2, r)
	_, ok = l.YesterdayRank("000300", "major_indices")
	assert.False(t, ok)
}

func TestFileLedgerCorruptStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	log, hook := test.NewNullLogger()
	l, err := OpenFileLedger(path, log)
	require.NoError(t, err)
	assert.Nil(t, l.Today)
	require.Len(t, hook.Entries, 1)
	assert.Contains(t, hook.LastEntry().Message, "corrupt rank ledger")

	require.NoError(t, l.UpdateToday(d("2024-03-01"), map[string]map[string]int{"g": {"A": 1}}))
	reopened, err := OpenFileLedger(path, log)
	require.NoError(t, err)
	require.NotNil(t, reopened.Today)
	assert.Equal(t, "2024-03-01", reopened.Today.Date)
}
