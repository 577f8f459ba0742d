package ranking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Ledger persists per-group ranks across trading days.
type Ledger interface {
	// RankBefore returns the most recent rank of code in group recorded strictly before date.
	RankBefore(date time.Time, code, group string) (int, bool)
	// UpdateToday records ranks (group -> code -> rank) for date. A new date rotates the current
	// generation into yesterday; the same date overwrites it.
	UpdateToday(date time.Time, ranks map[string]map[string]int) error
}

// Generation is one trading day's ranks. On disk the group maps sit next to the date:
// {"date": "2024-01-02", "major_indices": {"000300": 1}, "sector_indices": {...}}.
type Generation struct {
	Date   string
	Groups map[string]map[string]int
}

func (g Generation) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(g.Groups)+1)
	for group, ranks := range g.Groups {
		flat[group] = ranks
	}
	flat["date"] = g.Date
	return json.Marshal(flat)
}

func (g *Generation) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	g.Groups = make(map[string]map[string]int)
	for key, raw := range flat {
		if key == "date" {
			if err := json.Unmarshal(raw, &g.Date); err != nil {
				return fmt.Errorf("generation date: %w", err)
			}
			continue
		}
		var ranks map[string]int
		if err := json.Unmarshal(raw, &ranks); err != nil {
			return fmt.Errorf("generation group %s: %w", key, err)
		}
		g.Groups[key] = ranks
	}
	return nil
}

func (g *Generation) rank(code, group string) (int, bool) {
	if g == nil {
		return 0, false
	}
	r, ok := g.Groups[group][code]
	return r, ok
}

// MemoryLedger keeps two generations in memory. Backfill threads one across simulated days.
type MemoryLedger struct {
	Today     *Generation `json:"today"`
	Yesterday *Generation `json:"yesterday"`
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

// YesterdayRank reads the previous generation.
func (l *MemoryLedger) YesterdayRank(code, group string) (int, bool) {
	return l.Yesterday.rank(code, group)
}

func (l *MemoryLedger) RankBefore(date time.Time, code, group string) (int, bool) {
	day := dateKey(date)
	for _, g := range []*Generation{l.Today, l.Yesterday} {
		if g != nil && g.Date < day {
			return g.rank(code, group)
		}
	}
	return 0, false
}

func (l *MemoryLedger) UpdateToday(date time.Time, ranks map[string]map[string]int) error {
	day := dateKey(date)
	groups := make(map[string]map[string]int, len(ranks))
	for group, r := range ranks {
		cp := make(map[string]int, len(r))
		for code, rank := range r {
			cp[code] = rank
		}
		groups[group] = cp
	}
	if l.Today == nil || l.Today.Date != day {
		l.Yesterday = l.Today
	}
	l.Today = &Generation{Date: day, Groups: groups}
	return nil
}

func dateKey(t time.Time) string { return t.Format(time.DateOnly) }

// FileLedger is a MemoryLedger persisted as indented UTF-8 JSON after every update.
type FileLedger struct {
	MemoryLedger
	path string
}

// OpenFileLedger reads the ledger at path. A missing file starts empty; an unreadable or corrupt
// one is logged and also starts empty, to be overwritten on the next update.
func OpenFileLedger(path string, log logrus.FieldLogger) (*FileLedger, error) {
	l := &FileLedger{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &l.MemoryLedger); err != nil {
		if log != nil {
			log.WithField("path", path).Warnf("corrupt rank ledger, starting empty: %v", err)
		}
		l.MemoryLedger = MemoryLedger{}
	}
	return l, nil
}

func (l *FileLedger) UpdateToday(date time.Time, ranks map[string]map[string]int) error {
	if err := l.MemoryLedger.UpdateToday(date, ranks); err != nil {
		return err
	}
	return l.save()
}

func (l *FileLedger) save() error {
	data, err := json.MarshalIndent(&l.MemoryLedger, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return os.Rename(tmp, l.path)
}
