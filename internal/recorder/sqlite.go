package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"TrendWatch/internal/model"
)

// SQLiteRecorder persists snapshots and run events to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log logrus.FieldLogger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so reports can read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id              TEXT NOT NULL,
			as_of               TEXT NOT NULL,
			group_name          TEXT NOT NULL,
			code                TEXT NOT NULL,
			name                TEXT,
			source              TEXT,
			current_price       REAL,
			prev_close          REAL,
			ma20                REAL,
			status              TEXT,
			change_pct          REAL,
			deviation_pct       REAL,
			change_date         TEXT,
			interval_change_pct REAL,
			big_cycle           TEXT,
			rank                INTEGER,
			rank_change         INTEGER,
			error               TEXT,
			recorded_at         INTEGER NOT NULL,
			UNIQUE (as_of, group_name, code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_code ON snapshots(code, as_of)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			mode        TEXT,
			record_date TEXT,
			total       INTEGER,
			failed      INTEGER,
			status      TEXT,
			note        TEXT,
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSnapshots writes one group's batch in a transaction. Re-recording the same
// (as_of, group, code) replaces the earlier row.
func (r *SQLiteRecorder) RecordSnapshots(batch *SnapshotBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO snapshots
		(run_id, as_of, group_name, code, name, source, current_price, prev_close, ma20, status,
		 change_pct, deviation_pct, change_date, interval_change_pct, big_cycle, rank, rank_change,
		 error, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	asOf := batch.AsOf.Format(time.DateOnly)
	for _, s := range batch.Snapshots {
		var changeDate sql.NullString
		if s.ChangeDate != nil {
			changeDate = sql.NullString{String: s.ChangeDate.Format(time.DateOnly), Valid: true}
		}
		var interval sql.NullFloat64
		if s.IntervalChangePct != nil {
			interval = sql.NullFloat64{Float64: *s.IntervalChangePct, Valid: true}
		}
		var rankChange sql.NullInt64
		if s.RankChange != nil {
			rankChange = sql.NullInt64{Int64: int64(*s.RankChange), Valid: true}
		}
		_, err := stmt.Exec(
			batch.RunID, asOf, batch.Group, s.Code, s.Name, s.Source.String(),
			s.CurrentPrice, s.PrevClose, s.MA20, string(s.Status),
			s.ChangePct, s.DeviationPct, changeDate, interval, s.BigCycle.String(),
			s.Rank, rankChange, s.Error, now,
		)
		if err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.Code, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO runs
		(run_id, mode, record_date, total, failed, status, note, timestamp)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.RunID, evt.Mode, evt.RecordDate.Format(time.DateOnly),
		evt.Total, evt.Failed, evt.Status, evt.Note, time.Now().Unix(),
	)
	return err
}

// StoredSnapshot is a snapshots row read back for reporting.
type StoredSnapshot struct {
	RunID        string
	Code         string
	Status       model.Status
	DeviationPct float64
	Rank         int
	RankChange   *int
	ChangeDate   string
	Error        string
}

// Snapshots returns the rows of one group on one date in rank order.
func (r *SQLiteRecorder) Snapshots(asOf time.Time, group string) ([]StoredSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, code, status, deviation_pct, rank, rank_change,
		COALESCE(change_date, ''), error
		FROM snapshots WHERE as_of = ? AND group_name = ? ORDER BY rank`,
		asOf.Format(time.DateOnly), group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredSnapshot
	for rows.Next() {
		var s StoredSnapshot
		var status string
		var rankChange sql.NullInt64
		if err := rows.Scan(&s.RunID, &s.Code, &status, &s.DeviationPct, &s.Rank, &rankChange, &s.ChangeDate, &s.Error); err != nil {
			return nil, err
		}
		s.Status = model.Status(status)
		if rankChange.Valid {
			v := int(rankChange.Int64)
			s.RankChange = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
