package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Saver writes one day's rows to a file.
type Saver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewSaver returns the saver for format (json, parquet), or nil if the format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// JSONSaver writes rows as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rows)
}

// ParquetSaver writes rows as a Parquet file.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(rows []Row, path string) error {
	return parquet.WriteFile(path, rows)
}

// Archive places one file per day under Dir as <date>.<ext>.
type Archive struct {
	Dir   string
	Saver Saver
}

func New(dir, format string) (*Archive, error) {
	s := NewSaver(format)
	if s == nil {
		return nil, fmt.Errorf("archive: unsupported format %q (use json or parquet)", format)
	}
	return &Archive{Dir: dir, Saver: s}, nil
}

// Path is the file a day is written to.
func (a *Archive) Path(date time.Time) string {
	return filepath.Join(a.Dir, date.Format(time.DateOnly)+"."+a.Saver.Extension())
}

// Write stores a day's groups, replacing any earlier file for that date.
func (a *Archive) Write(date time.Time, groups []Group) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := a.Path(date)
	if err := a.Saver.Save(Rows(date, groups), path); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	return path, nil
}
