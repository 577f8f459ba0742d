package collector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"TrendWatch/internal/model"
)

// Field is a canonical bar column.
type Field string

const (
	FieldDate   Field = "date"
	FieldClose  Field = "close"
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldVolume Field = "volume"
)

// columnAliases maps every vendor column spelling onto its canonical field.
var columnAliases = map[Field][]string{
	FieldDate:   {"日期", "时间", "date", "day", "trade_date", "timestamp", "open_time"},
	FieldClose:  {"收盘", "收盘价", "最新价", "价格", "close", "latest", "price"},
	FieldOpen:   {"开盘", "开盘价", "今开", "open"},
	FieldHigh:   {"最高", "最高价", "high"},
	FieldLow:    {"最低", "最低价", "low"},
	FieldVolume: {"成交量", "volume", "vol"},
}

var aliasIndex = buildAliasIndex()

// foldHeader normalizes a column header: width and compatibility forms via NFKC, case folding,
// and a trailing unit annotation such as "成交量(手)" or "close (USD)" cut off.
func foldHeader(h string) string {
	h = norm.NFKC.String(h)
	if i := strings.IndexAny(h, "(["); i > 0 {
		h = h[:i]
	}
	return strings.TrimSpace(cases.Fold().String(h))
}

func buildAliasIndex() map[string]Field {
	idx := make(map[string]Field)
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			key := foldHeader(a)
			if prev, dup := idx[key]; dup && prev != field {
				panic(fmt.Sprintf("column alias %q maps to both %s and %s", a, prev, field))
			}
			idx[key] = field
		}
	}
	return idx
}

// CanonicalField resolves a vendor header to its canonical field.
func CanonicalField(header string) (Field, bool) {
	f, ok := aliasIndex[foldHeader(header)]
	return f, ok
}

// Frame is a provider answer flattened to string cells before normalization.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Normalize turns a raw frame into a canonical series of at most bars entries (all when bars <= 0).
// Date and close columns are required; open, high and low default to close, volume to zero.
// Rows with an unparsable date or close are dropped, duplicated dates keep the last row.
func Normalize(f Frame, bars int) (model.Series, error) {
	cols := make(map[Field]int)
	for i, c := range f.Columns {
		field, ok := CanonicalField(c)
		if !ok {
			continue
		}
		if _, seen := cols[field]; !seen {
			cols[field] = i
		}
	}
	for _, req := range []Field{FieldDate, FieldClose} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: no %s column in %v", ErrMissingField, req, f.Columns)
		}
	}

	cell := func(row []string, field Field) (string, bool) {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	out := make(model.Series, 0, len(f.Rows))
	for _, row := range f.Rows {
		raw, _ := cell(row, FieldDate)
		date, err := ParseDate(raw)
		if err != nil {
			continue
		}
		raw, _ = cell(row, FieldClose)
		closePrice, err := ParseNumber(raw)
		if err != nil {
			continue
		}
		bar := model.Bar{Date: date, Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice}
		if v, ok := optionalNumber(row, cell, FieldOpen); ok {
			bar.Open = v
		}
		if v, ok := optionalNumber(row, cell, FieldHigh); ok {
			bar.High = v
		}
		if v, ok := optionalNumber(row, cell, FieldLow); ok {
			bar.Low = v
		}
		if v, ok := optionalNumber(row, cell, FieldVolume); ok {
			bar.Volume = v
		}
		out = append(out, bar)
	}
	if len(out) == 0 {
		return nil, ErrEmptyResult
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(b.Date) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup.Tail(bars), nil
}

func optionalNumber(row []string, cell func([]string, Field) (string, bool), field Field) (float64, bool) {
	raw, ok := cell(row, field)
	if !ok {
		return 0, false
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseNumber coerces a vendor numeric string, tolerating thousands separators and blanks around it.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	switch s {
	case "", "-", "--", "null", "None", "NaN", "nan":
		return 0, fmt.Errorf("not a number: %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate reads a calendar date from a vendor cell. Unix seconds or milliseconds are read in UTC;
// any embedded zone is dropped, keeping the calendar day as written.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(s) != 8 && isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		if len(s) >= 13 {
			return model.Day(time.UnixMilli(n).UTC()), nil
		}
		return model.Day(time.Unix(n, 0).UTC()), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ValidateCatalogue checks that every provider's declared columns resolve to canonical fields and
// cover date and close.
func ValidateCatalogue(catalogue map[string][]string) error {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		seen := make(map[Field]bool)
		for _, col := range catalogue[name] {
			field, ok := CanonicalField(col)
			if !ok {
				return fmt.Errorf("provider %s: column %q has no canonical alias", name, col)
			}
			seen[field] = true
		}
		if !seen[FieldDate] || !seen[FieldClose] {
			return fmt.Errorf("provider %s: columns %v lack date or close", name, catalogue[name])
		}
	}
	return nil
}
