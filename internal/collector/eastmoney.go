package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/unicode/norm"

	"TrendWatch/internal/model"
)

const (
	DefaultEastmoneyKlineURL = "https://push2his.eastmoney.com"
	DefaultEastmoneyListURL  = "https://push2.eastmoney.com"
)

// eastmoneyColumns is the layout of one kline record as requested through fields2.
var eastmoneyColumns = []string{"日期", "开盘", "收盘", "最高", "最低", "成交量"}

// eastmoneyRegional maps offshore and spot codes onto Eastmoney market-prefixed ids.
var eastmoneyRegional = map[string]string{
	"HSI":    "100.HSI",
	"HSCEI":  "100.HSCEI",
	"HSTECH": "124.HSTECH",
	"SPX":    "100.SPX",
	"NDX":    "100.NDX",
	"DJIA":   "100.DJIA",
	"N225":   "100.N225",
	"AUTD":   "118.AUTD",
	"AGTD":   "118.AGTD",
}

// Eastmoney fetches daily klines and the board directory from the Eastmoney quote API.
type Eastmoney struct {
	KlineURL string
	ListURL  string
	client   *resty.Client
}

func NewEastmoney(client *resty.Client, klineURL, listURL string) *Eastmoney {
	if klineURL == "" {
		klineURL = DefaultEastmoneyKlineURL
	}
	if listURL == "" {
		listURL = DefaultEastmoneyListURL
	}
	return &Eastmoney{KlineURL: strings.TrimRight(klineURL, "/"), ListURL: strings.TrimRight(listURL, "/"), client: client}
}

// IndexSecID resolves a six-digit index code, a BK board code or a regional code to a secid.
func IndexSecID(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if id, ok := eastmoneyRegional[code]; ok {
		return id, true
	}
	if strings.HasPrefix(code, "BK") {
		return "90." + code, true
	}
	if len(code) != 6 || !isDigits(code) {
		return "", false
	}
	switch {
	case strings.HasPrefix(code, "399"):
		return "0." + code, true
	case strings.HasPrefix(code, "93"), strings.HasPrefix(code, "95"):
		return "2." + code, true
	default:
		return "1." + code, true
	}
}

type eastmoneyKlineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Kline returns up to bars daily bars for secid, unadjusted.
func (e *Eastmoney) Kline(ctx context.Context, secid string, bars int) (model.Series, error) {
	params := map[string]string{
		"secid":   secid,
		"fields1": "f1,f2,f3,f4,f5,f6",
		"fields2": "f51,f52,f53,f54,f55,f56",
		"klt":     "101",
		"fqt":     "0",
		"end":     "20500101",
		"lmt":     strconv.Itoa(limit(bars)),
	}
	var resp eastmoneyKlineResponse
	if err := getJSON(ctx, e.client, "eastmoney kline", e.KlineURL+"/api/qt/stock/kline/get", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || len(resp.Data.Klines) == 0 {
		return nil, fmt.Errorf("eastmoney kline %s: %w", secid, ErrEmptyResult)
	}

	frame := Frame{Columns: eastmoneyColumns, Rows: make([][]string, 0, len(resp.Data.Klines))}
	for _, line := range resp.Data.Klines {
		frame.Rows = append(frame.Rows, strings.Split(line, ","))
	}
	return Normalize(frame, bars)
}

type eastmoneyBoard struct {
	Code string `json:"f12"`
	Name string `json:"f14"`
}

type eastmoneyListResponse struct {
	Data *struct {
		Total int             `json:"total"`
		Diff  json.RawMessage `json:"diff"`
	} `json:"data"`
}

// BoardCode looks up the BK code of an industry or concept board by its display name.
func (e *Eastmoney) BoardCode(ctx context.Context, name string) (string, error) {
	want := normalizeName(name)
	if want == "" {
		return "", fmt.Errorf("eastmoney board: %w: no name to look up", ErrNotApplicable)
	}
	params := map[string]string{
		"pn":     "1",
		"pz":     "2000",
		"po":     "1",
		"np":     "1",
		"fltt":   "2",
		"invt":   "2",
		"fid":    "f12",
		"fs":     "m:90 t:2,m:90 t:3",
		"fields": "f12,f14",
	}
	var resp eastmoneyListResponse
	if err := getJSON(ctx, e.client, "eastmoney board list", e.ListURL+"/api/qt/clist/get", params, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil || len(resp.Data.Diff) == 0 {
		return "", fmt.Errorf("eastmoney board list: %w", ErrEmptyResult)
	}
	boards, err := decodeBoards(resp.Data.Diff)
	if err != nil {
		return "", err
	}
	for _, b := range boards {
		if normalizeName(b.Name) == want {
			return b.Code, nil
		}
	}
	return "", fmt.Errorf("eastmoney board %q: %w: no such board", name, ErrNotApplicable)
}

// decodeBoards accepts diff either as a list or as an index-keyed object.
func decodeBoards(raw json.RawMessage) ([]eastmoneyBoard, error) {
	var list []eastmoneyBoard
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var keyed map[string]eastmoneyBoard
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("eastmoney board list decode: %w", err)
	}
	list = make([]eastmoneyBoard, 0, len(keyed))
	for _, b := range keyed {
		list = append(list, b)
	}
	return list, nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), "")
}

// limit caps open-ended requests at a generous default history.
func limit(bars int) int {
	if bars <= 0 {
		return 1000
	}
	return bars
}
