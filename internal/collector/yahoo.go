package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"TrendWatch/internal/model"
)

const DefaultYahooURL = "https://query1.finance.yahoo.com"

var yahooColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// yahooSymbols maps internal codes to Yahoo tickers.
var yahooSymbols = map[string]string{
	"HSI":    "^HSI",
	"HSCEI":  "^HSCE",
	"HSTECH": "HSTECH.HK",
	"SPX":    "^GSPC",
	"SPX500": "^GSPC",
	"SP500":  "^GSPC",
	"NDX":    "^NDX",
	"DJIA":   "^DJI",
	"N225":   "^N225",
	"BTC":    "BTC-USD",
	"ETH":    "ETH-USD",
	"XAU":    "GC=F",
	"XAG":    "SI=F",
}

// Yahoo fetches daily bars from the Yahoo Finance chart API.
type Yahoo struct {
	BaseURL string
	client  *resty.Client
}

func NewYahoo(client *resty.Client, baseURL string) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &Yahoo{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// YahooSymbol returns the Yahoo ticker for code; unmapped codes pass through.
func YahooSymbol(code string) string {
	if mapped, ok := yahooSymbols[strings.ToUpper(code)]; ok {
		return mapped
	}
	return code
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooRange picks the smallest chart range covering bars trading days.
func yahooRange(bars int) string {
	switch {
	case bars <= 0:
		return "max"
	case bars <= 20:
		return "1mo"
	case bars <= 60:
		return "3mo"
	case bars <= 120:
		return "6mo"
	case bars <= 250:
		return "1y"
	case bars <= 500:
		return "2y"
	case bars <= 1250:
		return "5y"
	case bars <= 2500:
		return "10y"
	}
	return "max"
}

// Daily returns up to bars daily bars for a Yahoo ticker. Null quotes (holidays) are skipped.
func (y *Yahoo) Daily(ctx context.Context, symbol string, bars int) (model.Series, error) {
	endpoint := y.BaseURL + "/v8/finance/chart/" + url.PathEscape(symbol)
	var chart yahooChart
	err := getJSON(ctx, y.client, "yahoo chart", endpoint, map[string]string{"interval": "1d", "range": yahooRange(bars)}, &chart)
	if err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w: %s", symbol, ErrNotApplicable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrEmptyResult)
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w: quote", symbol, ErrMissingField)
	}
	quote := result.Indicators.Quote[0]

	frame := Frame{Columns: yahooColumns, Rows: make([][]string, 0, len(result.Timestamp))}
	for i, ts := range result.Timestamp {
		frame.Rows = append(frame.Rows, []string{
			fmt.Sprint(ts),
			quoteCell(quote.Open, i),
			quoteCell(quote.High, i),
			quoteCell(quote.Low, i),
			quoteCell(quote.Close, i),
			quoteCell(quote.Volume, i),
		})
	}
	return Normalize(frame, bars)
}

func quoteCell(col []*float64, i int) string {
	if i >= len(col) || col[i] == nil {
		return ""
	}
	return cellString(*col[i])
}
