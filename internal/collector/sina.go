package collector

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"TrendWatch/internal/model"
)

const (
	DefaultSinaQuotesURL  = "https://money.finance.sina.com.cn"
	DefaultSinaFuturesURL = "https://stock2.finance.sina.com.cn"
)

var (
	sinaIndexColumns   = []string{"day", "open", "high", "low", "close", "volume"}
	sinaFuturesColumns = []string{"date", "open", "high", "low", "close", "volume"}
)

// Sina fetches domestic index klines and global futures daily bars from Sina Finance.
type Sina struct {
	QuotesURL  string
	FuturesURL string
	client     *resty.Client
}

func NewSina(client *resty.Client, quotesURL, futuresURL string) *Sina {
	if quotesURL == "" {
		quotesURL = DefaultSinaQuotesURL
	}
	if futuresURL == "" {
		futuresURL = DefaultSinaFuturesURL
	}
	return &Sina{QuotesURL: strings.TrimRight(quotesURL, "/"), FuturesURL: strings.TrimRight(futuresURL, "/"), client: client}
}

// SinaIndexSymbol maps a six-digit exchange index code to its exchange-prefixed Sina symbol.
func SinaIndexSymbol(code string) (string, bool) {
	if len(code) != 6 || !isDigits(code) {
		return "", false
	}
	switch {
	case strings.HasPrefix(code, "000"):
		return "sh" + code, true
	case strings.HasPrefix(code, "399"):
		return "sz" + code, true
	}
	return "", false
}

// IndexKline returns up to bars daily bars of a domestic index.
func (s *Sina) IndexKline(ctx context.Context, symbol string, bars int) (model.Series, error) {
	params := map[string]string{
		"symbol":  symbol,
		"scale":   "240",
		"ma":      "no",
		"datalen": strconv.Itoa(limit(bars)),
	}
	var records []map[string]any
	endpoint := s.QuotesURL + "/quotes_service/api/json_v2.php/CN_MarketData.getKLineData"
	if err := getJSON(ctx, s.client, "sina kline", endpoint, params, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sina kline %s: %w", symbol, ErrEmptyResult)
	}
	return Normalize(recordsFrame(records, sinaIndexColumns), bars)
}

// GlobalFutures returns the daily bars of a global futures contract such as XAU or XAG. The
// endpoint answers JSONP; the array literal is cut out of the callback wrapper.
func (s *Sina) GlobalFutures(ctx context.Context, symbol string, bars int) (model.Series, error) {
	endpoint := s.FuturesURL + "/futures/api/jsonp.php/var%20_" + symbol + "=/GlobalFuturesService.getGlobalFuturesDailyKLine"
	body, err := getBody(ctx, s.client, "sina futures", endpoint, map[string]string{"symbol": symbol, "source": "web"})
	if err != nil {
		return nil, err
	}
	start, end := bytes.IndexByte(body, '['), bytes.LastIndexByte(body, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("sina futures %s: %w", symbol, ErrEmptyResult)
	}
	var records []map[string]any
	if err := decodeJSON("sina futures", body[start:end+1], &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sina futures %s: %w", symbol, ErrEmptyResult)
	}
	return Normalize(recordsFrame(records, sinaFuturesColumns), bars)
}
