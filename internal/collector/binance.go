package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"TrendWatch/internal/model"
)

const (
	DefaultBinanceURL = "https://api.binance.com"
	binancePageLimit  = 1000
)

var binanceColumns = []string{"open_time", "open", "high", "low", "close", "volume"}

// Binance fetches daily klines from the Binance spot API.
type Binance struct {
	BaseURL string
	client  *resty.Client
}

func NewBinance(client *resty.Client, baseURL string) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// BinanceSymbol quotes a bare asset code in USDT: BTC becomes BTCUSDT.
func BinanceSymbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(code, quote) && len(code) > len(quote) {
			return code
		}
	}
	return code + "USDT"
}

// Daily returns up to bars daily klines, paging backwards by endTime once a single page of 1000
// is not enough.
func (b *Binance) Daily(ctx context.Context, symbol string, bars int) (model.Series, error) {
	want := limit(bars)
	var rows [][]string
	var endTime int64
	for len(rows) < want {
		page := min(want-len(rows), binancePageLimit)
		params := map[string]string{
			"symbol":   symbol,
			"interval": "1d",
			"limit":    strconv.Itoa(page),
		}
		if endTime > 0 {
			params["endTime"] = strconv.FormatInt(endTime, 10)
		}
		var klines [][]any
		if err := getJSON(ctx, b.client, "binance klines", b.BaseURL+"/api/v3/klines", params, &klines); err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		chunk := make([][]string, 0, len(klines))
		for _, k := range klines {
			if len(k) < len(binanceColumns) {
				return nil, fmt.Errorf("binance klines %s: %w: short kline row", symbol, ErrMissingField)
			}
			row := make([]string, len(binanceColumns))
			for i := range row {
				row[i] = cellString(k[i])
			}
			chunk = append(chunk, row)
		}
		rows = append(chunk, rows...)

		first, ok := klines[0][0].(float64)
		if !ok || len(klines) < page {
			break
		}
		endTime = int64(first) - 1
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, ErrEmptyResult)
	}
	return Normalize(Frame{Columns: binanceColumns, Rows: rows}, bars)
}
