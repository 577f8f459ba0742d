package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"TrendWatch/internal/model"
)

// Endpoints overrides provider base URLs; empty fields select the public defaults.
type Endpoints struct {
	EastmoneyKline string `yaml:"eastmoney_kline"`
	EastmoneyList  string `yaml:"eastmoney_list"`
	SinaQuotes     string `yaml:"sina_quotes"`
	SinaFutures    string `yaml:"sina_futures"`
	Yahoo          string `yaml:"yahoo"`
	Binance        string `yaml:"binance"`
}

// Providers holds one client per upstream vendor, all sharing the same HTTP client.
type Providers struct {
	Eastmoney *Eastmoney
	Sina      *Sina
	Yahoo     *Yahoo
	Binance   *Binance
}

// NewProviders wires every vendor onto client. A nil client takes the default factory's.
func NewProviders(client *resty.Client, ep Endpoints) *Providers {
	if client == nil {
		client = DefaultClientFactory().Client()
	}
	return &Providers{
		Eastmoney: NewEastmoney(client, ep.EastmoneyKline, ep.EastmoneyList),
		Sina:      NewSina(client, ep.SinaQuotes, ep.SinaFutures),
		Yahoo:     NewYahoo(client, ep.Yahoo),
		Binance:   NewBinance(client, ep.Binance),
	}
}

// Catalogue lists the raw columns each provider emits, for ValidateCatalogue.
func Catalogue() map[string][]string {
	return map[string][]string{
		"eastmoney": eastmoneyColumns,
		"sina":      sinaIndexColumns,
		"sina-fut":  sinaFuturesColumns,
		"yahoo":     yahooColumns,
		"binance":   binanceColumns,
	}
}

// sectorAliases maps Eastmoney's self-assigned 1B codes onto the standard index they track.
var sectorAliases = map[string]string{
	"1B0016": "000016",
	"1B0688": "000688",
	"1B0819": "000819",
	"1B0852": "000852",
	"1B0932": "000932",
}

var (
	sinaFuturesSymbols = map[string]string{"XAU": "XAU", "XAG": "XAG", "AUUSDO": "XAU", "AGUSDO": "XAG"}
	sgeContracts       = map[string]string{"XAU": "AUTD", "AUUSDO": "AUTD", "AUTD": "AUTD", "XAG": "AGTD", "AGUSDO": "AGTD", "AGTD": "AGTD"}
)

// SectorSecID resolves a sector code by prefix convention: BK board codes directly, 1B codes through
// the alias table, six-digit codes as standard indices. THS industry codes (881xxx) have no Eastmoney
// identifier and resolve only by name.
func SectorSecID(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(code, "881"):
		return "", false
	case strings.HasPrefix(code, "BK"):
		return "90." + code, true
	case strings.HasPrefix(code, "1B"):
		std, ok := sectorAliases[code]
		if !ok {
			return "", false
		}
		return IndexSecID(std)
	case len(code) == 6 && isDigits(code):
		return IndexSecID(code)
	}
	return "", false
}

func notApplicable(strategy string, req Request) error {
	return fmt.Errorf("%s %s: %w", strategy, req.Code, ErrNotApplicable)
}

// Chains returns the ordered fallback chain of every source.
func (p *Providers) Chains() map[model.Source][]Strategy {
	em, sina, yahoo, binance := p.Eastmoney, p.Sina, p.Yahoo, p.Binance

	eastmoneyIndex := Strategy{Name: "eastmoney-index", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		secid, ok := IndexSecID(req.Code)
		if !ok || strings.HasPrefix(secid, "90.") {
			return nil, notApplicable("eastmoney-index", req)
		}
		return em.Kline(ctx, secid, req.Bars)
	}}
	sinaIndex := Strategy{Name: "sina-index", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		symbol, ok := SinaIndexSymbol(req.Code)
		if !ok {
			return nil, notApplicable("sina-index", req)
		}
		return sina.IndexKline(ctx, symbol, req.Bars)
	}}
	boardByName := Strategy{Name: "eastmoney-board-by-name", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		if req.Name == "" {
			return nil, notApplicable("eastmoney-board-by-name", req)
		}
		bk, err := em.BoardCode(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		return em.Kline(ctx, "90."+bk, req.Bars)
	}}
	sectorByCode := Strategy{Name: "eastmoney-sector", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		secid, ok := SectorSecID(req.Code)
		if !ok {
			return nil, notApplicable("eastmoney-sector", req)
		}
		return em.Kline(ctx, secid, req.Bars)
	}}
	sinaFutures := Strategy{Name: "sina-futures", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		symbol, ok := sinaFuturesSymbols[strings.ToUpper(req.Code)]
		if !ok {
			return nil, notApplicable("sina-futures", req)
		}
		return sina.GlobalFutures(ctx, symbol, req.Bars)
	}}
	sgeSpot := Strategy{Name: "eastmoney-sge", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		contract, ok := sgeContracts[strings.ToUpper(req.Code)]
		if !ok {
			return nil, notApplicable("eastmoney-sge", req)
		}
		return em.Kline(ctx, eastmoneyRegional[contract], req.Bars)
	}}
	regional := Strategy{Name: "eastmoney-regional", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		secid, ok := eastmoneyRegional[strings.ToUpper(req.Code)]
		if !ok {
			return nil, notApplicable("eastmoney-regional", req)
		}
		return em.Kline(ctx, secid, req.Bars)
	}}
	yahooGlobal := Strategy{Name: "yahoo", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		return yahoo.Daily(ctx, YahooSymbol(req.Code), req.Bars)
	}}
	binanceSpot := Strategy{Name: "binance", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		return binance.Daily(ctx, BinanceSymbol(req.Code), req.Bars)
	}}
	yahooCrypto := Strategy{Name: "yahoo-crypto", Fetch: func(ctx context.Context, req Request) (model.Series, error) {
		asset := strings.TrimSuffix(BinanceSymbol(req.Code), "USDT")
		return yahoo.Daily(ctx, asset+"-USD", req.Bars)
	}}

	return map[model.Source][]Strategy{
		model.SourceCNIndex:       {eastmoneyIndex, sinaIndex, boardByName},
		model.SourceSector:        {sectorByCode, boardByName},
		model.SourcePreciousMetal: {sinaFutures, sgeSpot},
		model.SourceOffshore:      {regional, yahooGlobal},
		model.SourceCrypto:        {binanceSpot, yahooCrypto},
	}
}
