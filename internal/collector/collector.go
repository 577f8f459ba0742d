package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"TrendWatch/internal/model"
	"TrendWatch/internal/resample"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	// Data, when set for a code, is served instead of generated bars.
	Data map[string]model.Series
	// Errs fails the listed codes.
	Errs  map[string]error
	Calls map[string]int
}

func (m *MockFetcher) Fetch(_ context.Context, req Request) (model.Series, error) {
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[req.Code]++
	if err, ok := m.Errs[req.Code]; ok {
		return nil, err
	}
	if s, ok := m.Data[req.Code]; ok {
		return s.Tail(req.Bars).Clone(), nil
	}
	bars := req.Bars
	if bars <= 0 {
		bars = 300
	}
	return generateMockBars(m.Price, bars), nil
}

func generateMockBars(basePrice float64, count int) model.Series {
	today := model.Day(time.Now())
	bars := make(model.Series, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Date:   today.AddDate(0, 0, -(count - 1 - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Collector acquires an instrument's daily history and derives its weekly and monthly series.
type Collector struct {
	Fetcher Fetcher
	// Bars is the daily history length requested per instrument.
	Bars int
	log  logrus.FieldLogger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, bars int, log logrus.FieldLogger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{Fetcher: fetcher, Bars: bars, log: log}
}

// Collect fetches the daily series of inst and resamples it.
func (c *Collector) Collect(ctx context.Context, inst model.Instrument) (*model.PriceSeries, error) {
	req := Request{Code: inst.Code, Name: inst.LookupName(), Source: inst.Source, Bars: c.Bars}
	daily, err := c.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", inst.Code, err)
	}
	c.log.WithFields(logrus.Fields{
		"code":   inst.Code,
		"source": inst.Source.String(),
		"bars":   len(daily),
		"last":   daily.LastDate().Format(time.DateOnly),
	}).Debug("series fetched")

	return &model.PriceSeries{
		Instrument: inst,
		Daily:      daily,
		Weekly:     resample.ToWeekly(daily),
		Monthly:    resample.ToMonthly(daily),
		FetchedAt:  time.Now(),
	}, nil
}
