package collector

import (
	"context"

	"TrendWatch/internal/model"
)

type cacheKey struct {
	source model.Source
	code   string
	bars   int
}

// CachedFetcher memoizes successful fetches for its own lifetime, typically one run. Every hit
// returns an independent copy. It is not safe for concurrent use.
type CachedFetcher struct {
	next    Fetcher
	entries map[cacheKey]model.Series
}

func NewCachedFetcher(next Fetcher) *CachedFetcher {
	return &CachedFetcher{next: next, entries: make(map[cacheKey]model.Series)}
}

func (c *CachedFetcher) Fetch(ctx context.Context, req Request) (model.Series, error) {
	key := cacheKey{source: req.Source, code: req.Code, bars: req.Bars}
	if s, ok := c.entries[key]; ok {
		return s.Clone(), nil
	}
	s, err := c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	c.entries[key] = s.Clone()
	return s, nil
}

// Len reports the number of cached series.
func (c *CachedFetcher) Len() int { return len(c.entries) }
