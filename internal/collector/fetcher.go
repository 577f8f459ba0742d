package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"TrendWatch/internal/model"
)

// MaxChainDepth caps how many strategies a source may fall back through.
const MaxChainDepth = 3

// Request identifies one series to acquire.
type Request struct {
	Code string
	// Name is used by name-based lookups.
	Name   string
	Source model.Source
	// Bars is the number of most recent daily bars wanted; zero means everything available.
	Bars int
}

func (r Request) String() string {
	return fmt.Sprintf("%s:%s", r.Source, r.Code)
}

// Fetcher defines the interface for acquiring a canonical daily series.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (model.Series, error)
}

// Strategy is one acquisition path inside a source's fallback chain.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, req Request) (model.Series, error)
}

// RetryPolicy bounds retries of recoverable failures. The n-th retry waits n * BaseDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is three retries with a two-second base delay.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}

// SourceFetcher resolves a request's source to its strategy chain and walks it: each strategy is
// retried on recoverable failures, then the next one is tried. Unrecoverable errors abort the walk.
type SourceFetcher struct {
	chains map[model.Source][]Strategy
	retry  RetryPolicy
	log    logrus.FieldLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a SourceFetcher.
type Option func(*SourceFetcher)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *SourceFetcher) { f.retry = p }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(f *SourceFetcher) { f.log = log }
}

// WithChain replaces the strategy chain of one source.
func WithChain(src model.Source, chain ...Strategy) Option {
	return func(f *SourceFetcher) { f.chains[src] = chain }
}

// WithSleep replaces the retry delay function.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *SourceFetcher) { f.sleep = sleep }
}

// NewSourceFetcher builds a fetcher over the standard chains of p. A nil p starts with no chains,
// leaving every source to WithChain.
func NewSourceFetcher(p *Providers, opts ...Option) *SourceFetcher {
	f := &SourceFetcher{
		chains: make(map[model.Source][]Strategy),
		retry:  DefaultRetryPolicy,
		log:    logrus.StandardLogger(),
		sleep:  sleepContext,
	}
	if p != nil {
		for src, chain := range p.Chains() {
			f.chains[src] = chain
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	for src, chain := range f.chains {
		if len(chain) > MaxChainDepth {
			f.chains[src] = chain[:MaxChainDepth]
		}
	}
	return f
}

// Fetch returns the series of the first strategy that succeeds. Exhausting the chain yields an
// error wrapping ErrUnavailable; an unknown source does so without any call.
func (f *SourceFetcher) Fetch(ctx context.Context, req Request) (model.Series, error) {
	chain := f.chains[req.Source]
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w %q for %s", ErrUnknownSource, req.Source, req.Code)
	}

	var lastErr error
	for i, s := range chain {
		series, err := f.attempt(ctx, s, req)
		if err == nil {
			return series, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !IsRecoverable(err) && !errors.Is(err, ErrNotApplicable) {
			return nil, fmt.Errorf("%s via %s: %w", req, s.Name, err)
		}
		lastErr = err
		if i+1 < len(chain) {
			f.log.WithFields(logrus.Fields{
				"code":     req.Code,
				"source":   req.Source.String(),
				"strategy": s.Name,
				"next":     chain[i+1].Name,
			}).Warnf("falling back: %v", err)
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req, lastErr)
}

// attempt runs one strategy with the retry budget.
func (f *SourceFetcher) attempt(ctx context.Context, s Strategy, req Request) (model.Series, error) {
	for attempt := 0; ; attempt++ {
		series, err := s.Fetch(ctx, req)
		if err == nil && len(series) == 0 {
			err = fmt.Errorf("%s: %w", s.Name, ErrEmptyResult)
		}
		if err == nil {
			return series, nil
		}
		if !IsRecoverable(err) || attempt >= f.retry.MaxRetries {
			return nil, err
		}
		delay := time.Duration(attempt+1) * f.retry.BaseDelay
		f.log.WithFields(logrus.Fields{
			"code":     req.Code,
			"strategy": s.Name,
			"attempt":  attempt + 1,
			"delay":    delay,
		}).Warnf("retrying: %v", err)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
