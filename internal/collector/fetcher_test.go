package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendWatch/internal/model"
)

func bars(n int) model.Series {
	s := make(model.Series, n)
	start := day("2024-01-01")
	for i := range s {
		c := float64(100 + i)
		s[i] = model.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return s
}

// countingStrategy records calls and answers with the given function.
func countingStrategy(name string, calls *int, fn func() (model.Series, error)) Strategy {
	return Strategy{Name: name, Fetch: func(context.Context, Request) (model.Series, error) {
		*calls++
		return fn()
	}}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func newTestFetcher(rec *sleepRecorder, src model.Source, chain ...Strategy) *SourceFetcher {
	return NewSourceFetcher(nil,
		WithChain(src, chain...),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}),
		WithSleep(rec.sleep),
		WithLogger(quietLogger()),
	)
}

func TestFetchFallsBackAfterRetryBudget(t *testing.T) {
	var primaryCalls, secondaryCalls int
	timeout := recoverable("primary", errors.New("i/o timeout"))
	want := bars(25)

	rec := &sleepRecorder{}
	f := newTestFetcher(rec, model.SourceOffshore,
		countingStrategy("primary", &primaryCalls, func() (model.Series, error) { return nil, timeout }),
		countingStrategy("secondary", &secondaryCalls, func() (model.Series, error) { return want.Clone(), nil }),
	)

	got, err := f.Fetch(context.Background(), Request{Code: "HSI", Source: model.SourceOffshore, Bars: 25})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 3+1, primaryCalls)
	assert.Equal(t, 1, secondaryCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, rec.delays)
}

func TestFetchUnrecoverablePropagates(t *testing.T) {
	var primaryCalls, secondaryCalls int
	boom := errors.New("boom")

	f := newTestFetcher(&sleepRecorder{}, model.SourceCNIndex,
		countingStrategy("primary", &primaryCalls, func() (model.Series, error) { return nil, boom }),
		countingStrategy("secondary", &secondaryCalls, func() (model.Series, error) { return bars(25), nil }),
	)

	_, err := f.Fetch(context.Background(), Request{Code: "000300", Source: model.SourceCNIndex})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, primaryCalls)
	assert.Zero(t, secondaryCalls)
}

func TestFetchNotApplicableFallsBackWithoutRetry(t *testing.T) {
	var primaryCalls, secondaryCalls int
	rec := &sleepRecorder{}
	f := newTestFetcher(rec, model.SourceSector,
		countingStrategy("by-code", &primaryCalls, func() (model.Series, error) { return nil, ErrNotApplicable }),
		countingStrategy("by-name", &secondaryCalls, func() (model.Series, error) { return bars(30), nil }),
	)

	got, err := f.Fetch(context.Background(), Request{Code: "XYZ", Source: model.SourceSector})
	require.NoError(t, err)
	assert.Len(t, got, 30)
	assert.Equal(t, 1, primaryCalls)
	assert.Empty(t, rec.delays)
}

func TestFetchChainExhausted(t *testing.T) {
	var a, b int
	f := newTestFetcher(&sleepRecorder{}, model.SourceCrypto,
		countingStrategy("a", &a, func() (model.Series, error) { return nil, ErrEmptyResult }),
		countingStrategy("b", &b, func() (model.Series, error) { return model.Series{}, nil }),
	)

	s, err := f.Fetch(context.Background(), Request{Code: "BTC", Source: model.SourceCrypto})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 4, a)
	assert.Equal(t, 4, b, "an empty series counts as a recoverable empty result")
}

func TestFetchUnknownSource(t *testing.T) {
	var calls int
	f := newTestFetcher(&sleepRecorder{}, model.SourceCNIndex,
		countingStrategy("a", &calls, func() (model.Series, error) { return bars(25), nil }),
	)

	_, err := f.Fetch(context.Background(), Request{Code: "X", Source: model.SourceUnknown})
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, calls)
}

func TestFetchChainDepthIsCapped(t *testing.T) {
	var calls [4]int
	fail := func() (model.Series, error) { return nil, ErrNotApplicable }
	f := newTestFetcher(&sleepRecorder{}, model.SourceOffshore,
		countingStrategy("1", &calls[0], fail),
		countingStrategy("2", &calls[1], fail),
		countingStrategy("3", &calls[2], fail),
		countingStrategy("4", &calls[3], func() (model.Series, error) { return bars(25), nil }),
	)

	_, err := f.Fetch(context.Background(), Request{Code: "X", Source: model.SourceOffshore})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, [4]int{1, 1, 1, 0}, calls)
}

func TestFetchStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var primary, secondary int
	f := NewSourceFetcher(nil,
		WithChain(model.SourceCNIndex,
			countingStrategy("primary", &primary, func() (model.Series, error) {
				cancel()
				return nil, recoverable("primary", errors.New("connection reset"))
			}),
			countingStrategy("secondary", &secondary, func() (model.Series, error) { return bars(25), nil }),
		),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour}),
		WithLogger(quietLogger()),
	)

	_, err := f.Fetch(ctx, Request{Code: "000300", Source: model.SourceCNIndex})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, primary)
	assert.Zero(t, secondary)
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"wrapped recoverable", recoverable("op", errors.New("x")), true},
		{"empty", ErrEmptyResult, true},
		{"missing field", ErrMissingField, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"not applicable", ErrNotApplicable, false},
		{"http 503", statusError("op", 503, nil), true},
		{"http 429", statusError("op", 429, nil), true},
		{"http 400", statusError("op", 400, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
	assert.ErrorIs(t, statusError("op", 404, []byte("nope")), ErrNotApplicable)
}
