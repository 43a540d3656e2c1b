package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwa-yield-engine/models"
)

// stubMetrics is a scriptable metrics source.
type stubMetrics struct {
	raw      map[string]any
	err      error
	failures int // fail this many calls, then succeed
	calls    int
}

func (s *stubMetrics) FetchProtocolMetrics(_ context.Context, _ string) (map[string]any, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("transient upstream error")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

func fastOptions() Options {
	return Options{InitialInterval: time.Millisecond, CacheTTL: time.Hour}
}

func centrifugeRaw() map[string]any {
	return map[string]any{
		"protocol":      "centrifuge",
		"estimated_apy": 9.5,
		"tvl":           45000000.0,
		"change_7d":     1.2,
	}
}

func TestFetchRecordSuccess(t *testing.T) {
	src := &stubMetrics{raw: centrifugeRaw()}
	f := NewFetcher(src, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())

	rec, err := f.FetchRecord(context.Background(), "centrifuge")
	require.NoError(t, err)
	assert.Equal(t, "centrifuge", rec.ProtocolID)
	assert.Equal(t, 9.5, rec.CurrentAPY)
	assert.False(t, rec.IsFallback)
}

func TestFetchRecordRetriesTransientFailure(t *testing.T) {
	src := &stubMetrics{raw: centrifugeRaw(), failures: 2}
	f := NewFetcher(src, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())

	rec, err := f.FetchRecord(context.Background(), "centrifuge")
	require.NoError(t, err)
	assert.False(t, rec.IsFallback)
	assert.Equal(t, 3, src.calls, "expected two retries before the success")
}

func TestFetchRecordFallsBackToCachedRecord(t *testing.T) {
	cache := NewMemoryCache()
	src := &stubMetrics{raw: centrifugeRaw()}
	f := NewFetcher(src, cache, models.StaticFallbacks{}, fastOptions())

	// Prime the last-known-good cache with a live fetch.
	live, err := f.FetchRecord(context.Background(), "centrifuge")
	require.NoError(t, err)

	// Upstream dies; the cached snapshot comes back tagged.
	src.err = errors.New("upstream down")
	degraded, err := f.FetchRecord(context.Background(), "centrifuge")
	require.NoError(t, err)
	assert.True(t, degraded.IsFallback)
	assert.Equal(t, live.CurrentAPY, degraded.CurrentAPY)
	assert.Equal(t, live.TVL, degraded.TVL)
}

func TestFetchRecordFallsBackToStaticReference(t *testing.T) {
	src := &stubMetrics{err: errors.New("upstream down")}
	f := NewFetcher(src, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())

	rec, err := f.FetchRecord(context.Background(), "maple")
	require.NoError(t, err)
	assert.True(t, rec.IsFallback)
	assert.Equal(t, 8.7, rec.CurrentAPY)
	assert.Equal(t, "Institutional Loans", rec.AssetType)
}

func TestFetchRecordNoFallbackAnywhere(t *testing.T) {
	src := &stubMetrics{err: errors.New("upstream down")}
	f := NewFetcher(src, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())

	_, err := f.FetchRecord(context.Background(), "acme")
	require.ErrorIs(t, err, models.ErrNoFallback)
}

func TestFetchRecordValidationErrorNotMasked(t *testing.T) {
	src := &stubMetrics{raw: map[string]any{"protocol": "centrifuge"}}
	f := NewFetcher(src, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())

	_, err := f.FetchRecord(context.Background(), "centrifuge")
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "current_apy", vErr.Field)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	f := NewFetcher(&stubMetrics{}, NewMemoryCache(), models.StaticFallbacks{}, Options{InitialInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := f.Retry(ctx, func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1, "cancelled context must not keep retrying")
}

func TestPredictionLastKnownGoodRoundTrip(t *testing.T) {
	f := NewFetcher(&stubMetrics{}, NewMemoryCache(), models.StaticFallbacks{}, fastOptions())
	ctx := context.Background()

	_, ok := f.LastGoodPrediction(ctx, "centrifuge", "90d")
	assert.False(t, ok)

	pred := models.EnsemblePrediction{
		ProtocolID:          "centrifuge",
		Timeframe:           "90d",
		PredictedAPY:        9.8,
		Confidence:          0.7,
		ContributingSources: []string{"gpt-4", "gemini"},
		GeneratedAt:         time.Now().UTC(),
	}
	f.StorePrediction(ctx, pred)

	got, ok := f.LastGoodPrediction(ctx, "centrifuge", "90d")
	require.True(t, ok)
	assert.Equal(t, pred.PredictedAPY, got.PredictedAPY)
	assert.Equal(t, pred.ContributingSources, got.ContributingSources)

	// Another timeframe is a different key.
	_, ok = f.LastGoodPrediction(ctx, "centrifuge", "30d")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}
