// Package resilience wraps external calls with retry, a last-known-good
// cache, and static reference fallbacks. Transient upstream failures are
// absorbed here and surface as records tagged IsFallback, never as errors,
// unless no fallback of any kind exists.
package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/internal/normalize"
	"rwa-yield-engine/models"
)

// Options tunes the retry and cache policy.
type Options struct {
	MaxRetries      uint64        // attempts after the first; default 2
	InitialInterval time.Duration // default 500ms
	Multiplier      float64       // default 3 (intervals ~0.5s, 1.5s)
	CacheTTL        time.Duration // default 1h
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.InitialInterval == 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.Multiplier == 0 {
		o.Multiplier = 3
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = time.Hour
	}
	return o
}

// Fetcher is the resilience layer around a metrics source. It owns the
// only long-lived mutable state in the core: the last-known-good cache.
type Fetcher struct {
	source    models.MetricsSource
	cache     models.Cache
	fallbacks models.FallbackProvider
	opts      Options
	logger    zerolog.Logger
}

// NewFetcher wires a metrics source with a cache and fallback provider.
func NewFetcher(source models.MetricsSource, cache models.Cache, fallbacks models.FallbackProvider, opts Options) *Fetcher {
	return &Fetcher{
		source:    source,
		cache:     cache,
		fallbacks: fallbacks,
		opts:      opts.withDefaults(),
		logger:    log.With().Str("component", "resilience").Logger(),
	}
}

// Retry runs op with the layer's backoff policy: up to MaxRetries retries
// at deterministic exponential intervals. Context cancellation aborts
// between attempts.
func (f *Fetcher) Retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialInterval
	b.Multiplier = f.opts.Multiplier
	b.RandomizationFactor = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, f.opts.MaxRetries), ctx))
}

// FetchRecord fetches, normalizes, and caches one protocol record. On
// upstream failure it degrades to the cached last-known-good record, then
// to the static reference value, tagging either as fallback. Validation
// errors from the normalizer are not retried or masked.
func (f *Fetcher) FetchRecord(ctx context.Context, protocolID string) (models.ProtocolRecord, error) {
	var raw map[string]any
	fetchErr := f.Retry(ctx, func() error {
		var err error
		raw, err = f.source.FetchProtocolMetrics(ctx, protocolID)
		return err
	})

	if fetchErr == nil {
		rec, err := normalize.Normalize(raw)
		if err != nil {
			return models.ProtocolRecord{}, err
		}
		f.store(ctx, recordKey(protocolID), rec)
		return rec, nil
	}

	f.logger.Warn().Err(fetchErr).Str("protocol", protocolID).Msg("Fetch failed, degrading to fallback")

	if rec, ok := f.cachedRecord(ctx, protocolID); ok {
		rec.IsFallback = true
		return rec, nil
	}
	if rec, ok := f.fallbacks.ReferenceRecord(protocolID); ok {
		rec.IsFallback = true
		return rec, nil
	}
	return models.ProtocolRecord{}, fmt.Errorf("%w: %s: %w", models.ErrNoFallback, protocolID, fetchErr)
}

// LastGoodPrediction returns the cached ensemble prediction for a key, if
// any. Callers invoke this explicitly when degraded forecast output is
// acceptable; the predictor itself never falls back.
func (f *Fetcher) LastGoodPrediction(ctx context.Context, protocolID, timeframe string) (models.EnsemblePrediction, bool) {
	b, ok := f.cache.Get(ctx, predictionKey(protocolID, timeframe))
	if !ok {
		return models.EnsemblePrediction{}, false
	}
	var pred models.EnsemblePrediction
	if err := json.Unmarshal(b, &pred); err != nil {
		return models.EnsemblePrediction{}, false
	}
	return pred, true
}

// StorePrediction records a successful ensemble prediction as
// last-known-good for its key.
func (f *Fetcher) StorePrediction(ctx context.Context, pred models.EnsemblePrediction) {
	b, err := json.Marshal(pred)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, predictionKey(pred.ProtocolID, pred.Timeframe), b, f.opts.CacheTTL); err != nil {
		f.logger.Warn().Err(err).Str("protocol", pred.ProtocolID).Msg("Prediction cache write failed")
	}
}

func (f *Fetcher) cachedRecord(ctx context.Context, protocolID string) (models.ProtocolRecord, bool) {
	b, ok := f.cache.Get(ctx, recordKey(protocolID))
	if !ok {
		return models.ProtocolRecord{}, false
	}
	var rec models.ProtocolRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.ProtocolRecord{}, false
	}
	return rec, true
}

func (f *Fetcher) store(ctx context.Context, key string, rec models.ProtocolRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, key, b, f.opts.CacheTTL); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func recordKey(protocolID string) string {
	return "record:" + protocolID
}

func predictionKey(protocolID, timeframe string) string {
	return "prediction:" + protocolID + ":" + timeframe
}
