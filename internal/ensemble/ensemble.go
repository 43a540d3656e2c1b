// Package ensemble queries independent forecasting sources concurrently
// and combines their answers into one confidence-weighted prediction.
package ensemble

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/models"
)

// RetryFunc runs an operation under the resilience layer's retry policy.
type RetryFunc func(ctx context.Context, op func() error) error

// Options tunes the predictor.
type Options struct {
	// SourceTimeout bounds each individual source call. Default 20s.
	SourceTimeout time.Duration
	// Retry wraps each source call; nil means a single attempt.
	Retry RetryFunc
}

// Predictor fans a (protocol, timeframe) query out to every configured
// source, waits for all of them to settle, and combines the successes.
// Design target is 3 sources; 1 is the working minimum.
type Predictor struct {
	sources []models.ForecastSource
	opts    Options
	logger  zerolog.Logger
}

// New creates a predictor over the given sources.
func New(sources []models.ForecastSource, opts Options) *Predictor {
	if opts.SourceTimeout == 0 {
		opts.SourceTimeout = 20 * time.Second
	}
	return &Predictor{
		sources: sources,
		opts:    opts,
		logger:  log.With().Str("component", "ensemble").Logger(),
	}
}

// Predict queries all sources concurrently, each under its own timeout,
// and joins on every one of them before combining: a stable weighted
// result requires knowing all available confidences, so there is no
// first-wins short-circuit and no partial ensemble. Cancelling ctx aborts
// in-flight calls and discards gathered results. If every source fails the
// error is models.ErrEnsembleUnavailable; the predictor never fabricates a
// number.
func (p *Predictor) Predict(ctx context.Context, record models.ProtocolRecord, timeframe string) (models.EnsemblePrediction, error) {
	results := make([]models.PredictionSourceResult, len(p.sources))

	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)
		go func(i int, src models.ForecastSource) {
			defer wg.Done()
			results[i] = p.querySource(ctx, src, record, timeframe)
		}(i, src)
	}
	wg.Wait()

	// A cancelled request returns the context error, not a thin ensemble
	// built from whatever happened to finish first.
	if err := ctx.Err(); err != nil {
		return models.EnsemblePrediction{}, err
	}

	pred, err := Combine(results)
	if err != nil {
		return models.EnsemblePrediction{}, err
	}
	p.logger.Debug().
		Str("protocol", pred.ProtocolID).
		Float64("predicted_apy", pred.PredictedAPY).
		Float64("confidence", pred.Confidence).
		Int("sources", len(pred.ContributingSources)).
		Msg("Ensemble prediction combined")
	return pred, nil
}

func (p *Predictor) querySource(ctx context.Context, src models.ForecastSource, record models.ProtocolRecord, timeframe string) models.PredictionSourceResult {
	sctx, cancel := context.WithTimeout(ctx, p.opts.SourceTimeout)
	defer cancel()

	var result models.PredictionSourceResult
	op := func() error {
		var err error
		result, err = src.Predict(sctx, record, timeframe)
		return err
	}

	var err error
	if p.opts.Retry != nil {
		err = p.opts.Retry(sctx, op)
	} else {
		err = op()
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("source", src.ID()).Str("protocol", record.ProtocolID).Msg("Forecast source failed")
		return models.PredictionSourceResult{
			SourceID:   src.ID(),
			ProtocolID: record.ProtocolID,
			Timeframe:  timeframe,
			Timestamp:  time.Now().UTC(),
			Failed:     true,
		}
	}
	return result
}
