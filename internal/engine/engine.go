// Package engine is the facade a host application talks to: scored
// records, ensemble forecasts, and allocation plans, each returned as a
// complete structured value or a typed failure.
package engine

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/internal/analytics"
	"rwa-yield-engine/internal/ensemble"
	"rwa-yield-engine/internal/portfolio"
	"rwa-yield-engine/internal/resilience"
	"rwa-yield-engine/models"
)

// Engine wires the pipeline stages together. Scoring and optimization are
// synchronous and in-memory; only fetches and forecasts touch the network,
// and those run behind the resilience layer.
type Engine struct {
	fetcher   *resilience.Fetcher
	predictor *ensemble.Predictor
	optimizer *portfolio.Optimizer
	protocols []string
	logger    zerolog.Logger
}

// New creates an engine over the given collaborators. protocols defaults
// to the supported registry when empty.
func New(fetcher *resilience.Fetcher, predictor *ensemble.Predictor, optimizer *portfolio.Optimizer, protocols []string) *Engine {
	if len(protocols) == 0 {
		protocols = models.SupportedProtocols
	}
	return &Engine{
		fetcher:   fetcher,
		predictor: predictor,
		optimizer: optimizer,
		protocols: protocols,
		logger:    log.With().Str("component", "engine").Logger(),
	}
}

// Protocols lists the protocol ids this engine tracks.
func (e *Engine) Protocols() []string {
	out := make([]string, len(e.protocols))
	copy(out, e.protocols)
	return out
}

// RefreshProtocols fetches and normalizes every tracked protocol through
// the resilience layer. Protocols with neither live data nor any fallback
// are skipped and logged rather than failing the whole refresh.
func (e *Engine) RefreshProtocols(ctx context.Context) ([]models.ProtocolRecord, error) {
	records := make([]models.ProtocolRecord, 0, len(e.protocols))
	for _, id := range e.protocols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := e.fetcher.FetchRecord(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Str("protocol", id).Msg("No data for protocol, skipping")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ScoredProtocols computes cross-sectional scores for the supplied record
// set with the default weight blend.
func (e *Engine) ScoredProtocols(records []models.ProtocolRecord) []analytics.ScoredRecord {
	return analytics.ScoreRecords(records, analytics.DefaultWeights)
}

// CompareProtocols ranks records by risk-adjusted return, best first.
func (e *Engine) CompareProtocols(records []models.ProtocolRecord) []analytics.ScoredRecord {
	scored := e.ScoredProtocols(records)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RiskAdjustedReturn != scored[j].RiskAdjustedReturn {
			return scored[i].RiskAdjustedReturn > scored[j].RiskAdjustedReturn
		}
		return scored[i].Record.ProtocolID < scored[j].Record.ProtocolID
	})
	return scored
}

// EnsemblePrediction fetches the protocol's current record and runs the
// multi-source ensemble over it. On success the prediction is stored as
// last-known-good; on models.ErrEnsembleUnavailable the caller decides
// whether to accept LastGoodPrediction instead. The engine never
// substitutes one silently.
func (e *Engine) EnsemblePrediction(ctx context.Context, protocolID, timeframe string) (models.EnsemblePrediction, error) {
	record, err := e.fetcher.FetchRecord(ctx, protocolID)
	if err != nil {
		return models.EnsemblePrediction{}, err
	}

	pred, err := e.predictor.Predict(ctx, record, timeframe)
	if err != nil {
		return models.EnsemblePrediction{}, err
	}
	e.fetcher.StorePrediction(ctx, pred)
	return pred, nil
}

// LastGoodPrediction exposes the resilience layer's cached prediction for
// callers that accept degraded forecast output.
func (e *Engine) LastGoodPrediction(ctx context.Context, protocolID, timeframe string) (models.EnsemblePrediction, bool) {
	return e.fetcher.LastGoodPrediction(ctx, protocolID, timeframe)
}

// OptimizePortfolio allocates totalInvestment across the supplied records
// under the tolerance tier's constraints.
func (e *Engine) OptimizePortfolio(records []models.ProtocolRecord, totalInvestment float64, tolerance models.RiskTolerance) (models.AllocationPlan, error) {
	return e.optimizer.Optimize(records, totalInvestment, tolerance)
}
