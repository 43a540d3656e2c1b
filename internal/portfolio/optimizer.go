// Package portfolio allocates an investment across scored protocols under
// risk-tier constraints.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/internal/analytics"
	"rwa-yield-engine/models"
)

// tierPolicy holds one risk tier's constraints.
type tierPolicy struct {
	maxProtocols int
	weightCap    float64 // max share per protocol
	riskCeiling  float64 // candidates above this are filtered out
}

var policies = map[models.RiskTolerance]tierPolicy{
	models.RiskToleranceLow:    {maxProtocols: 2, weightCap: 0.60, riskCeiling: 0.40},
	models.RiskToleranceMedium: {maxProtocols: 3, weightCap: 0.50, riskCeiling: 0.70},
	models.RiskToleranceHigh:   {maxProtocols: 4, weightCap: 0.40, riskCeiling: 1.00},
}

// minWeightBase floors the proportional weighting bases so a selected
// candidate with non-positive risk-adjusted return cannot corrupt the
// normalization.
const minWeightBase = 0.01

// Optimizer produces constrained allocation plans. The zero dependencies
// (clock, id generator) are injectable so repeated runs in tests are
// bit-identical.
type Optimizer struct {
	riskFreeRate float64
	now          models.Clock
	newID        func() string
	logger       zerolog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithRiskFreeRate overrides the default risk-free baseline.
func WithRiskFreeRate(r float64) Option {
	return func(o *Optimizer) { o.riskFreeRate = r }
}

// WithClock fixes the plan timestamp source.
func WithClock(c models.Clock) Option {
	return func(o *Optimizer) { o.now = c }
}

// WithIDGenerator fixes the session id source.
func WithIDGenerator(gen func() string) Option {
	return func(o *Optimizer) { o.newID = gen }
}

// New creates an optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		riskFreeRate: analytics.DefaultRiskFreeRate,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       log.With().Str("component", "optimizer").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize builds an allocation plan: filter candidates by the tier's risk
// ceiling, rank by risk-adjusted return, weight proportionally, then clip
// any weight above the tier cap and redistribute the excess. Percentages
// sum to 100 and, except for the explicit single-candidate case, no entry
// exceeds the tier cap.
func (o *Optimizer) Optimize(records []models.ProtocolRecord, totalInvestment float64, tolerance models.RiskTolerance) (models.AllocationPlan, error) {
	if totalInvestment <= 0 {
		return models.AllocationPlan{}, &models.InvalidInputError{Param: "total_investment", Reason: "must be positive"}
	}
	policy, ok := policies[tolerance]
	if !ok {
		return models.AllocationPlan{}, &models.InvalidInputError{Param: "risk_tolerance", Reason: fmt.Sprintf("must be one of low, medium, high; got %q", tolerance)}
	}

	var candidates []models.ProtocolRecord
	for _, rec := range records {
		if rec.RiskScore <= policy.riskCeiling {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return models.AllocationPlan{}, fmt.Errorf("%w for tolerance %q", models.ErrInsufficientCandidates, tolerance)
	}

	// Rank by risk-adjusted return, ties broken by id for determinism.
	sort.SliceStable(candidates, func(i, j int) bool {
		ri := o.riskAdjusted(candidates[i])
		rj := o.riskAdjusted(candidates[j])
		if ri != rj {
			return ri > rj
		}
		return candidates[i].ProtocolID < candidates[j].ProtocolID
	})
	if len(candidates) > policy.maxProtocols {
		candidates = candidates[:policy.maxProtocols]
	}

	weights := o.proportionalWeights(candidates)
	weights = clipAndRedistribute(weights, policy.weightCap)

	plan := o.buildPlan(candidates, weights, totalInvestment, tolerance)
	o.logger.Debug().
		Str("session_id", plan.SessionID).
		Int("entries", len(plan.Entries)).
		Float64("expected_weighted_apy", plan.ExpectedWeightedAPY).
		Msg("Allocation plan built")
	return plan, nil
}

func (o *Optimizer) riskAdjusted(rec models.ProtocolRecord) float64 {
	return analytics.RiskAdjustedReturn(rec.CurrentAPY, rec.RiskScore, o.riskFreeRate)
}

// proportionalWeights assigns initial weights proportional to each
// candidate's risk-adjusted return, normalized to sum to 1.
func (o *Optimizer) proportionalWeights(candidates []models.ProtocolRecord) []float64 {
	weights := make([]float64, len(candidates))
	var total float64
	for i, rec := range candidates {
		weights[i] = math.Max(o.riskAdjusted(rec), minWeightBase)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// clipAndRedistribute caps each weight at cap and hands the clipped excess
// proportionally to the still-unclipped candidates. Each pass pins at
// least one candidate at the cap, so the loop runs at most len(weights)
// times; every tier's cap times its protocol limit is at least 1, so a
// feasible assignment always exists. A single remaining candidate takes
// everything regardless of the cap.
func clipAndRedistribute(weights []float64, maxShare float64) []float64 {
	if len(weights) == 1 {
		return []float64{1}
	}

	const eps = 1e-9
	pinned := make([]bool, len(weights))

	for iter := 0; iter < len(weights); iter++ {
		excess := 0.0
		var freeTotal float64
		for i, w := range weights {
			if pinned[i] {
				continue
			}
			if w > maxShare+eps {
				excess += w - maxShare
				weights[i] = maxShare
				pinned[i] = true
			} else {
				freeTotal += w
			}
		}
		if excess <= eps || freeTotal <= eps {
			break
		}
		for i := range weights {
			if !pinned[i] {
				weights[i] += excess * (weights[i] / freeTotal)
			}
		}
	}
	return weights
}

func (o *Optimizer) buildPlan(candidates []models.ProtocolRecord, weights []float64, totalInvestment float64, tolerance models.RiskTolerance) models.AllocationPlan {
	entries := make([]models.AllocationEntry, len(candidates))
	var weightedAPY, portfolioRisk, herfindahl float64
	for i, rec := range candidates {
		w := weights[i]
		entries[i] = models.AllocationEntry{
			ProtocolID:  rec.ProtocolID,
			Amount:      totalInvestment * w,
			Percentage:  w * 100,
			ExpectedAPY: rec.CurrentAPY,
			RiskScore:   rec.RiskScore,
		}
		weightedAPY += w * rec.CurrentAPY
		portfolioRisk += w * rec.RiskScore
		herfindahl += w * w
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Percentage != entries[j].Percentage {
			return entries[i].Percentage > entries[j].Percentage
		}
		return entries[i].ProtocolID < entries[j].ProtocolID
	})

	// Risk score stands in as the volatility proxy; no historical return
	// series exists for these protocols.
	volatilityProxy := math.Max(portfolioRisk, 0.1) * 10

	return models.AllocationPlan{
		SessionID:            o.newID(),
		Entries:              entries,
		TotalInvestment:      totalInvestment,
		RiskTolerance:        tolerance,
		ExpectedWeightedAPY:  weightedAPY,
		ExpectedAnnualReturn: totalInvestment * weightedAPY / 100,
		PortfolioRiskScore:   portfolioRisk,
		SharpeRatio:          (weightedAPY - o.riskFreeRate) / volatilityProxy,
		DiversificationScore: 1 - herfindahl,
		GeneratedAt:          o.now().UTC(),
	}
}
