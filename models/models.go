package models

import (
	"time"
)

// RiskTolerance selects the optimizer's constraint tier.
type RiskTolerance string

const (
	RiskToleranceLow    RiskTolerance = "low"
	RiskToleranceMedium RiskTolerance = "medium"
	RiskToleranceHigh   RiskTolerance = "high"
)

// ParseRiskTolerance validates a caller-supplied tolerance string.
func ParseRiskTolerance(s string) (RiskTolerance, bool) {
	switch RiskTolerance(s) {
	case RiskToleranceLow, RiskToleranceMedium, RiskToleranceHigh:
		return RiskTolerance(s), true
	}
	return "", false
}

// ProtocolRecord is the canonical per-protocol snapshot produced by the
// normalizer. Records are immutable; refreshed data yields a new record,
// never an in-place update. RiskScore is always within [0,1].
type ProtocolRecord struct {
	ProtocolID    string    `json:"protocol_id"`
	CurrentAPY    float64   `json:"current_apy"`
	RiskScore     float64   `json:"risk_score"`
	AssetType     string    `json:"asset_type"`
	TVL           float64   `json:"tvl"`
	ActivePools   int       `json:"active_pools"`
	MinInvestment float64   `json:"min_investment"`
	LockPeriod    string    `json:"lock_period"`
	Change1D      float64   `json:"change_1d"`
	Change7D      float64   `json:"change_7d"`
	Timestamp     time.Time `json:"timestamp"`
	IsFallback    bool      `json:"is_fallback"`
}

// Raw re-expresses the record under canonical field names, as a metrics
// source would deliver it. Normalizing the result reproduces the record.
func (r ProtocolRecord) Raw() map[string]any {
	return map[string]any{
		"protocol_id":    r.ProtocolID,
		"current_apy":    r.CurrentAPY,
		"risk_score":     r.RiskScore,
		"asset_type":     r.AssetType,
		"tvl":            r.TVL,
		"active_pools":   r.ActivePools,
		"min_investment": r.MinInvestment,
		"lock_period":    r.LockPeriod,
		"change_1d":      r.Change1D,
		"change_7d":      r.Change7D,
		"timestamp":      r.Timestamp,
		"is_fallback":    r.IsFallback,
	}
}

// PredictionSourceResult is one forecasting source's answer for a
// (protocol, timeframe) pair.
type PredictionSourceResult struct {
	SourceID     string    `json:"source_id"`
	ProtocolID   string    `json:"protocol_id"`
	Timeframe    string    `json:"timeframe"`
	PredictedAPY float64   `json:"predicted_apy"`
	Confidence   float64   `json:"confidence"` // [0,1]
	Reasoning    string    `json:"reasoning"`
	RiskFactors  []string  `json:"risk_factors"`
	Timestamp    time.Time `json:"timestamp"`
	Failed       bool      `json:"failed"`
}

// EnsemblePrediction is the confidence-weighted combination of all
// succeeded source results. Derived on demand, never persisted by the core.
type EnsemblePrediction struct {
	ProtocolID          string    `json:"protocol_id"`
	Timeframe           string    `json:"timeframe"`
	PredictedAPY        float64   `json:"predicted_apy"`
	Confidence          float64   `json:"confidence"`
	ConsensusSpread     float64   `json:"consensus_spread"`
	ContributingSources []string  `json:"contributing_sources"`
	RiskFactors         []string  `json:"risk_factors"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// AllocationEntry is one protocol's share of an allocation plan.
type AllocationEntry struct {
	ProtocolID  string  `json:"protocol_id"`
	Amount      float64 `json:"amount"`
	Percentage  float64 `json:"percentage"`
	ExpectedAPY float64 `json:"expected_apy"`
	RiskScore   float64 `json:"risk_score"`
}

// AllocationPlan is the optimizer's output. Entry percentages sum to 100
// and no entry exceeds the cap of its risk tier.
type AllocationPlan struct {
	SessionID            string            `json:"session_id"`
	Entries              []AllocationEntry `json:"entries"`
	TotalInvestment      float64           `json:"total_investment"`
	RiskTolerance        RiskTolerance     `json:"risk_tolerance"`
	ExpectedWeightedAPY  float64           `json:"expected_weighted_apy"`
	ExpectedAnnualReturn float64           `json:"expected_annual_return"`
	PortfolioRiskScore   float64           `json:"portfolio_risk_score"`
	SharpeRatio          float64           `json:"sharpe_ratio"`
	DiversificationScore float64           `json:"diversification_score"`
	GeneratedAt          time.Time         `json:"generated_at"`
}
