// Package analytics computes risk-adjusted returns and cross-sectional
// multi-dimensional scores over canonical protocol records.
package analytics

import (
	"math"

	"rwa-yield-engine/models"
)

// DefaultRiskFreeRate is the baseline yield used when the caller does not
// supply one.
const DefaultRiskFreeRate = 4.5

// riskFloor prevents division blow-up for near-zero risk scores.
const riskFloor = 0.1

// RiskAdjustedReturn is the yield in excess of the risk-free baseline per
// unit of risk. A negative result is valid and signals an unattractive
// opportunity.
func RiskAdjustedReturn(apy, riskScore, riskFreeRate float64) float64 {
	return (apy - riskFreeRate) / math.Max(riskScore, riskFloor)
}

// Weights controls the composite score blend. Zero-value dimensions simply
// contribute nothing.
type Weights struct {
	APY          float64
	Safety       float64
	TVL          float64
	Liquidity    float64
	RiskAdjusted float64
	MarketCap    float64
}

// DefaultWeights favors yield and safety over size.
var DefaultWeights = Weights{
	APY:          0.25,
	Safety:       0.25,
	TVL:          0.15,
	Liquidity:    0.10,
	RiskAdjusted: 0.15,
	MarketCap:    0.10,
}

// Subscores are per-dimension scores, each min-max normalized to [0,100]
// across the supplied record set only.
type Subscores struct {
	APY          float64 `json:"apy"`
	Safety       float64 `json:"safety"`
	TVL          float64 `json:"tvl"`
	Liquidity    float64 `json:"liquidity"`
	RiskAdjusted float64 `json:"risk_adjusted"`
	MarketCap    float64 `json:"market_cap"`
}

// ScoredRecord pairs a record with its relative scores. Scores are
// cross-sectional: they change whenever the comparison set changes.
type ScoredRecord struct {
	Record             models.ProtocolRecord `json:"record"`
	Scores             Subscores             `json:"scores"`
	Composite          float64               `json:"composite"`
	RiskAdjustedReturn float64               `json:"risk_adjusted_return"`
}

// ScoreRecords computes relative scores for the supplied set. An empty set
// returns an empty result; a single record takes the maximum score on
// every dimension by convention.
func ScoreRecords(records []models.ProtocolRecord, weights Weights) []ScoredRecord {
	if len(records) == 0 {
		return []ScoredRecord{}
	}

	dims := [6][]float64{}
	for _, rec := range records {
		rar := RiskAdjustedReturn(rec.CurrentAPY, rec.RiskScore, DefaultRiskFreeRate)
		dims[0] = append(dims[0], rec.CurrentAPY)
		dims[1] = append(dims[1], 1-rec.RiskScore)
		dims[2] = append(dims[2], rec.TVL)
		dims[3] = append(dims[3], liquidityProxy(rec))
		dims[4] = append(dims[4], rar)
		dims[5] = append(dims[5], marketCapProxy(rec))
	}

	for i := range dims {
		dims[i] = minMaxScale(dims[i])
	}

	scored := make([]ScoredRecord, len(records))
	for i, rec := range records {
		s := Subscores{
			APY:          dims[0][i],
			Safety:       dims[1][i],
			TVL:          dims[2][i],
			Liquidity:    dims[3][i],
			RiskAdjusted: dims[4][i],
			MarketCap:    dims[5][i],
		}
		scored[i] = ScoredRecord{
			Record:             rec,
			Scores:             s,
			Composite:          composite(s, weights),
			RiskAdjustedReturn: RiskAdjustedReturn(rec.CurrentAPY, rec.RiskScore, DefaultRiskFreeRate),
		}
	}
	return scored
}

// liquidityProxy blends lock-period flexibility with pool breadth.
func liquidityProxy(rec models.ProtocolRecord) float64 {
	lock := 0.45
	switch rec.LockPeriod {
	case "flexible":
		lock = 1.0
	case "3-6 months":
		lock = 0.6
	case "6-12 months":
		lock = 0.3
	}
	pools := math.Min(float64(rec.ActivePools)/20.0, 1.0)
	return lock*0.7 + pools*0.3
}

// marketCapProxy is momentum-adjusted TVL: where the protocol's locked
// value is heading over the trailing week.
func marketCapProxy(rec models.ProtocolRecord) float64 {
	return rec.TVL * (1 + rec.Change7D/100)
}

// minMaxScale maps values onto [0,100] across the set. A degenerate set
// (all equal, including a single record) maps to the maximum.
func minMaxScale(values []float64) []float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(values))
	if hi == lo {
		for i := range out {
			out[i] = 100
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo) * 100
	}
	return out
}

func composite(s Subscores, w Weights) float64 {
	total := w.APY + w.Safety + w.TVL + w.Liquidity + w.RiskAdjusted + w.MarketCap
	if total == 0 {
		return 0
	}
	sum := s.APY*w.APY + s.Safety*w.Safety + s.TVL*w.TVL +
		s.Liquidity*w.Liquidity + s.RiskAdjusted*w.RiskAdjusted + s.MarketCap*w.MarketCap
	return sum / total
}
