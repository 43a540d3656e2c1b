package ensemble

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"rwa-yield-engine/models"
)

// spreadPenaltyScale divides the consensus spread in the confidence
// penalty: a 5-point APY disagreement halves the reported confidence.
const spreadPenaltyScale = 5.0

// lowQuorumCap caps confidence when the quorum is degraded: any source
// failed, or fewer than 2 answered.
const lowQuorumCap = 0.5

// Combine folds settled source results into one prediction using
// confidence-proportional weights over the succeeded sources. The
// combination is deterministic: identical result sets yield bit-identical
// output values. If nothing succeeded it returns
// models.ErrEnsembleUnavailable.
func Combine(results []models.PredictionSourceResult) (models.EnsemblePrediction, error) {
	var succeeded []models.PredictionSourceResult
	for _, r := range results {
		if !r.Failed {
			succeeded = append(succeeded, r)
		}
	}
	if len(succeeded) == 0 {
		return models.EnsemblePrediction{}, models.ErrEnsembleUnavailable
	}

	var confidenceSum float64
	for _, r := range succeeded {
		confidenceSum += r.Confidence
	}

	apys := make([]float64, len(succeeded))
	sourceIDs := make([]string, len(succeeded))
	var weightedAPY, weightedConfidence float64
	for i, r := range succeeded {
		apys[i] = r.PredictedAPY
		sourceIDs[i] = r.SourceID
		weight := 1.0 / float64(len(succeeded))
		if confidenceSum > 0 {
			weight = r.Confidence / confidenceSum
		}
		weightedAPY += weight * r.PredictedAPY
		weightedConfidence += weight * r.Confidence
	}

	spread := 0.0
	if len(apys) > 1 {
		spread = stat.StdDev(apys, nil)
	}

	// Disagreement between sources monotonically lowers the confidence we
	// are willing to report.
	confidence := weightedConfidence / (1 + spread/spreadPenaltyScale)
	if (len(succeeded) < len(results) || len(succeeded) < 2) && confidence > lowQuorumCap {
		confidence = lowQuorumCap
	}
	confidence = clamp01(confidence)

	first := succeeded[0]
	return models.EnsemblePrediction{
		ProtocolID:          first.ProtocolID,
		Timeframe:           first.Timeframe,
		PredictedAPY:        weightedAPY,
		Confidence:          confidence,
		ConsensusSpread:     spread,
		ContributingSources: sourceIDs,
		RiskFactors:         mergeRiskFactors(succeeded),
		GeneratedAt:         time.Now().UTC(),
	}, nil
}

// mergeRiskFactors deduplicates factors across sources, preserving first
// occurrence order, and keeps the top 5.
func mergeRiskFactors(results []models.PredictionSourceResult) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, r := range results {
		for _, f := range r.RiskFactors {
			if !seen[f] {
				seen[f] = true
				merged = append(merged, f)
			}
		}
	}
	if len(merged) > 5 {
		merged = merged[:5]
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
