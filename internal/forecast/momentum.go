package forecast

import (
	"context"
	"fmt"
	"time"

	"rwa-yield-engine/models"
)

// MomentumSource projects APY from 7-day TVL momentum. It is local and
// deterministic, so the ensemble always has at least one live source even
// when every remote backend is down or unconfigured.
type MomentumSource struct{}

// NewMomentumSource creates the heuristic source.
func NewMomentumSource() *MomentumSource { return &MomentumSource{} }

// ID implements models.ForecastSource.
func (s *MomentumSource) ID() string { return "tvl-momentum" }

// Predict implements models.ForecastSource. The projection drifts the
// current APY a tenth of the weekly TVL change and clamps the result to
// the [5,15] band RWA lending yields occupy.
func (s *MomentumSource) Predict(_ context.Context, record models.ProtocolRecord, timeframe string) (models.PredictionSourceResult, error) {
	apy := record.CurrentAPY + record.Change7D*0.1
	if apy < 5.0 {
		apy = 5.0
	}
	if apy > 15.0 {
		apy = 15.0
	}

	riskFactors := []string{"TVL momentum reversal"}
	if record.Change7D < 0 {
		riskFactors = append(riskFactors, "Declining TVL")
	}

	return models.PredictionSourceResult{
		SourceID:     s.ID(),
		ProtocolID:   record.ProtocolID,
		Timeframe:    timeframe,
		PredictedAPY: apy,
		Confidence:   0.5,
		Reasoning: fmt.Sprintf("Projected from %.1f%% weekly TVL change against a %.1f%% current APY",
			record.Change7D, record.CurrentAPY),
		RiskFactors: riskFactors,
		Timestamp:   time.Now().UTC(),
	}, nil
}
