package analytics

import (
	"math"
	"testing"

	"rwa-yield-engine/models"
)

func TestRiskAdjustedReturn(t *testing.T) {
	tests := []struct {
		name         string
		apy          float64
		riskScore    float64
		riskFreeRate float64
		want         float64
	}{
		{
			name: "typical protocol",
			apy:  9.5, riskScore: 0.4, riskFreeRate: 4.5,
			want: 12.5,
		},
		{
			name: "low risk divides by larger denominator than near-zero",
			apy:  8.7, riskScore: 0.3, riskFreeRate: 4.5,
			want: 14.0,
		},
		{
			name: "near-zero risk hits the floor",
			apy:  6.5, riskScore: 0.01, riskFreeRate: 4.5,
			want: 20.0,
		},
		{
			name: "below the risk-free rate stays negative",
			apy:  3.0, riskScore: 0.5, riskFreeRate: 4.5,
			want: -3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskAdjustedReturn(tt.apy, tt.riskScore, tt.riskFreeRate)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RiskAdjustedReturn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreRecordsEmpty(t *testing.T) {
	scored := ScoreRecords(nil, DefaultWeights)
	if len(scored) != 0 {
		t.Errorf("ScoreRecords(nil) returned %d records, want 0", len(scored))
	}
}

func TestScoreRecordsSingle(t *testing.T) {
	rec := models.ProtocolRecord{ProtocolID: "maple", CurrentAPY: 8.7, RiskScore: 0.3, TVL: 67000000, ActivePools: 15, LockPeriod: "3-6 months"}

	scored := ScoreRecords([]models.ProtocolRecord{rec}, DefaultWeights)
	if len(scored) != 1 {
		t.Fatalf("got %d scored records, want 1", len(scored))
	}
	// A set of one is degenerate on every dimension.
	s := scored[0]
	if s.Scores.APY != 100 || s.Scores.Safety != 100 || s.Scores.TVL != 100 {
		t.Errorf("single record subscores = %+v, want 100 on all dimensions", s.Scores)
	}
	if s.Composite != 100 {
		t.Errorf("Composite = %v, want 100", s.Composite)
	}
}

func TestScoreRecordsRelative(t *testing.T) {
	records := []models.ProtocolRecord{
		{ProtocolID: "goldfinch", CurrentAPY: 12.3, RiskScore: 0.6, TVL: 28000000, ActivePools: 8, LockPeriod: "6-12 months"},
		{ProtocolID: "maple", CurrentAPY: 8.7, RiskScore: 0.3, TVL: 67000000, ActivePools: 15, LockPeriod: "3-6 months"},
	}

	scored := ScoreRecords(records, DefaultWeights)
	if len(scored) != 2 {
		t.Fatalf("got %d scored records, want 2", len(scored))
	}

	goldfinch, maple := scored[0], scored[1]
	if goldfinch.Scores.APY != 100 || maple.Scores.APY != 0 {
		t.Errorf("APY scores = %v/%v, want 100/0", goldfinch.Scores.APY, maple.Scores.APY)
	}
	if maple.Scores.Safety != 100 || goldfinch.Scores.Safety != 0 {
		t.Errorf("Safety scores = %v/%v, want 0/100", goldfinch.Scores.Safety, maple.Scores.Safety)
	}
	if maple.Scores.TVL != 100 || goldfinch.Scores.TVL != 0 {
		t.Errorf("TVL scores = %v/%v, want 0/100", goldfinch.Scores.TVL, maple.Scores.TVL)
	}
	// (8.7-4.5)/0.3 = 14.0 beats (12.3-4.5)/0.6 = 13.0.
	if maple.RiskAdjustedReturn <= goldfinch.RiskAdjustedReturn {
		t.Errorf("expected maple RAR (%v) above goldfinch (%v)", maple.RiskAdjustedReturn, goldfinch.RiskAdjustedReturn)
	}
}

func TestCompositeZeroWeights(t *testing.T) {
	if got := composite(Subscores{APY: 100}, Weights{}); got != 0 {
		t.Errorf("composite with zero weights = %v, want 0", got)
	}
}

func TestLiquidityProxyOrdering(t *testing.T) {
	flexible := liquidityProxy(models.ProtocolRecord{LockPeriod: "flexible", ActivePools: 10})
	locked := liquidityProxy(models.ProtocolRecord{LockPeriod: "6-12 months", ActivePools: 10})
	if flexible <= locked {
		t.Errorf("flexible lock (%v) should score above a long lock (%v)", flexible, locked)
	}
}
