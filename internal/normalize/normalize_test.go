package normalize

import (
	"errors"
	"testing"
	"time"

	"rwa-yield-engine/models"
)

func TestNormalizeValidation(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		field string
	}{
		{
			name:  "missing protocol id",
			raw:   map[string]any{"current_apy": 9.5},
			field: "protocol_id",
		},
		{
			name:  "empty protocol id",
			raw:   map[string]any{"protocol_id": "", "current_apy": 9.5},
			field: "protocol_id",
		},
		{
			name:  "missing apy",
			raw:   map[string]any{"protocol": "centrifuge"},
			field: "current_apy",
		},
		{
			name:  "non-numeric apy",
			raw:   map[string]any{"protocol": "centrifuge", "current_apy": "9.5"},
			field: "current_apy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			var vErr *models.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Normalize() error = %v, want *models.ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestNormalizeSourceNativeKeys(t *testing.T) {
	raw := map[string]any{
		"protocol":      "maple",
		"estimated_apy": 8.7,
		"tvl":           67000000.0,
		"change_7d":     2.1,
	}

	rec, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.ProtocolID != "maple" {
		t.Errorf("ProtocolID = %q, want %q", rec.ProtocolID, "maple")
	}
	if rec.CurrentAPY != 8.7 {
		t.Errorf("CurrentAPY = %v, want 8.7", rec.CurrentAPY)
	}
	// Calm 7-day change lands in the lowest risk bucket.
	if rec.RiskScore != 0.3 {
		t.Errorf("RiskScore = %v, want 0.3", rec.RiskScore)
	}
	// Registry profile fills what the source omitted.
	if rec.AssetType != "Institutional Loans" {
		t.Errorf("AssetType = %q, want registry value", rec.AssetType)
	}
	if rec.MinInvestment != 10000 {
		t.Errorf("MinInvestment = %v, want 10000", rec.MinInvestment)
	}
	if rec.ActivePools != 15 {
		t.Errorf("ActivePools = %v, want 15 for TVL above 50M", rec.ActivePools)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp should default to now")
	}
}

func TestNormalizeClampsRiskScore(t *testing.T) {
	raw := map[string]any{
		"protocol_id": "centrifuge",
		"current_apy": 9.5,
		"risk_score":  1.7,
	}
	rec, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.RiskScore != 1.0 {
		t.Errorf("RiskScore = %v, want clamped to 1.0", rec.RiskScore)
	}

	raw["risk_score"] = -0.2
	rec, err = Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.RiskScore != 0.0 {
		t.Errorf("RiskScore = %v, want clamped to 0.0", rec.RiskScore)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	rec := models.ProtocolRecord{
		ProtocolID:    "goldfinch",
		CurrentAPY:    12.3,
		RiskScore:     0.6,
		AssetType:     "Private Credit",
		TVL:           28000000,
		ActivePools:   8,
		MinInvestment: 5000,
		LockPeriod:    "6-12 months",
		Change1D:      -0.4,
		Change7D:      -3.2,
		Timestamp:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		IsFallback:    true,
	}

	again, err := Normalize(rec.Raw())
	if err != nil {
		t.Fatalf("Normalize(rec.Raw()) error = %v", err)
	}
	if again != rec {
		t.Errorf("normalizing a canonical record changed it:\ngot  %+v\nwant %+v", again, rec)
	}
}

func TestEstimateRiskScore(t *testing.T) {
	tests := []struct {
		change7d float64
		want     float64
	}{
		{0, 0.3},
		{4.9, 0.3},
		{-4.9, 0.3},
		{5, 0.5},
		{-12, 0.5},
		{15, 0.7},
		{-40, 0.7},
	}
	for _, tt := range tests {
		if got := EstimateRiskScore(tt.change7d); got != tt.want {
			t.Errorf("EstimateRiskScore(%v) = %v, want %v", tt.change7d, got, tt.want)
		}
	}
}

func TestEstimateActivePools(t *testing.T) {
	tests := []struct {
		tvl  float64
		want int
	}{
		{60000000, 15},
		{30000000, 10},
		{12000000, 6},
		{1000000, 3},
	}
	for _, tt := range tests {
		if got := EstimateActivePools(tt.tvl); got != tt.want {
			t.Errorf("EstimateActivePools(%v) = %v, want %v", tt.tvl, got, tt.want)
		}
	}
}
