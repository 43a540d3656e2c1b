// Package normalize converts raw per-protocol source records into the
// canonical models.ProtocolRecord. It is a pure stage: no I/O, no side
// effects, and normalizing an already-canonical record is the identity.
package normalize

import (
	"math"
	"time"

	"rwa-yield-engine/models"
)

// Normalize converts one raw record, keyed by either source-native or
// canonical field names, into a canonical ProtocolRecord.
//
// Missing optional fields take documented defaults; a missing or
// non-numeric protocol id / APY yields a *models.ValidationError.
func Normalize(raw map[string]any) (models.ProtocolRecord, error) {
	var rec models.ProtocolRecord

	id, ok := stringField(raw, "protocol_id", "protocol")
	if !ok || id == "" {
		return rec, &models.ValidationError{Field: "protocol_id", Reason: "is missing"}
	}
	rec.ProtocolID = id

	apy, found, numeric := numberField(raw, "current_apy", "estimated_apy")
	if !found {
		return rec, &models.ValidationError{Field: "current_apy", Reason: "is missing"}
	}
	if !numeric {
		return rec, &models.ValidationError{Field: "current_apy", Reason: "is not numeric"}
	}
	rec.CurrentAPY = apy

	profile := models.Profile(id)

	rec.Change1D, _, _ = optNumber(raw, 0, "change_1d")
	rec.Change7D, _, _ = optNumber(raw, 0, "change_7d")

	if risk, found, numeric := numberField(raw, "risk_score"); found && numeric {
		rec.RiskScore = clamp01(risk)
	} else {
		rec.RiskScore = EstimateRiskScore(rec.Change7D)
	}

	tvl, _, _ := optNumber(raw, 0, "tvl")
	rec.TVL = math.Max(tvl, 0)

	if pools, found, numeric := numberField(raw, "active_pools"); found && numeric {
		rec.ActivePools = int(pools)
	} else if rec.TVL > 0 {
		rec.ActivePools = EstimateActivePools(rec.TVL)
	}

	rec.MinInvestment, _, _ = optNumber(raw, profile.MinInvestment, "min_investment")
	if s, ok := stringField(raw, "asset_type"); ok && s != "" {
		rec.AssetType = s
	} else {
		rec.AssetType = profile.AssetType
	}
	if s, ok := stringField(raw, "lock_period"); ok && s != "" {
		rec.LockPeriod = s
	} else {
		rec.LockPeriod = profile.LockPeriod
	}

	if ts, ok := timeField(raw, "timestamp"); ok {
		rec.Timestamp = ts
	} else {
		rec.Timestamp = time.Now().UTC()
	}
	if b, ok := raw["is_fallback"].(bool); ok {
		rec.IsFallback = b
	}

	return rec, nil
}

// EstimateRiskScore derives a risk score from 7-day TVL volatility: calm
// protocols score 0.3, moving ones 0.5, churning ones 0.7.
func EstimateRiskScore(change7d float64) float64 {
	abs := math.Abs(change7d)
	switch {
	case abs < 5:
		return 0.3
	case abs < 15:
		return 0.5
	default:
		return 0.7
	}
}

// EstimateActivePools approximates pool count from TVL when the source
// does not report one.
func EstimateActivePools(tvl float64) int {
	switch {
	case tvl > 50000000:
		return 15
	case tvl > 25000000:
		return 10
	case tvl > 10000000:
		return 6
	default:
		return 3
	}
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

func stringField(raw map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
			return "", false
		}
	}
	return "", false
}

// numberField reports (value, key present, value numeric). JSON decoding
// yields float64; ints appear when records round-trip through Raw().
func numberField(raw map[string]any, keys ...string) (float64, bool, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true, true
		case float32:
			return float64(n), true, true
		case int:
			return float64(n), true, true
		case int64:
			return float64(n), true, true
		default:
			return 0, true, false
		}
	}
	return 0, false, false
}

func optNumber(raw map[string]any, def float64, keys ...string) (float64, bool, bool) {
	if v, found, numeric := numberField(raw, keys...); found && numeric {
		return v, found, numeric
	}
	return def, false, false
}

func timeField(raw map[string]any, key string) (time.Time, bool) {
	switch v := raw[key].(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
