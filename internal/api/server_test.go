package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwa-yield-engine/internal/engine"
	"rwa-yield-engine/internal/ensemble"
	"rwa-yield-engine/internal/portfolio"
	"rwa-yield-engine/internal/resilience"
	"rwa-yield-engine/models"
)

type deadMetrics struct{}

func (deadMetrics) FetchProtocolMetrics(context.Context, string) (map[string]any, error) {
	return nil, errors.New("upstream down")
}

type fixedSource struct{}

func (fixedSource) ID() string { return "fixed" }

func (fixedSource) Predict(_ context.Context, record models.ProtocolRecord, timeframe string) (models.PredictionSourceResult, error) {
	return models.PredictionSourceResult{
		SourceID:     "fixed",
		ProtocolID:   record.ProtocolID,
		Timeframe:    timeframe,
		PredictedAPY: 9.8,
		Confidence:   0.7,
	}, nil
}

// newTestServer runs on static fallback data so no network is touched.
func newTestServer(sources []models.ForecastSource) *Server {
	fetcher := resilience.NewFetcher(deadMetrics{}, resilience.NewMemoryCache(), models.StaticFallbacks{}, resilience.Options{InitialInterval: 1})
	predictor := ensemble.New(sources, ensemble.Options{})
	eng := engine.New(fetcher, predictor, portfolio.New(), nil)
	return NewServer(eng, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListProtocols(t *testing.T) {
	rec := doRequest(t, newTestServer(nil), http.MethodGet, "/api/v1/protocols", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(models.SupportedProtocols), body.Count)
}

func TestGetProtocolNotFound(t *testing.T) {
	rec := doRequest(t, newTestServer(nil), http.MethodGet, "/api/v1/protocols/acme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtocolHistoryWithoutStore(t *testing.T) {
	rec := doRequest(t, newTestServer(nil), http.MethodGet, "/api/v1/protocols/maple/history", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestForecastValidation(t *testing.T) {
	s := newTestServer([]models.ForecastSource{fixedSource{}})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/yields/forecast", map[string]any{"timeframe": "90d"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "protocol is required")
}

func TestForecastSuccess(t *testing.T) {
	s := newTestServer([]models.ForecastSource{fixedSource{}})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/yields/forecast", map[string]any{"protocol": "centrifuge"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Prediction models.EnsemblePrediction `json:"prediction"`
		Stale      bool                      `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Stale)
	assert.Equal(t, "centrifuge", body.Prediction.ProtocolID)
	assert.Equal(t, "90d", body.Prediction.Timeframe, "timeframe should default to 90d")
	assert.InDelta(t, 9.8, body.Prediction.PredictedAPY, 1e-9)
}

func TestForecastUnavailableWithoutSources(t *testing.T) {
	s := newTestServer(nil)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/yields/forecast", map[string]any{"protocol": "centrifuge"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestForecastAcceptStaleServesLastKnownGood(t *testing.T) {
	fetcher := resilience.NewFetcher(deadMetrics{}, resilience.NewMemoryCache(), models.StaticFallbacks{}, resilience.Options{InitialInterval: 1})
	eng := engine.New(fetcher, ensemble.New(nil, ensemble.Options{}), portfolio.New(), nil)
	s := NewServer(eng, nil)

	fetcher.StorePrediction(context.Background(), models.EnsemblePrediction{
		ProtocolID:   "centrifuge",
		Timeframe:    "90d",
		PredictedAPY: 9.1,
		Confidence:   0.6,
	})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/yields/forecast",
		map[string]any{"protocol": "centrifuge", "accept_stale": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Prediction models.EnsemblePrediction `json:"prediction"`
		Stale      bool                      `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Stale)
	assert.InDelta(t, 9.1, body.Prediction.PredictedAPY, 1e-9)
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/portfolio/optimize",
		map[string]any{"total_investment": 1000, "risk_tolerance": "aggressive"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/portfolio/optimize",
		map[string]any{"total_investment": -50, "risk_tolerance": "low"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeSuccess(t *testing.T) {
	s := newTestServer(nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/portfolio/optimize",
		map[string]any{"total_investment": 10000, "risk_tolerance": "medium"})
	require.Equal(t, http.StatusOK, rec.Code)

	var plan models.AllocationPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	require.NotEmpty(t, plan.Entries)
	assert.LessOrEqual(t, len(plan.Entries), 3)

	var sum float64
	for _, e := range plan.Entries {
		assert.LessOrEqual(t, e.Percentage, 50.0+1e-6)
		sum += e.Percentage
	}
	assert.InDelta(t, 100.0, sum, 1e-6)
}

func TestCompareFiltersRequestedProtocols(t *testing.T) {
	s := newTestServer(nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/yields/compare",
		map[string]any{"protocols": []string{"maple", "goldfinch"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ranking []struct {
			Record models.ProtocolRecord `json:"record"`
		} `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Ranking, 2)
	// RAR: maple 14.0 beats goldfinch 13.0.
	assert.Equal(t, "maple", body.Ranking[0].Record.ProtocolID)
}

func TestAggregateStats(t *testing.T) {
	rec := doRequest(t, newTestServer(nil), http.MethodGet, "/api/v1/stats/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ProtocolCount int     `json:"protocol_count"`
		FallbackCount int     `json:"fallback_count"`
		TotalTVL      float64 `json:"total_tvl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(models.SupportedProtocols), body.ProtocolCount)
	// Upstream is dead in this fixture, so everything is fallback data.
	assert.Equal(t, body.ProtocolCount, body.FallbackCount)
	assert.Greater(t, body.TotalTVL, 0.0)
}
