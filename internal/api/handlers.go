package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rwa-yield-engine/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.RefreshProtocols(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persistRecords(records)
	writeJSON(w, http.StatusOK, map[string]any{
		"protocols": s.engine.ScoredProtocols(records),
		"count":     len(records),
	})
}

func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	protocolID := chi.URLParam(r, "protocolID")
	records, err := s.engine.RefreshProtocols(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Score against the full tracked set so the relative dimensions mean
	// something, then pick the requested protocol out.
	for _, scored := range s.engine.ScoredProtocols(records) {
		if scored.Record.ProtocolID == protocolID {
			writeJSON(w, http.StatusOK, scored)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown protocol: " + protocolID})
}

// handleProtocolHistory serves persisted snapshots; it needs the optional
// history store.
func (s *Server) handleProtocolHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "history persistence is not configured"})
		return
	}
	protocolID := chi.URLParam(r, "protocolID")

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "days must be a positive integer"})
			return
		}
		days = n
	}

	history, err := s.store.ProtocolHistory(protocolID, days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"protocol": protocolID,
		"days":     days,
		"history":  history,
		"count":    len(history),
	})
}

type compareRequest struct {
	Protocols []string `json:"protocols"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	records, err := s.engine.RefreshProtocols(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Protocols) > 0 {
		requested := make(map[string]bool, len(req.Protocols))
		for _, id := range req.Protocols {
			requested[id] = true
		}
		filtered := records[:0]
		for _, rec := range records {
			if requested[rec.ProtocolID] {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ranking": s.engine.CompareProtocols(records),
	})
}

type forecastRequest struct {
	Protocol    string `json:"protocol"`
	Timeframe   string `json:"timeframe"`
	AcceptStale bool   `json:"accept_stale"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Protocol == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "protocol is required"})
		return
	}
	if req.Timeframe == "" {
		req.Timeframe = "90d"
	}

	pred, err := s.engine.EnsemblePrediction(r.Context(), req.Protocol, req.Timeframe)
	if err != nil {
		// Degraded output only on explicit opt-in, and clearly marked.
		if errors.Is(err, models.ErrEnsembleUnavailable) && req.AcceptStale {
			if stale, ok := s.engine.LastGoodPrediction(r.Context(), req.Protocol, req.Timeframe); ok {
				writeJSON(w, http.StatusOK, map[string]any{
					"prediction": stale,
					"stale":      true,
				})
				return
			}
		}
		s.writeError(w, err)
		return
	}

	if s.store != nil {
		if err := s.store.SavePrediction(pred); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist prediction")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": pred,
		"stale":      false,
	})
}

type optimizeRequest struct {
	TotalInvestment float64 `json:"total_investment"`
	RiskTolerance   string  `json:"risk_tolerance"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.RiskTolerance == "" {
		req.RiskTolerance = string(models.RiskToleranceMedium)
	}
	tolerance, ok := models.ParseRiskTolerance(req.RiskTolerance)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "risk_tolerance must be one of low, medium, high"})
		return
	}

	records, err := s.engine.RefreshProtocols(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	plan, err := s.engine.OptimizePortfolio(records, req.TotalInvestment, tolerance)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.store != nil {
		if err := s.store.SaveAllocationPlan(plan); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist allocation plan")
		}
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleAggregateStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.RefreshProtocols(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	var totalTVL, totalAPY float64
	fallbackCount := 0
	for _, rec := range records {
		totalTVL += rec.TVL
		totalAPY += rec.CurrentAPY
		if rec.IsFallback {
			fallbackCount++
		}
	}
	avgAPY := 0.0
	if len(records) > 0 {
		avgAPY = totalAPY / float64(len(records))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"protocol_count": len(records),
		"total_tvl":      totalTVL,
		"average_apy":    avgAPY,
		"fallback_count": fallbackCount,
		"generated_at":   time.Now().UTC(),
	})
}

func (s *Server) persistRecords(records []models.ProtocolRecord) {
	if s.store == nil {
		return
	}
	for _, rec := range records {
		if err := s.store.SaveProtocolRecord(rec); err != nil {
			s.logger.Warn().Err(err).Str("protocol", rec.ProtocolID).Msg("Failed to persist record")
		}
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var inputErr *models.InvalidInputError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownProtocol):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientCandidates):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEnsembleUnavailable), errors.Is(err, models.ErrNoFallback):
		status = http.StatusServiceUnavailable
	}

	s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
