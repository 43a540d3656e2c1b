// Package api exposes the engine's operations over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/internal/engine"
	"rwa-yield-engine/internal/storage"
)

// Server holds the HTTP handlers' collaborators. store is optional; when
// nil, history persistence is simply skipped.
type Server struct {
	engine *engine.Engine
	store  *storage.DB
	logger zerolog.Logger
}

// NewServer creates the handler set.
func NewServer(eng *engine.Engine, store *storage.DB) *Server {
	return &Server{
		engine: eng,
		store:  store,
		logger: log.With().Str("component", "api").Logger(),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/protocols", s.handleListProtocols)
		r.Get("/protocols/{protocolID}", s.handleGetProtocol)
		r.Get("/protocols/{protocolID}/history", s.handleProtocolHistory)
		r.Post("/yields/compare", s.handleCompare)
		r.Post("/yields/forecast", s.handleForecast)
		r.Post("/portfolio/optimize", s.handleOptimize)
		r.Get("/stats/aggregate", s.handleAggregateStats)
	})
	return r
}
