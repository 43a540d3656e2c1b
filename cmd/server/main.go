package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/config"
	"rwa-yield-engine/internal/api"
	"rwa-yield-engine/internal/defillama"
	"rwa-yield-engine/internal/engine"
	"rwa-yield-engine/internal/ensemble"
	"rwa-yield-engine/internal/forecast"
	"rwa-yield-engine/internal/portfolio"
	"rwa-yield-engine/internal/resilience"
	"rwa-yield-engine/internal/storage"
	"rwa-yield-engine/models"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting RWA yield engine server")

	// 3. Wire the pipeline
	eng := buildEngine(cfg)

	// 4. Optional history store
	var store *storage.DB
	if cfg.DatabaseURL != "" {
		store, err = storage.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer store.Close()
		log.Info().Msg("History store connected")
	} else {
		log.Warn().Msg("DATABASE_URL not set, history persistence disabled")
	}

	// 5. HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(eng, store).Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	waitForShutdown(server)
}

// buildEngine constructs the full pipeline from configuration.
func buildEngine(cfg *config.Config) *engine.Engine {
	metricsClient := defillama.NewClient(defillama.ClientOptions{
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
	})

	fetcher := resilience.NewFetcher(
		metricsClient,
		resilience.NewCache(cfg.RedisURL),
		models.StaticFallbacks{},
		resilience.Options{CacheTTL: time.Duration(cfg.CacheTTLMinutes) * time.Minute},
	)

	predictor := ensemble.New(buildSources(cfg), ensemble.Options{
		SourceTimeout: time.Duration(cfg.SourceTimeout) * time.Second,
		Retry:         fetcher.Retry,
	})

	optimizer := portfolio.New(portfolio.WithRiskFreeRate(cfg.RiskFreeRate))

	return engine.New(fetcher, predictor, optimizer, nil)
}

// buildSources assembles the forecasting sources. The TVL momentum
// heuristic is always present so at least one source can answer.
func buildSources(cfg *config.Config) []models.ForecastSource {
	sources := []models.ForecastSource{forecast.NewMomentumSource()}
	if cfg.EnableOpenRouter && cfg.OpenRouterAPIKey != "" {
		sources = append(sources,
			forecast.NewOpenRouterSource("gpt-4", "openai/gpt-4-turbo", cfg.OpenRouterAPIKey),
			forecast.NewOpenRouterSource("gemini", "google/gemini-pro-1.5", cfg.OpenRouterAPIKey),
		)
	}
	if cfg.EnableClaude && cfg.AnthropicAPIKey != "" {
		sources = append(sources, forecast.NewClaudeSource(cfg.AnthropicAPIKey))
	}
	log.Info().Int("sources", len(sources)).Msg("Forecast sources configured")
	return sources
}

// waitForShutdown blocks until an interrupt and drains the server.
func waitForShutdown(server *http.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("Shutdown signal received, draining...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	// Set log level from config
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}
