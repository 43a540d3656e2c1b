package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/config"
	"rwa-yield-engine/internal/analytics"
	"rwa-yield-engine/internal/defillama"
	"rwa-yield-engine/internal/engine"
	"rwa-yield-engine/internal/ensemble"
	"rwa-yield-engine/internal/forecast"
	"rwa-yield-engine/internal/portfolio"
	"rwa-yield-engine/internal/resilience"
	"rwa-yield-engine/models"
)

func main() {
	investment := flag.Float64("investment", 10000, "investment amount in USD")
	tolerance := flag.String("risk", "medium", "risk tolerance: low, medium, high")
	forecastProtocol := flag.String("forecast", "", "protocol to run an ensemble forecast for")
	timeframe := flag.String("timeframe", "", "forecast timeframe (defaults to DEFAULT_TIMEFRAME)")
	flag.Parse()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting RWA yield analyzer")

	// 3. Wire the pipeline
	eng := buildEngine(cfg)

	// 4. Refresh and score all tracked protocols
	records, err := eng.RefreshProtocols(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh failed")
	}
	if len(records) == 0 {
		log.Fatal().Msg("No protocol data available")
	}
	printComparison(eng.CompareProtocols(records))

	// 5. Ensemble forecast for one protocol if requested
	if *forecastProtocol != "" {
		tf := *timeframe
		if tf == "" {
			tf = cfg.DefaultTimeframe
		}
		runForecast(ctx, eng, *forecastProtocol, tf)
	}

	// 6. Optimize the hypothetical portfolio
	runOptimization(eng, records, *investment, *tolerance)
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

	predictor := ensemble.New(sources, ensemble.Options{
		SourceTimeout: time.Duration(cfg.SourceTimeout) * time.Second,
		Retry:         fetcher.Retry,
	})

	optimizer := portfolio.New(portfolio.WithRiskFreeRate(cfg.RiskFreeRate))

	return engine.New(fetcher, predictor, optimizer, nil)
}

func printComparison(scored []analytics.ScoredRecord) {
	fmt.Println("RWA Protocol Comparison")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("Ranked by risk-adjusted return:")
	for i, s := range scored {
		rec := s.Record
		tag := ""
		if rec.IsFallback {
			tag = " [FALLBACK DATA]"
		}
		fmt.Printf("%d. %s%s\n", i+1, strings.ToUpper(rec.ProtocolID), tag)
		fmt.Printf("   APY: %.1f%% | Risk-Adj: %.1f | Composite: %.0f/100\n",
			rec.CurrentAPY, s.RiskAdjustedReturn, s.Composite)
		fmt.Printf("   TVL: $%.0f | Risk: %.1f | Asset: %s\n", rec.TVL, rec.RiskScore, rec.AssetType)
	}
	fmt.Println()
}

func runForecast(ctx context.Context, eng *engine.Engine, protocolID, timeframe string) {
	fmt.Printf("Ensemble Forecast: %s (%s)\n", strings.ToUpper(protocolID), timeframe)
	fmt.Println(strings.Repeat("=", 50))

	pred, err := eng.EnsemblePrediction(ctx, protocolID, timeframe)
	if err != nil {
		if errors.Is(err, models.ErrEnsembleUnavailable) {
			if stale, ok := eng.LastGoodPrediction(ctx, protocolID, timeframe); ok {
				fmt.Println("All forecast sources failed; showing last known good prediction (STALE):")
				printPrediction(stale)
				return
			}
		}
		log.Error().Err(err).Msg("Forecast failed")
		return
	}
	printPrediction(pred)
}

func printPrediction(pred models.EnsemblePrediction) {
	fmt.Printf("  Predicted APY: %.1f%%\n", pred.PredictedAPY)
	fmt.Printf("  Confidence: %.2f\n", pred.Confidence)
	fmt.Printf("  Consensus Spread: %.2f\n", pred.ConsensusSpread)
	fmt.Printf("  Sources: %s\n", strings.Join(pred.ContributingSources, ", "))
	for _, rf := range pred.RiskFactors {
		fmt.Printf("  Risk: %s\n", rf)
	}
	fmt.Println()
}

func runOptimization(eng *engine.Engine, records []models.ProtocolRecord, investment float64, tolerance string) {
	parsed, ok := models.ParseRiskTolerance(tolerance)
	if !ok {
		log.Fatal().Str("risk", tolerance).Msg("Risk tolerance must be one of low, medium, high")
	}

	plan, err := eng.OptimizePortfolio(records, investment, parsed)
	if err != nil {
		log.Fatal().Err(err).Msg("Optimization failed")
	}

	fmt.Println("RWA Portfolio Optimization")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Investment: $%.0f | Risk Tolerance: %s\n\n", plan.TotalInvestment, plan.RiskTolerance)
	for _, e := range plan.Entries {
		fmt.Printf("- %s: $%.0f (%.1f%%) at %.1f%% APY\n",
			strings.ToUpper(e.ProtocolID), e.Amount, e.Percentage, e.ExpectedAPY)
	}
	fmt.Printf("\nExpected Weighted APY: %.1f%%\n", plan.ExpectedWeightedAPY)
	fmt.Printf("Expected Annual Return: $%.0f\n", plan.ExpectedAnnualReturn)
	fmt.Printf("Portfolio Risk Score: %.2f/1.0\n", plan.PortfolioRiskScore)
	fmt.Printf("Sharpe Ratio: %.2f\n", plan.SharpeRatio)
	fmt.Printf("Diversification Score: %.2f\n", plan.DiversificationScore)
}

// setupSignalHandling configures signal handling for graceful shutdown
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, exiting...")
		cancel()
		os.Exit(0)
	}()
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
