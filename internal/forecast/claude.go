package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/models"
)

// ClaudeSource is a forecasting source backed by the Anthropic API.
type ClaudeSource struct {
	id     string
	model  anthropic.Model
	client anthropic.Client
	logger zerolog.Logger
}

// NewClaudeSource creates the Claude-backed source.
func NewClaudeSource(apiKey string) *ClaudeSource {
	return &ClaudeSource{
		id:     "claude",
		model:  anthropic.ModelClaude3_5SonnetLatest,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: log.With().Str("component", "forecast_source").Str("source", "claude").Logger(),
	}
}

// ID implements models.ForecastSource.
func (s *ClaudeSource) ID() string { return s.id }

// Predict implements models.ForecastSource.
func (s *ClaudeSource) Predict(ctx context.Context, record models.ProtocolRecord, timeframe string) (models.PredictionSourceResult, error) {
	prompt := BuildPrompt(record, timeframe)
	s.logger.Debug().Str("protocol", record.ProtocolID).Str("timeframe", timeframe).Msg("Requesting prediction")

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 500,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Anthropic API error")
		return failedResult(s.id, record.ProtocolID, timeframe), err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return failedResult(s.id, record.ProtocolID, timeframe), fmt.Errorf("%s: empty response", s.id)
	}

	apy, confidence, reasoning, riskFactors, err := ParsePrediction(content)
	if err != nil {
		return failedResult(s.id, record.ProtocolID, timeframe), fmt.Errorf("%s: %w", s.id, err)
	}

	return models.PredictionSourceResult{
		SourceID:     s.id,
		ProtocolID:   record.ProtocolID,
		Timeframe:    timeframe,
		PredictedAPY: apy,
		Confidence:   confidence,
		Reasoning:    reasoning,
		RiskFactors:  riskFactors,
		Timestamp:    time.Now().UTC(),
	}, nil
}
