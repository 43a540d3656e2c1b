package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"rwa-yield-engine/models"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterSource is a forecasting source backed by one model routed
// through the OpenRouter chat-completions API.
type OpenRouterSource struct {
	id     string
	model  string
	client *openai.Client
	logger zerolog.Logger
}

// NewOpenRouterSource creates a source for one routed model, e.g.
// "openai/gpt-4-turbo" or "google/gemini-pro-1.5".
func NewOpenRouterSource(id, model, apiKey string) *OpenRouterSource {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	return &OpenRouterSource{
		id:     id,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		logger: log.With().Str("component", "forecast_source").Str("source", id).Logger(),
	}
}

// ID implements models.ForecastSource.
func (s *OpenRouterSource) ID() string { return s.id }

// Predict implements models.ForecastSource.
func (s *OpenRouterSource) Predict(ctx context.Context, record models.ProtocolRecord, timeframe string) (models.PredictionSourceResult, error) {
	prompt := BuildPrompt(record, timeframe)
	s.logger.Debug().Str("protocol", record.ProtocolID).Str("timeframe", timeframe).Msg("Requesting prediction")

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("OpenRouter API error")
		return failedResult(s.id, record.ProtocolID, timeframe), err
	}
	if len(resp.Choices) == 0 {
		return failedResult(s.id, record.ProtocolID, timeframe), fmt.Errorf("%s: empty choices", s.id)
	}

	apy, confidence, reasoning, riskFactors, err := ParsePrediction(resp.Choices[0].Message.Content)
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

func failedResult(sourceID, protocolID, timeframe string) models.PredictionSourceResult {
	return models.PredictionSourceResult{
		SourceID:   sourceID,
		ProtocolID: protocolID,
		Timeframe:  timeframe,
		Timestamp:  time.Now().UTC(),
		Failed:     true,
	}
}
