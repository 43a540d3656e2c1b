package forecast

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rwa-yield-engine/models"
)

// BuildPrompt renders the shared forecasting prompt for one protocol and
// timeframe. All LLM sources use it so their answers stay comparable.
func BuildPrompt(record models.ProtocolRecord, timeframe string) string {
	var sb strings.Builder
	sb.WriteString("You are a DeFi yield analysis expert. Based on the following RWA protocol data, predict the future yield.\n\n")
	sb.WriteString(fmt.Sprintf("Protocol: %s\n", record.ProtocolID))
	sb.WriteString(fmt.Sprintf("Asset Type: %s\n", record.AssetType))
	sb.WriteString(fmt.Sprintf("Current TVL: $%.0f\n", record.TVL))
	sb.WriteString(fmt.Sprintf("7-day TVL Change: %.1f%%\n", record.Change7D))
	sb.WriteString(fmt.Sprintf("Current APY: %.1f%%\n", record.CurrentAPY))
	sb.WriteString(fmt.Sprintf("Risk Score: %.2f/1.0\n\n", record.RiskScore))
	sb.WriteString(fmt.Sprintf("Predict the APY for the next %s and provide:\n", timeframe))
	sb.WriteString("1. Predicted APY (single number)\n")
	sb.WriteString("2. Confidence level (1-10)\n")
	sb.WriteString("3. Key factors influencing your prediction\n\n")
	sb.WriteString("Format your response as JSON:\n")
	sb.WriteString(`{"predicted_apy": 9.5, "confidence": 7, "reasoning": "Brief explanation", "risk_factors": ["factor1", "factor2"]}`)
	return sb.String()
}

var (
	jsonBlockRe  = regexp.MustCompile(`\{[^{}]*\}`)
	apyTextRe    = regexp.MustCompile(`(?i)(\d+\.?\d*)%?\s*APY`)
	confidenceRe = regexp.MustCompile(`(?i)confidence[:\s]*(\d+)`)
)

type rawPrediction struct {
	PredictedAPY float64  `json:"predicted_apy"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	RiskFactors  []string `json:"risk_factors"`
}

// ParsePrediction extracts a prediction from an LLM response: first the
// embedded JSON block, then a plain-text scan. Confidence arrives on the
// prompt's 1-10 scale and is mapped to [0,1].
func ParsePrediction(content string) (apy, confidence float64, reasoning string, riskFactors []string, err error) {
	if block := jsonBlockRe.FindString(content); block != "" {
		var p rawPrediction
		if jsonErr := json.Unmarshal([]byte(block), &p); jsonErr == nil && p.PredictedAPY != 0 {
			return p.PredictedAPY, scaleConfidence(p.Confidence), p.Reasoning, p.RiskFactors, nil
		}
	}

	apyMatch := apyTextRe.FindStringSubmatch(content)
	if apyMatch == nil {
		return 0, 0, "", nil, fmt.Errorf("no prediction found in response")
	}
	apy, err = strconv.ParseFloat(apyMatch[1], 64)
	if err != nil {
		return 0, 0, "", nil, fmt.Errorf("parsing predicted APY: %w", err)
	}

	confidence = 0.6
	if m := confidenceRe.FindStringSubmatch(content); m != nil {
		if c, convErr := strconv.ParseFloat(m[1], 64); convErr == nil {
			confidence = scaleConfidence(c)
		}
	}
	return apy, confidence, "parsed from unstructured response", []string{"Market conditions", "Protocol fundamentals"}, nil
}

// scaleConfidence maps the prompt's 1-10 scale onto [0,1]. Sources that
// already answer in [0,1] pass through unchanged.
func scaleConfidence(c float64) float64 {
	if c > 1 {
		c = c / 10
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
