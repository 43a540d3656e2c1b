package defillama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rwa-yield-engine/internal/platform/httpx"
	"rwa-yield-engine/models"
)

const defaultBaseURL = "https://api.llama.fi"

// slugs maps protocol ids to DeFiLlama protocol slugs.
var slugs = map[string]string{
	"centrifuge": "centrifuge",
	"goldfinch":  "goldfinch",
	"maple":      "maple-finance",
	"credix":     "credix",
	"truefi":     "truefi",
}

// Client fetches per-protocol TVL metrics from the DeFiLlama API.
type Client struct {
	http    *httpx.Client
	baseURL string
	logger  zerolog.Logger
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// NewClient creates a new DeFiLlama client with rate limiting
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return &Client{
		http: httpx.NewClient(httpx.ClientOptions{
			Timeout:        opts.RequestTimeout,
			RequestsPerSec: opts.RequestsPerSec,
		}),
		baseURL: opts.BaseURL,
		logger:  log.With().Str("component", "defillama_client").Logger(),
	}
}

type protocolResponse struct {
	TVL      float64 `json:"tvl"`
	Change1D float64 `json:"change_1d"`
	Change7D float64 `json:"change_7d"`
	MCap     float64 `json:"mcap"`
}

// FetchProtocolMetrics returns the raw record for one protocol in the
// source's native field names. Implements models.MetricsSource.
func (c *Client) FetchProtocolMetrics(ctx context.Context, protocolID string) (map[string]any, error) {
	slug, ok := slugs[protocolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownProtocol, protocolID)
	}

	url := fmt.Sprintf("%s/protocol/%s", c.baseURL, slug)
	c.logger.Debug().Str("url", url).Msg("Fetching protocol metrics")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s metrics: %w", protocolID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var data protocolResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	c.logger.Debug().
		Str("protocol", protocolID).
		Float64("tvl", data.TVL).
		Float64("change_7d", data.Change7D).
		Msg("Fetched protocol metrics")

	return map[string]any{
		"protocol":      protocolID,
		"tvl":           data.TVL,
		"change_1d":     data.Change1D,
		"change_7d":     data.Change7D,
		"mcap":          data.MCap,
		"estimated_apy": EstimateAPY(data.Change7D),
	}, nil
}

// EstimateAPY projects a current APY from 7-day TVL momentum: an 8% base
// shifted by a tenth of the change, clamped to [5,15].
func EstimateAPY(change7d float64) float64 {
	apy := 8.0 + change7d*0.1
	if apy < 5.0 {
		apy = 5.0
	}
	if apy > 15.0 {
		apy = 15.0
	}
	return apy
}
