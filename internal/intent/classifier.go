// Package intent provides the utterance intent classifier used to route
// named intents (Help, Cancel, Ticket) before the knowledge-base path.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Result is a classified utterance: the top-scoring intent name and its
// confidence in [0,1].
type Result struct {
	Intent     string
	Confidence float64
}

// Classifier maps an utterance to its top intent. Implementations
// return an error for unreachable or malformed service responses;
// callers fall back to the default knowledge-base path on error.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (Result, error)
}

// HTTPClientConfig holds configuration for the HTTP classifier client.
type HTTPClientConfig struct {
	Endpoint        string
	AppID           string
	SubscriptionKey string
	RequestTimeout  time.Duration
}

// HTTPClient implements Classifier against a LUIS-style REST endpoint.
type HTTPClient struct {
	cfg    HTTPClientConfig
	http   *http.Client
	logger *slog.Logger
}

var _ Classifier = (*HTTPClient)(nil)

// NewHTTPClient creates an intent classifier client.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("intent classifier endpoint is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}, nil
}

type classifyResponse struct {
	TopScoringIntent struct {
		Intent string  `json:"intent"`
		Score  float64 `json:"score"`
	} `json:"topScoringIntent"`
}

// Classify returns the top-scoring intent for an utterance.
func (c *HTTPClient) Classify(ctx context.Context, utterance string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("subscription-key", c.cfg.SubscriptionKey)
	q.Set("q", utterance)
	reqURL := fmt.Sprintf("%s/luis/v2.0/apps/%s?%s", c.cfg.Endpoint, c.cfg.AppID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify utterance: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close classifier response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}

	return Result{
		Intent:     parsed.TopScoringIntent.Intent,
		Confidence: parsed.TopScoringIntent.Score,
	}, nil
}
