// Package kb talks to the question-answering knowledge base and bands
// its ranked answers into dialog decisions.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/helpibot/helpi/internal/domain"
)

// Client queries the knowledge base for ranked candidate answers.
// Implementations must return answers ordered descending by score and
// an error for unreachable or malformed service responses.
type Client interface {
	Query(ctx context.Context, question string) ([]domain.ScoredAnswer, error)
}

// HTTPClientConfig holds configuration for the HTTP knowledge-base client.
type HTTPClientConfig struct {
	Endpoint        string
	KnowledgeBaseID string
	AuthKey         string
	Top             int
	RequestTimeout  time.Duration
}

// DefaultHTTPClientConfig returns default client configuration.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Top:            3,
		RequestTimeout: 5 * time.Second,
	}
}

// HTTPClient implements Client against a QnAMaker-style REST endpoint.
type HTTPClient struct {
	cfg    HTTPClientConfig
	http   *http.Client
	logger *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a knowledge-base client.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("knowledge base endpoint is required")
	}
	if cfg.Top <= 0 {
		cfg.Top = 3
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

type generateAnswerRequest struct {
	Question string `json:"question"`
	Top      int    `json:"top"`
}

type generateAnswerResponse struct {
	Answers []struct {
		Answer string  `json:"answer"`
		Score  float64 `json:"score"`
	} `json:"answers"`
}

// Query asks the knowledge base for up to Top ranked answers. A missing
// or empty answers array is a service error, never an empty result:
// the service always reports at least a no-match answer, so silence
// means something is broken upstream.
func (c *HTTPClient) Query(ctx context.Context, question string) ([]domain.ScoredAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(generateAnswerRequest{Question: question, Top: c.cfg.Top})
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge base request: %w", err)
	}

	url := fmt.Sprintf("%s/knowledgebases/%s/generateAnswer", c.cfg.Endpoint, c.cfg.KnowledgeBaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build knowledge base request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "EndpointKey "+c.cfg.AuthKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close knowledge base response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("knowledge base returned status %d: %s", resp.StatusCode, snippet)
	}

	var parsed generateAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode knowledge base response: %w", err)
	}
	if len(parsed.Answers) == 0 {
		return nil, fmt.Errorf("knowledge base returned no answers")
	}

	answers := make([]domain.ScoredAnswer, 0, len(parsed.Answers))
	for _, a := range parsed.Answers {
		answers = append(answers, domain.ScoredAnswer{Text: a.Answer, Score: a.Score})
	}
	// The service is expected to rank answers, but banding depends on
	// descending order, so enforce it.
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Score > answers[j].Score })

	return answers, nil
}
