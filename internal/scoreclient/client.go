// Package scoreclient provides the HTTP client for toxicity scorer
// sidecars. Every scorer speaks the same protocol: POST /score with the
// text, per-label probabilities back.
package scoreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
)

const defaultTimeout = 5 * time.Second

// ErrUnavailable indicates the scorer service is unreachable.
var ErrUnavailable = errors.New("scorer service unavailable")

// ScoreRequest is the request body for /score.
type ScoreRequest struct {
	Text string `json:"text"`
}

// ScoreResponse is the response body from /score.
type ScoreResponse struct {
	Scores           map[string]float64 `json:"scores"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	ModelVersion     string             `json:"model_version"`
}

// healthResponse is the JSON shape returned by GET /health.
type healthResponse struct {
	ModelVersion string `json:"model_version"`
}

// Client is an HTTP client for one scorer service. It implements
// classifier.Scorer.
type Client struct {
	name       string
	kind       domain.ScorerKind
	baseURL    string
	httpClient *http.Client
}

// New creates a scorer client. A zero timeout falls back to the
// package default.
func New(name string, kind domain.ScorerKind, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:    name,
		kind:    kind,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Name() string            { return c.name }
func (c *Client) Kind() domain.ScorerKind { return c.kind }

// Score sends the text to the scorer and returns its per-label
// probabilities. Returns ErrUnavailable when the service is
// unreachable.
func (c *Client) Score(ctx context.Context, text string) (map[string]float64, error) {
	reqBody, err := json.Marshal(ScoreRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer %s returned %d", c.name, resp.StatusCode)
	}

	var result ScoreResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(result.Scores) == 0 {
		return nil, fmt.Errorf("scorer %s returned no scores", c.name)
	}

	return result.Scores, nil
}

// Health checks if the scorer service is healthy and returns its model
// version when the service reports one.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scorer %s unhealthy: %d", c.name, resp.StatusCode)
	}

	var health healthResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&health); decodeErr != nil {
		return "", nil
	}
	return health.ModelVersion, nil
}
