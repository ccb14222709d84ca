package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
)

// Client talks to the remote tool backend over HTTP JSON. One instance is
// shared by every tool that needs the backend; requests carry the caller's
// context and are never retried here.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds backend client configuration.
type Config struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	APIKey  string        `json:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewClient creates a backend client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "backend").Logger(),
	}, nil
}

// Search runs a web search through the backend.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, errors.New("search query is required")
	}

	var resp SearchResponse
	if err := c.post(ctx, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Knowledge queries the internal knowledge base through the backend.
func (c *Client) Knowledge(ctx context.Context, req KnowledgeRequest) (*KnowledgeResponse, error) {
	if req.Query == "" {
		return nil, errors.New("knowledge query is required")
	}

	var resp KnowledgeResponse
	if err := c.post(ctx, "/v1/knowledge/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends a JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordBackendRequest(path, "transport_error", time.Since(start))
		c.logger.Error().
			Str("path", path).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Backend request failed")
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.RecordBackendRequest(path, "http_error", time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("Backend returned non-OK status")
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	observability.RecordBackendRequest(path, "success", time.Since(start))

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("Backend request completed")

	return nil
}
