package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"grovli-client/internal/auth"
)

// Recorder receives the outcome of every request. Implemented by the
// metrics store; a nil Recorder disables recording.
type Recorder interface {
	RecordRequest(method, path string, status int, latency time.Duration)
}

// Client is the authenticated HTTP client for the Grovli backend.
//
// It attaches the bearer credential and the user-id header to every request
// whose path is not on the public allow-list, and normalizes non-2xx
// responses into *APIError.
type Client struct {
	baseURL     string
	userID      string
	tokens      *auth.TokenStore
	httpClient  *http.Client
	publicPaths []string
	recorder    Recorder
	logger      *slog.Logger
}

// NewClient creates a new backend client. timeout bounds every request.
func NewClient(baseURL, userID string, tokens *auth.TokenStore, publicPaths []string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		userID:      userID,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: timeout},
		publicPaths: publicPaths,
		logger:      logger,
	}
}

// SetRecorder installs a request metrics recorder.
func (c *Client) SetRecorder(r Recorder) { c.recorder = r }

// Get performs an authenticated GET and returns the response body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do performs a request against the backend. A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if !c.isPublic(path) {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if c.userID != "" {
			req.Header.Set("user-id", c.userID)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, path, 0, time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			c.logger.Warn("request timed out", "method", method, "path", path)
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.record(method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(payload)}
	}
	return payload, nil
}

// GetJSON performs a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	payload, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) isPublic(path string) bool {
	for _, prefix := range c.publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) record(method, path string, status int, latency time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordRequest(method, path, status, latency)
	}
}

func isClientTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
