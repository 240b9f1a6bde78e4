package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
)

// Transport sends one full sync round trip
type Transport interface {
	FullSync(ctx context.Context, req *FullSyncRequest) (*FullSyncResponse, error)
}

// Client handles HTTP communication with the sync server
type Client struct {
	baseURL    string
	token      string
	deviceName string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *loggy.Logger
}

// NewClient creates a new HTTP client for server communication
func NewClient(cfg config.ServerConfig, logger *loggy.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		deviceName: cfg.DeviceName,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: newLimiter(cfg.RequestsPerMinute, cfg.BurstLimit),
		logger:  logger,
	}
}

// newLimiter creates a rate limiter from requests-per-minute and burst
func newLimiter(rpm, burst int) *rate.Limiter {
	b := burst
	if b <= 0 {
		b = 1
	}
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, b)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), b)
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// TransportError wraps failures to reach the server at all
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FullSync posts the complete local state and returns the server's state
func (c *Client) FullSync(ctx context.Context, req *FullSyncRequest) (*FullSyncResponse, error) {
	var resp FullSyncResponse
	if err := c.sendRequest(ctx, http.MethodPost, "/api/sync/full", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the server is reachable. Any HTTP answer counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// VerifyToken reports whether the configured token is accepted
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	err := c.sendRequest(ctx, http.MethodGet, "/api/auth/verify", nil, nil)
	if err == nil {
		return true, nil
	}

	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
		return false, nil
	}

	return false, err
}

// sendRequest sends body as JSON and decodes a 2xx answer into out (when non-nil)
func (c *Client) sendRequest(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.deviceName != "" {
		req.Header.Set("X-Device-Name", c.deviceName)
	}
	if id := loggy.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("Sync server responded", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		// The decoded body may carry its own status code; the HTTP one wins
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
