package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// AnalyzePath is the service endpoint that analyses a boundary.
const AnalyzePath = "/analyze-farm"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Analyzer runs a single analysis request against the service.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Client handles communication with the analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new analysis service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Analyze posts the boundary and crop type to the service.
//
// An explicit error in the response body is returned as *ServiceError.
// Every other failure is returned as *ConnectivityError. There is no retry.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	endpoint, err := c.buildURL()
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}

	body, err := json.Marshal(analyzeRequest{
		Coordinates: req.Boundary.Coordinates(),
		CropType:    req.CropType,
	})
	if err != nil {
		return nil, &ConnectivityError{Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	c.logger.DebugContext(ctx, "submitting analysis",
		slog.String("request_id", req.ID),
		slog.String("url", endpoint),
		slog.String("crop_type", string(req.CropType)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ConnectivityError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "farm-health/1.0")
	if req.ID != "" {
		httpReq.Header.Set("X-Request-ID", req.ID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "analysis request failed",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
		return nil, &ConnectivityError{Err: fmt.Errorf("analysis request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ConnectivityError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode analysis response",
			slog.String("request_id", req.ID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return nil, &ConnectivityError{Err: fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)}
	}

	if decoded.Error != "" {
		c.logger.WarnContext(ctx, "analysis service returned an error",
			slog.String("request_id", req.ID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("message", decoded.Error),
		)
		return nil, &ServiceError{Message: decoded.Error, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ConnectivityError{Err: fmt.Errorf("analysis service returned status %d", resp.StatusCode)}
	}

	if decoded.Indices == nil {
		decoded.Indices = map[string]IndexValue{}
	}

	c.logger.DebugContext(ctx, "analysis completed",
		slog.String("request_id", req.ID),
		slog.String("health_status", decoded.HealthStatus),
		slog.Int("index_count", len(decoded.Indices)),
	)

	return &Result{
		Indices:      decoded.Indices,
		HealthStatus: decoded.HealthStatus,
		HealthyRange: decoded.HealthyRange,
		ZoneType:     decoded.ZoneType,
	}, nil
}

func (c *Client) buildURL() (string, error) {
	if c.baseURL == "" {
		return "", errors.New("analysis service URL is not configured")
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.JoinPath(AnalyzePath).String(), nil
}
