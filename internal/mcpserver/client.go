package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/suiguard/suiguard/internal/httpclient"
)

// Config holds the configuration for connecting to the SuiGuard API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8000"
	Timeout time.Duration // per request; analyses may queue behind the ML limit
}

// Client is an HTTP client for the SuiGuard API.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient creates a new client for the SuiGuard API.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: httpclient.New(logger, httpclient.Options{
			BaseURL: cfg.APIURL,
			Timeout: cfg.Timeout,
		}),
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode(), apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode(), resp.String())
	}

	return json.RawMessage(resp.Body()), nil
}

// AnalyzePackages scores the packages a dApp connection would touch.
func (c *Client) AnalyzePackages(ctx context.Context, packageIDs []string, domain string) (json.RawMessage, error) {
	body := map[string]any{"package_ids": packageIDs}
	if domain != "" {
		body["domain"] = domain
	}
	return c.doRequest(ctx, resty.MethodPost, "/api/analyze-connection", nil, body)
}

// AnalyzeObject scores the package that defines an on-chain object.
func (c *Client) AnalyzeObject(ctx context.Context, objectID string) (json.RawMessage, error) {
	return c.doRequest(ctx, resty.MethodPost, "/api/analyze-object", nil, map[string]string{"object_id": objectID})
}

// MonitorStats returns the protocol monitor counters.
func (c *Client) MonitorStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, resty.MethodGet, "/api/monitor/stats", nil, nil)
}

// PackageReports lists stored monitor reports for a package, newest first.
func (c *Client) PackageReports(ctx context.Context, packageID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, resty.MethodGet, "/api/reports/"+url.PathEscape(packageID), q, nil)
}
