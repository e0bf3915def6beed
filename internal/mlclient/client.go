// Package mlclient talks to the external vulnerability classifier and turns
// its label distribution into a 0-100 risk sub-score.
package mlclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/suiguard/suiguard/internal/circuitbreaker"
	"github.com/suiguard/suiguard/internal/httpclient"
)

// Expected degradation. Callers fall back to SafeSentinel on any of these.
var (
	ErrDisabled        = errors.New("mlclient: classifier disabled")
	ErrTimeout         = errors.New("mlclient: classifier timed out")
	ErrUnavailable     = errors.New("mlclient: classifier unavailable")
	ErrInvalidResponse = errors.New("mlclient: invalid classifier response")
	ErrCircuitOpen     = errors.New("mlclient: circuit open")
)

const (
	analyzePath = "/api/analyze-vulnerability"

	// MaxCodeBytes caps the source sent to the classifier. The service
	// answers 400 above 100000 characters.
	MaxCodeBytes = 100000

	breakerKey = "ml"
)

// Config configures the classifier client.
type Config struct {
	BaseURL string
	Enabled bool
	Timeout time.Duration
}

// Client calls the classifier service.
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a client. breaker may be nil.
func New(cfg Config, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: httpclient.New(logger, httpclient.Options{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}),
		breaker: breaker,
		logger:  logger.With("component", "mlclient"),
	}
}

// Enabled reports whether the client will call out at all.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.BaseURL != ""
}

// truncateCode cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateCode(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Classify submits moveCode for classification. Code longer than
// MaxCodeBytes is truncated.
func (c *Client) Classify(ctx context.Context, moveCode string) (*Classification, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(moveCode) > MaxCodeBytes {
		c.logger.Debug("truncating move code", "bytes", len(moveCode), "limit", MaxCodeBytes)
		moveCode = truncateCode(moveCode, MaxCodeBytes)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var result *Classification
	call := func(ctx context.Context) error {
		var err error
		result, err = c.post(ctx, moveCode)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, breakerKey, call)
	} else {
		err = call(ctx)
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, moveCode string) (*Classification, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"move_code": moveCode}).
		Post(analyzePath)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	cls, err := decode(resp.Body())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("classification received",
		"label", cls.Label,
		"max_probability", cls.MaxProbability,
		"risk_score", cls.RiskScore,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return cls, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
