// Package httpclient builds the resty clients used for outbound calls to the
// Sui RPC node, the ML service and webhook endpoints.
package httpclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options configures a resty client. Zero values take the defaults.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	UserAgent        string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryWaitTime <= 0 {
		o.RetryWaitTime = 200 * time.Millisecond
	}
	if o.RetryMaxWaitTime <= 0 {
		o.RetryMaxWaitTime = 2 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "suiguard/1.0"
	}
	return o
}

// slogAdapter forwards resty's printf-style logging to slog.
type slogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter adapts logger to resty.Logger.
func NewSlogAdapter(logger *slog.Logger) resty.Logger {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// New returns a configured resty client. Retries are off unless
// RetryCount > 0; callers that need backoff across a circuit breaker wrap
// the call in internal/retry instead.
func New(logger *slog.Logger, opts Options) *resty.Client {
	opts = opts.withDefaults()

	client := resty.New()
	if logger != nil {
		client.SetLogger(NewSlogAdapter(logger.With("component", "http")))
	}
	client.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Content-Type", "application/json")
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	return client
}
