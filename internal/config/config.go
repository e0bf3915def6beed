// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Sui node
	SuiRPCURL  string
	RPCTimeout time.Duration

	// ML classifier
	MLServiceURL    string
	MLEnabled       bool
	MLTimeout       time.Duration
	MLMaxConcurrent int
	MLMaxQueueSize  int
	MLQueueTimeout  time.Duration

	// Protection
	RateLimitRPM      int
	MaxRequestBytes   int64
	ChromeExtensionID string

	// Protocol monitor
	MonitorEnabled  bool
	ScanInterval    time.Duration
	MaxBlocksToScan uint64
	Webhooks        map[string]string // channel -> webhook URL
	WebhookSecret   string

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort            = "8000"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultSuiRPCURL       = "https://fullnode.mainnet.sui.io:443"
	DefaultRPCTimeout      = 15 * time.Second
	DefaultMLServiceURL    = "http://localhost:8081"
	DefaultMLTimeout       = 30 * time.Second
	DefaultMLMaxConcurrent = 1
	DefaultMLMaxQueueSize  = 10
	DefaultMLQueueTimeout  = 60 * time.Second
	DefaultRateLimitRPM    = 30
	DefaultMaxRequestBytes = 1 << 20
	DefaultScanInterval    = 30 * time.Second
)

// WebhookChannels are the notification channels read from the environment.
var WebhookChannels = []string{"bucket", "scallop", "navi", "health"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := &Config{
		Port:      getEnv("PORT", DefaultPort),
		Env:       getEnv("ENV", DefaultEnv),
		LogLevel:  getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", DefaultLogFormat),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SuiRPCURL:  firstEnv([]string{"SUI_RPC_PROVIDER_URL", "SUI_RPC_PUBLIC_URL"}, DefaultSuiRPCURL),
		RPCTimeout: l.duration("RPC_TIMEOUT", DefaultRPCTimeout),

		MLServiceURL:    getEnv("ML_SERVICE_URL", DefaultMLServiceURL),
		MLEnabled:       l.boolean("ML_ENABLED", true),
		MLTimeout:       l.duration("ML_TIMEOUT", DefaultMLTimeout),
		MLMaxConcurrent: l.integer("ML_MAX_CONCURRENT", DefaultMLMaxConcurrent),
		MLMaxQueueSize:  l.integer("ML_MAX_QUEUE_SIZE", DefaultMLMaxQueueSize),
		MLQueueTimeout:  l.duration("ML_QUEUE_TIMEOUT", DefaultMLQueueTimeout),

		RateLimitRPM:      l.integer("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		MaxRequestBytes:   int64(l.integer("MAX_REQUEST_BYTES", DefaultMaxRequestBytes)),
		ChromeExtensionID: os.Getenv("CHROME_EXTENSION_ID"),

		MonitorEnabled:  l.boolean("MONITOR_ENABLED", true),
		ScanInterval:    l.duration("SCAN_INTERVAL", DefaultScanInterval),
		MaxBlocksToScan: uint64(l.integer("MAX_BLOCKS_TO_SCAN", 0)),
		Webhooks:        make(map[string]string, len(WebhookChannels)),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	for _, ch := range WebhookChannels {
		suffix := strings.ToUpper(ch)
		if u := firstEnv([]string{"WEBHOOK_" + suffix, "DISCORD_WEBHOOK_" + suffix}, ""); u != "" {
			cfg.Webhooks[ch] = u
		}
	}

	if err := l.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all configuration values are usable
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if err := checkURL("SUI_RPC_PROVIDER_URL", c.SuiRPCURL); err != nil {
		errs = append(errs, err)
	}
	if c.MLEnabled {
		if err := checkURL("ML_SERVICE_URL", c.MLServiceURL); err != nil {
			errs = append(errs, err)
		}
	}
	for ch, u := range c.Webhooks {
		if err := checkURL("WEBHOOK_"+strings.ToUpper(ch), u); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MLMaxConcurrent < 1 {
		errs = append(errs, errors.New("ML_MAX_CONCURRENT must be at least 1"))
	}
	if c.MLMaxQueueSize < 0 {
		errs = append(errs, errors.New("ML_MAX_QUEUE_SIZE must not be negative"))
	}
	if c.RateLimitRPM < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_RPM must be at least 1"))
	}
	if c.MaxRequestBytes < 1 {
		errs = append(errs, errors.New("MAX_REQUEST_BYTES must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"RPC_TIMEOUT":      c.RPCTimeout,
		"ML_TIMEOUT":       c.MLTimeout,
		"ML_QUEUE_TIMEOUT": c.MLQueueTimeout,
		"SCAN_INTERVAL":    c.ScanInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AllowedOrigins lists browser origins permitted for CORS and WebSocket
// upgrades.
func (c *Config) AllowedOrigins() []string {
	if c.ChromeExtensionID == "" {
		return nil
	}
	return []string{"chrome-extension://" + c.ChromeExtensionID}
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys []string, defaultValue string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return defaultValue
}

// loader parses typed values and remembers every malformed one.
type loader struct {
	errs []error
}

func (l *loader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return i
}

func (l *loader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

// duration accepts Go durations ("45s") or plain integers, read as seconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (l *loader) err() error {
	return errors.Join(l.errs...)
}
