// Package notify delivers monitor alerts to Discord-compatible webhooks.
//
// Each tracked protocol has its own channel URL; startup and error messages
// go to the health channel. Deliveries are signed when a secret is
// configured and pass through a circuit breaker keyed by channel.
package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/suiguard/suiguard/internal/circuitbreaker"
	"github.com/suiguard/suiguard/internal/httpclient"
	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/tracker"
)

// ChannelHealth receives startup and error messages.
const ChannelHealth = "health"

// Request headers set on every delivery.
const (
	HeaderEvent     = "X-SuiGuard-Event"
	HeaderTimestamp = "X-SuiGuard-Timestamp"
	HeaderSignature = "X-SuiGuard-Signature"
)

// Event names carried in HeaderEvent.
const (
	eventContractDetected = "contract.detected"
	eventRiskAnalysis     = "risk.analysis"
	eventStartup          = "system.startup"
	eventError            = "system.error"
)

// Delivery results recorded in metrics.
const (
	resultSuccess     = "success"
	resultFailure     = "failure"
	resultCircuitOpen = "circuit_open"
	resultNoChannel   = "no_channel"
)

var errStatus = errors.New("notify: non-2xx response")

// Config configures the notifier. Webhooks maps channel name (a protocol
// tag or ChannelHealth) to webhook URL; empty URLs are ignored.
type Config struct {
	Webhooks map[string]string
	Secret   string
	Timeout  time.Duration
}

// Notifier implements tracker.Notifier.
type Notifier struct {
	webhooks map[string]string
	secret   string
	http     *resty.Client
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
	now      func() time.Time
}

var _ tracker.Notifier = (*Notifier)(nil)

// New creates a notifier. breaker may be nil.
func New(cfg Config, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hooks := make(map[string]string, len(cfg.Webhooks))
	for ch, url := range cfg.Webhooks {
		if url != "" {
			hooks[ch] = url
		}
	}
	logger = logger.With("component", "notify")
	return &Notifier{
		webhooks: hooks,
		secret:   cfg.Secret,
		http:     httpclient.New(logger, httpclient.Options{Timeout: cfg.Timeout}),
		breaker:  breaker,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for embed timestamps.
func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Channels lists configured channel names, sorted.
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.webhooks))
	for ch := range n.webhooks {
		names = append(names, ch)
	}
	sort.Strings(names)
	return names
}

// ContractDetected posts the detection embed to the event's protocol channel.
func (n *Notifier) ContractDetected(ctx context.Context, ev tracker.ContractEvent) bool {
	return n.deliver(ctx, ev.Protocol, eventContractDetected, &Payload{
		Username: usernameMonitor,
		Embeds:   []Embed{contractEmbed(ev)},
	})
}

// RiskAnalysis posts the risk embed to the event's protocol channel. LOW and
// SAFE reports are not sent.
func (n *Notifier) RiskAnalysis(ctx context.Context, ev tracker.ContractEvent, r *tracker.Report) bool {
	if r == nil || !r.RiskLevel.AboveLow() {
		n.logger.Debug("risk alert skipped", "package_id", ev.PackageID)
		return false
	}
	return n.deliver(ctx, ev.Protocol, eventRiskAnalysis, &Payload{
		Username: usernameAnalyzer,
		Embeds:   []Embed{riskEmbed(ev, r, n.now())},
	})
}

// Startup posts a startup message to the health channel.
func (n *Notifier) Startup(ctx context.Context, message string) bool {
	return n.deliver(ctx, n.systemChannel(), eventStartup, &Payload{
		Username: usernameSystem,
		Embeds:   []Embed{startupEmbed(message, n.now())},
	})
}

// Error posts an error message to the health channel.
func (n *Notifier) Error(ctx context.Context, message string) bool {
	return n.deliver(ctx, n.systemChannel(), eventError, &Payload{
		Username: usernameSystem,
		Embeds:   []Embed{errorEmbed(message, n.now())},
	})
}

// systemChannel is the health channel, or the first configured channel
// when no health webhook is set.
func (n *Notifier) systemChannel() string {
	if _, ok := n.webhooks[ChannelHealth]; ok {
		return ChannelHealth
	}
	if chs := n.Channels(); len(chs) > 0 {
		return chs[0]
	}
	return ChannelHealth
}

func (n *Notifier) deliver(ctx context.Context, channel, event string, p *Payload) bool {
	url, ok := n.webhooks[channel]
	if !ok {
		metrics.WebhookDeliveriesTotal.WithLabelValues(resultNoChannel).Inc()
		n.logger.Warn("no webhook configured for channel", "channel", channel, "event", event)
		return false
	}
	return n.send(ctx, channel, url, event, p)
}

// Send posts payload to url and reports whether the endpoint accepted it.
// The breaker key is the url itself.
func (n *Notifier) Send(ctx context.Context, url string, p *Payload) bool {
	return n.send(ctx, url, url, "custom", p)
}

func (n *Notifier) send(ctx context.Context, key, url, event string, p *Payload) bool {
	body, err := json.Marshal(p)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(resultFailure).Inc()
		n.logger.Error("failed to encode webhook payload", "event", event, "error", err)
		return false
	}

	post := func(ctx context.Context) error {
		req := n.http.R().
			SetContext(ctx).
			SetHeader(HeaderEvent, event).
			SetHeader(HeaderTimestamp, strconv.FormatInt(n.now().Unix(), 10)).
			SetBody(body)
		if n.secret != "" {
			req.SetHeader(HeaderSignature, Sign(body, n.secret))
		}
		resp, err := req.Post(url)
		if err != nil {
			return err
		}
		if !resp.IsSuccess() {
			return fmt.Errorf("%w: %d", errStatus, resp.StatusCode())
		}
		return nil
	}

	if n.breaker != nil {
		err = n.breaker.Execute(ctx, key, post)
	} else {
		err = post(ctx)
	}

	switch {
	case err == nil:
		metrics.WebhookDeliveriesTotal.WithLabelValues(resultSuccess).Inc()
		n.logger.Info("webhook delivered", "channel", key, "event", event)
		return true
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.WebhookDeliveriesTotal.WithLabelValues(resultCircuitOpen).Inc()
		n.logger.Warn("webhook circuit open, delivery skipped", "channel", key, "event", event)
	default:
		metrics.WebhookDeliveriesTotal.WithLabelValues(resultFailure).Inc()
		n.logger.Error("webhook delivery failed", "channel", key, "event", event, "error", err)
	}
	return false
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
