// Package tracker watches the Sui chain for packages published by tracked
// DeFi protocols, scores each one, records a report, and alerts the
// protocol's webhook when the risk is above LOW.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/traces"
)

// State of the monitor loop.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// DefaultDomain is scored for chain-originated analyses, which have no
// requesting site.
const DefaultDomain = "unknown_domain"

// Realtime event types published by the tracker.
const (
	PublishContractDetected = "contract_detected"
	PublishRiskReport       = "risk_report"
)

var ErrAlreadyRunning = errors.New("tracker: already running")

// PackageAnalyzer fetches and statically analyzes one package.
type PackageAnalyzer interface {
	Analyze(ctx context.Context, packageID string) (*analyzer.Finding, string)
}

// Assessor produces a verdict; *risk.Engine satisfies it.
type Assessor interface {
	AnalyzeWithMLIntegration(ctx context.Context, domain string, permissions []string, findings []*analyzer.Finding, code string) *risk.Verdict
}

// Notifier delivers alerts. Each method reports whether delivery succeeded.
type Notifier interface {
	ContractDetected(ctx context.Context, ev ContractEvent) bool
	RiskAnalysis(ctx context.Context, ev ContractEvent, r *Report) bool
	Startup(ctx context.Context, message string) bool
	Error(ctx context.Context, message string) bool
}

// Admission bounds concurrent ML-backed analyses across the process;
// *mlqueue.Queue satisfies it.
type Admission interface {
	Acquire(ctx context.Context, requestID string) (bool, error)
	Release(requestID string)
}

// ReportSink records finished reports.
type ReportSink interface {
	Save(ctx context.Context, r *Report) error
}

// Publisher pushes live events to dashboards.
type Publisher interface {
	Publish(eventType, protocol string, data any)
}

// Config configures the monitor loop.
type Config struct {
	ScanInterval time.Duration
	Domain       string
	// QueueTimeout bounds the wait for an ML slot.
	QueueTimeout time.Duration
}

// Deps are the collaborators the tracker drives. Queue, Reports and
// Publisher may be nil.
type Deps struct {
	Packages  PackageAnalyzer
	Engine    Assessor
	Notifier  Notifier
	Queue     Admission
	Reports   ReportSink
	Publisher Publisher
}

// Stats is a snapshot of the tracker's counters.
type Stats struct {
	State             State      `json:"state"`
	ContractsDetected int64      `json:"contracts_detected"`
	HighRiskFound     int64      `json:"high_risk_found"`
	NotificationsSent int64      `json:"notifications_sent"`
	ScanErrors        int64      `json:"scan_errors"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	RuntimeSeconds    float64    `json:"runtime_seconds,omitempty"`
	LastCheckpoint    uint64     `json:"last_checkpoint"`
}

// Tracker runs the scan loop and handles every detected package.
type Tracker struct {
	cfg     Config
	scanner *Scanner
	deps    Deps
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	detected  atomic.Int64
	highRisk  atomic.Int64
	sent      atomic.Int64
	scanFails atomic.Int64
}

// New creates a stopped tracker.
func New(cfg Config, scanner *Scanner, deps Deps, logger *slog.Logger) *Tracker {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:     cfg,
		scanner: scanner,
		deps:    deps,
		logger:  logger.With("component", "tracker"),
		now:     time.Now,
		state:   StateStopped,
	}
}

// Start launches the monitor loop in the background. It returns
// ErrAlreadyRunning if the loop is live.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateRunning {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.state = StateRunning
	t.startTime = t.now()
	t.cancel = cancel
	t.done = make(chan struct{})

	t.logger.Info("protocol tracker starting", "scan_interval", t.cfg.ScanInterval)
	go t.loop(runCtx, t.done)
	return nil
}

// Stop ends the loop and waits for the in-flight iteration to finish.
// Stopping a stopped tracker is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// State returns the loop state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats returns current counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	state, start := t.state, t.startTime
	t.mu.Unlock()

	s := Stats{
		State:             state,
		ContractsDetected: t.detected.Load(),
		HighRiskFound:     t.highRisk.Load(),
		NotificationsSent: t.sent.Load(),
		ScanErrors:        t.scanFails.Load(),
	}
	if !start.IsZero() {
		s.StartTime = &start
		if state == StateRunning {
			s.RuntimeSeconds = t.now().Sub(start).Seconds()
		}
	}
	if t.scanner != nil {
		s.LastCheckpoint, _ = t.scanner.Cursor()
	}
	return s
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("monitor loop crashed", "panic", r)
			t.deps.Notifier.Error(context.Background(), fmt.Sprintf("Package monitor stopped unexpectedly: %v", r))
		}
		t.mu.Lock()
		t.state = StateStopped
		t.cancel = nil
		t.mu.Unlock()
		close(done)
		t.logger.Info("protocol tracker stopped")
	}()

	if t.deps.Notifier.Startup(ctx, "SuiGuard package monitor started") {
		t.sent.Add(1)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := t.scanner.Scan(ctx, func(ev ContractEvent) { t.HandleEvent(ctx, ev) }); err != nil && ctx.Err() == nil {
			t.scanFails.Add(1)
			t.logger.Error("scan failed", "error", err)
		}
		timer.Reset(t.cfg.ScanInterval)
	}
}

// HandleEvent processes one detection: alert, analyze, record, publish, and
// alert again when the risk is above LOW. A panic while handling is turned
// into an error notification so one bad package cannot stop the loop.
func (t *Tracker) HandleEvent(ctx context.Context, ev ContractEvent) {
	ctx, span := traces.StartSpan(ctx, "tracker.HandleEvent",
		traces.PackageID(ev.PackageID), traces.Protocol(ev.Protocol))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("failed to handle contract event", "package_id", ev.PackageID, "panic", r)
			t.deps.Notifier.Error(ctx, fmt.Sprintf("Error while processing package %s: %v", ev.PackageID, r))
		}
	}()

	t.detected.Add(1)
	metrics.ContractsDetectedTotal.WithLabelValues(ev.Protocol).Inc()
	t.logger.Info("handling contract event", "package_id", ev.PackageID, "protocol", ev.Protocol)

	if t.deps.Publisher != nil {
		t.deps.Publisher.Publish(PublishContractDetected, ev.Protocol, ev)
	}
	if t.deps.Notifier.ContractDetected(ctx, ev) {
		t.sent.Add(1)
	}

	report := t.Analyze(ctx, ev)
	span.SetAttributes(traces.RiskLevel(string(report.RiskLevel)))

	if t.deps.Reports != nil {
		if err := t.deps.Reports.Save(ctx, report); err != nil {
			t.logger.Error("failed to save report", "package_id", ev.PackageID, "error", err)
		}
	}
	if t.deps.Publisher != nil {
		t.deps.Publisher.Publish(PublishRiskReport, ev.Protocol, report)
	}

	if report.HighRisk() {
		t.highRisk.Add(1)
		t.logger.Warn("high risk package detected", "package_id", ev.PackageID, "level", report.RiskLevel)
	}
	if !report.RiskLevel.AboveLow() {
		t.logger.Info("low risk package, alert suppressed", "package_id", ev.PackageID)
		return
	}
	if t.deps.Notifier.RiskAnalysis(ctx, ev, report) {
		t.sent.Add(1)
	}
}

// Analyze fetches, analyzes and scores the event's package. The ML path
// shares the admission queue with the API; when no slot frees up in time
// the package is scored on rules alone.
func (t *Tracker) Analyze(ctx context.Context, ev ContractEvent) *Report {
	finding, source := t.deps.Packages.Analyze(ctx, ev.PackageID)
	if source != "" && t.deps.Queue != nil {
		ticket := "trk_" + ev.PackageID
		if t.admit(ctx, ticket) {
			defer t.deps.Queue.Release(ticket)
		} else {
			t.logger.Warn("ml queue unavailable, scoring with rules only", "package_id", ev.PackageID)
			source = ""
		}
	}
	verdict := t.deps.Engine.AnalyzeWithMLIntegration(ctx, t.cfg.Domain, nil, []*analyzer.Finding{finding}, source)
	return BuildReport(ev, verdict, finding, t.now())
}

func (t *Tracker) admit(ctx context.Context, ticket string) bool {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.QueueTimeout)
	defer cancel()
	ok, err := t.deps.Queue.Acquire(ctx, ticket)
	return ok && err == nil
}
