// Package packages analyzes batches of on-chain Move packages: it validates
// the ids, fetches each package's rendered source, runs the static
// analyzer, and gathers the sources for the ML classifier.
package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/suirpc"
	"github.com/suiguard/suiguard/internal/traces"
)

// MaxBatch is the largest number of ids one request may submit.
const MaxBatch = 50

var (
	ErrEmptyBatch   = errors.New("packages: package_ids are required")
	ErrBatchTooBig  = fmt.Errorf("packages: too many packages to analyze (max: %d)", MaxBatch)
	defaultParallel = 4
)

// SourceFetcher returns analyzable source for a package id.
type SourceFetcher interface {
	PackageSource(ctx context.Context, packageID string) (string, error)
}

// Batch is the outcome of analyzing a set of packages.
type Batch struct {
	Findings []*analyzer.Finding
	Skipped  []string // ids rejected as malformed
	Total    int      // ids submitted, including skipped ones
	Source   string   // fetched sources, each under a "// Package: <id>" header
}

// Analyzed counts successful findings.
func (b *Batch) Analyzed() int {
	n := 0
	for _, f := range b.Findings {
		if f.OK() {
			n++
		}
	}
	return n
}

// Service runs package analyses. It is safe for concurrent use.
type Service struct {
	fetcher  SourceFetcher
	parallel int
	logger   *slog.Logger
}

// NewService creates a service fetching sources through fetcher.
func NewService(fetcher SourceFetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:  fetcher,
		parallel: defaultParallel,
		logger:   logger.With("component", "packages"),
	}
}

// WithParallelism bounds concurrent source fetches.
func (s *Service) WithParallelism(n int) *Service {
	if n > 0 {
		s.parallel = n
	}
	return s
}

// ValidateIDs normalizes ids, keeping submission order. Malformed ids are
// returned separately; duplicates after normalization are dropped.
func ValidateIDs(ids []string) (valid, skipped []string) {
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id, err := suirpc.NormalizeID(raw)
		if err != nil {
			skipped = append(skipped, raw)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		valid = append(valid, id)
	}
	return valid, skipped
}

// CheckBatchSize enforces 1..MaxBatch ids.
func CheckBatchSize(ids []string) error {
	switch {
	case len(ids) == 0:
		return ErrEmptyBatch
	case len(ids) > MaxBatch:
		return ErrBatchTooBig
	}
	return nil
}

// Analyze fetches and analyzes one package. The returned source is empty
// unless the fetch succeeded. Fetch failures become failed or error
// findings; Analyze never returns an error.
func (s *Service) Analyze(ctx context.Context, packageID string) (*analyzer.Finding, string) {
	ctx, span := traces.StartSpan(ctx, "packages.Analyze", traces.PackageID(packageID))
	defer span.End()

	src, err := s.fetcher.PackageSource(ctx, packageID)
	if err != nil {
		f := fetchFailure(packageID, err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("finding.status", string(f.Status)))
		metrics.PackagesAnalyzedTotal.WithLabelValues(string(f.Status)).Inc()
		s.logger.Warn("package source unavailable", "package_id", packageID, "status", f.Status, "error", err)
		return f, ""
	}

	f := analyzer.Analyze(src, packageID)
	span.SetAttributes(
		attribute.String("finding.status", string(f.Status)),
		attribute.Int("finding.matches", f.TotalMatches()),
	)
	metrics.PackagesAnalyzedTotal.WithLabelValues(string(f.Status)).Inc()
	s.logger.Debug("package analyzed",
		"package_id", packageID,
		"dangerous_functions", len(f.DangerousFunctions),
		"suspicious_calls", len(f.SuspiciousCalls),
		"high_risk_keywords", len(f.HighRiskKeywords),
		"complexity", f.ComplexityScore,
	)
	return f, src
}

// fetchFailure maps a fetch error to a finding. An answer from the node
// saying the package is missing or unreadable is "failed"; anything else
// (transport, breaker, cancellation) is "error".
func fetchFailure(packageID string, err error) *analyzer.Finding {
	var rpcErr *suirpc.RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, suirpc.ErrNotFound) || errors.Is(err, suirpc.ErrMalformed) {
		return analyzer.Failed(packageID, "unable to fetch package source: "+err.Error())
	}
	return analyzer.Errored(packageID, err)
}

// AnalyzeBatch validates ids and analyzes the valid ones concurrently.
// Findings keep submission order.
func (s *Service) AnalyzeBatch(ctx context.Context, ids []string) (*Batch, error) {
	if err := CheckBatchSize(ids); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "packages.AnalyzeBatch", traces.PackageCount(len(ids)))
	defer span.End()

	valid, skipped := ValidateIDs(ids)
	for _, id := range skipped {
		s.logger.Warn("skipping malformed package id", "package_id", id)
	}

	findings := make([]*analyzer.Finding, len(valid))
	sources := make([]string, len(valid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, id := range valid {
		g.Go(func() error {
			findings[i], sources[i] = s.Analyze(gctx, id)
			return nil
		})
	}
	// Analyze turns every fetch error into a failed finding, so no
	// goroutine returns an error and Wait is only a barrier.
	_ = g.Wait()

	var b strings.Builder
	for i, src := range sources {
		if src == "" {
			continue
		}
		fmt.Fprintf(&b, "\n// Package: %s\n%s\n", valid[i], src)
	}

	batch := &Batch{
		Findings: findings,
		Skipped:  skipped,
		Total:    len(ids),
		Source:   strings.TrimSpace(b.String()),
	}
	s.logger.Info("batch analyzed", "total", batch.Total, "analyzed", batch.Analyzed(), "skipped", len(skipped))
	return batch, nil
}
