package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/mlclient"
	"github.com/suiguard/suiguard/internal/traces"
)

// ML blend weights.
const (
	mlTrustedConfidence  = 0.3
	mlTrustedMLWeight    = 0.6
	rulesTrustedMLWeight = 0.2
)

// Classifier is the ML vulnerability classifier.
type Classifier interface {
	Classify(ctx context.Context, moveCode string) (*mlclient.Classification, error)
}

// errEmptyClassification flags a classifier that returned neither a result
// nor an error.
var errEmptyClassification = errors.New("classifier returned no result")

// Engine produces risk verdicts. The zero-configured engine is rules-only.
type Engine struct {
	classifier Classifier
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine creates a rules-only engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithClassifier enables the ML path.
func (e *Engine) WithClassifier(c Classifier) *Engine {
	e.classifier = c
	return e
}

// WithClock overrides the timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.logger = l.With("component", "risk")
	}
	return e
}

// ruleScore is an unrounded rules-only result.
type ruleScore struct {
	domain     DomainRisk
	permission PermissionRisk
	pkg        PackageRisk
	weighted   float64
	final      float64
	maxSingle  float64
}

func scoreRules(domain string, permissions []string, findings []*analyzer.Finding) ruleScore {
	rs := ruleScore{
		domain:     AnalyzeDomainRisk(domain),
		permission: AnalyzePermissionRisk(permissions),
		pkg:        AnalyzePackageRisk(findings),
	}
	rs.weighted = rs.domain.Score*weightDomain +
		rs.permission.Score*weightPermission +
		rs.pkg.Score*weightPackage
	rs.maxSingle = math.Max(rs.domain.Score, math.Max(rs.permission.Score, rs.pkg.Score))
	rs.final = math.Max(rs.weighted, rs.maxSingle*overrideFactor)
	return rs
}

// level applies the score thresholds. Rules-only verdicts are floored at
// MEDIUM when any single dimension reaches the MEDIUM threshold on its own;
// an ML blend is judged on its blended score alone.
func (rs ruleScore) level(final float64, method string) Level {
	l := levelFor(final)
	if method == MethodMLIntegrated {
		return l
	}
	if l == LevelLow && rs.maxSingle >= MediumThreshold {
		return LevelMedium
	}
	return l
}

func (rs ruleScore) reasons() []string {
	out := make([]string, 0, len(rs.domain.Reasons)+len(rs.permission.Reasons)+len(rs.pkg.Reasons))
	out = append(out, rs.domain.Reasons...)
	out = append(out, rs.permission.Reasons...)
	return append(out, rs.pkg.Reasons...)
}

func (e *Engine) verdict(rs ruleScore, final float64, method string) *Verdict {
	level := rs.level(final, method)
	return &Verdict{
		RiskLevel:      level,
		Confidence:     round2(final),
		Reasons:        rs.reasons(),
		Recommendation: recommendationFor(level),
		Breakdown: Breakdown{
			DomainRisk:     round2(rs.domain.Score),
			PermissionRisk: round2(rs.permission.Score),
			PackageRisk:    round2(rs.pkg.Score),
			WeightedScore:  round2(rs.weighted),
			FinalScore:     round2(final),
		},
		Details: Details{
			AnalyzedPackages:    rs.pkg.AnalyzedCount,
			HighRiskPermissions: rs.permission.HighCount,
			Timestamp:           e.now().UTC(),
			AnalysisMethod:      method,
		},
	}
}

// CalculateOverallRisk blends the three rule dimensions into a verdict.
// The final score is the larger of the weighted sum and 0.8 times the
// worst single dimension.
func (e *Engine) CalculateOverallRisk(domain string, permissions []string, findings []*analyzer.Finding) *Verdict {
	rs := scoreRules(domain, permissions, findings)
	v := e.verdict(rs, rs.final, MethodRules)
	metrics.VerdictsTotal.WithLabelValues(string(v.RiskLevel), v.Details.AnalysisMethod).Inc()
	return v
}

// ClassifyVulnerability runs the ML classifier. It never fails: when the
// classifier is absent, disabled, slow, broken or panics, a SafeSentinel
// carrying the reason is returned.
func (e *Engine) ClassifyVulnerability(ctx context.Context, code string) (cls *mlclient.Classification) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("classifier panicked", "panic", r)
			cls = mlclient.SafeSentinel(mlclient.StatusError, fmt.Errorf("classifier panic: %v", r))
			metrics.MLClassificationsTotal.WithLabelValues(cls.Status).Inc()
		}
	}()
	return e.classify(ctx, code)
}

// classify does not recover; AnalyzeWithMLIntegration handles panics itself.
func (e *Engine) classify(ctx context.Context, code string) *mlclient.Classification {
	cls := e.consult(ctx, code)
	metrics.MLClassificationsTotal.WithLabelValues(cls.Status).Inc()
	return cls
}

func (e *Engine) consult(ctx context.Context, code string) *mlclient.Classification {
	if e.classifier == nil {
		return mlclient.SafeSentinel(mlclient.StatusDisabled, mlclient.ErrDisabled)
	}

	res, err := e.classifier.Classify(ctx, code)
	switch {
	case err != nil:
		status := mlclient.StatusFor(err)
		if status == mlclient.StatusError {
			e.logger.Error("classifier returned unexpected data", "error", err)
		} else if status != mlclient.StatusDisabled {
			e.logger.Warn("classifier degraded, using rules only", "status", status, "error", err)
		}
		return mlclient.SafeSentinel(status, err)
	case res == nil:
		e.logger.Error("classifier returned no result")
		return mlclient.SafeSentinel(mlclient.StatusError, errEmptyClassification)
	}
	if res.Status == "" {
		res.Status = mlclient.StatusOK
	}
	return res
}

// AnalyzeWithMLIntegration computes the rules verdict and, when source code
// is given, blends in the classifier score. A confident classifier
// (confidence > 0.3) gets 60% of the weight, otherwise 20%. If the
// classifier falls back, the rules verdict is returned tagged rules_only.
// Any panic on the ML path yields the rules verdict tagged
// rules_only_fallback.
func (e *Engine) AnalyzeWithMLIntegration(ctx context.Context, domain string, permissions []string, findings []*analyzer.Finding, code string) (v *Verdict) {
	ctx, span := traces.StartSpan(ctx, "risk.AnalyzeWithMLIntegration",
		traces.Domain(domain), traces.PackageCount(len(findings)))
	defer span.End()

	rs := scoreRules(domain, permissions, findings)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ml integration failed, falling back to rules", "panic", r)
			v = e.verdict(rs, rs.final, MethodRulesOnlyFallback)
			v.Details.Error = fmt.Sprint(r)
		}
		span.SetAttributes(traces.RiskLevel(string(v.RiskLevel)), traces.AnalysisMethod(v.Details.AnalysisMethod))
		metrics.VerdictsTotal.WithLabelValues(string(v.RiskLevel), v.Details.AnalysisMethod).Inc()
	}()

	if strings.TrimSpace(code) == "" {
		return e.verdict(rs, rs.final, MethodRules)
	}

	cls := e.classify(ctx, code)
	if cls.IsFallback() {
		v = e.verdict(rs, rs.final, MethodRulesOnly)
		v.Details.MLStatus = cls.Status
		v.Details.MLError = cls.Error
		return v
	}

	mlScore := float64(cls.RiskScore) / 100
	mlWeight := rulesTrustedMLWeight
	if cls.Confidence > mlTrustedConfidence {
		mlWeight = mlTrustedMLWeight
	}
	final := clamp01(mlWeight*mlScore + (1-mlWeight)*rs.final)

	v = e.verdict(rs, final, MethodMLIntegrated)
	v.Reasons = append(v.Reasons, fmt.Sprintf("ML classification: %s (risk %d/100, confidence %.2f)",
		cls.Label, cls.RiskScore, cls.Confidence))

	ruleFinal := round2(rs.final)
	mlRounded := round2(mlScore)
	mlScore100 := cls.RiskScore
	mlConfidence := round2(cls.Confidence)
	v.Details.RuleScore = &ruleFinal
	v.Details.MLScore = &mlRounded
	v.Details.MLRiskScore100 = &mlScore100
	v.Details.MLConfidence = &mlConfidence
	v.Details.MLProbabilities = cls.Probabilities
	v.Details.MLClassification = cls.Label
	v.Details.MLModelVersion = cls.ModelVersion
	v.Details.MLStatus = cls.Status
	return v
}
