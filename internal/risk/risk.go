// Package risk scores a dApp connection request along three dimensions
// (requesting domain, requested wallet permissions, static findings for the
// packages it touches) and blends them into a single verdict, optionally
// mixing in the ML classifier's opinion of the package source.
//
// Scores range from 0.0 (safe) to 1.0. The engine is a pure computation per
// call and never persists anything.
package risk

import (
	"math"
	"time"
)

// Level is a risk bucket.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Rank orders levels for comparisons. Unknown levels rank below SAFE.
func (l Level) Rank() int {
	switch l {
	case LevelSafe:
		return 1
	case LevelLow:
		return 2
	case LevelMedium:
		return 3
	case LevelHigh:
		return 4
	case LevelCritical:
		return 5
	default:
		return 0
	}
}

// AboveLow reports whether l warrants an alert.
func (l Level) AboveLow() bool { return l.Rank() > LevelLow.Rank() }

// Thresholds on the final score.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.4
)

// Dimension weights and the single-dimension override factor.
const (
	weightDomain     = 0.5
	weightPermission = 0.3
	weightPackage    = 0.2
	overrideFactor   = 0.8
)

// Analysis methods recorded in Details.AnalysisMethod.
const (
	MethodRules             = "rules"
	MethodMLIntegrated      = "ml_integrated"
	MethodRulesOnly         = "rules_only"
	MethodRulesOnlyFallback = "rules_only_fallback"
)

// Recommendations per level.
const (
	RecommendReject  = "Reject - high security risk detected"
	RecommendWarn    = "Warning - proceed with caution"
	RecommendApprove = "Approve - low risk detected"
)

// DomainRisk is the domain dimension result.
type DomainRisk struct {
	Score   float64
	Reasons []string
}

// PermissionRisk is the permission dimension result.
type PermissionRisk struct {
	Score       float64
	Reasons     []string
	HighCount   int
	MediumCount int
}

// PackageRisk is the package dimension result.
type PackageRisk struct {
	Score         float64
	Reasons       []string
	AnalyzedCount int
}

// Breakdown holds per-dimension and combined scores, rounded to 2 decimals.
type Breakdown struct {
	DomainRisk     float64 `json:"domain_risk"`
	PermissionRisk float64 `json:"permission_risk"`
	PackageRisk    float64 `json:"package_risk"`
	WeightedScore  float64 `json:"weighted_score"`
	FinalScore     float64 `json:"final_score"`
}

// Details carries metadata about how a verdict was produced.
type Details struct {
	AnalyzedPackages    int       `json:"analyzed_packages"`
	HighRiskPermissions int       `json:"high_risk_permissions"`
	Timestamp           time.Time `json:"timestamp"`
	AnalysisMethod      string    `json:"analysis_method"`

	RuleScore        *float64           `json:"rule_score,omitempty"`
	MLScore          *float64           `json:"ml_score,omitempty"`
	MLRiskScore100   *int               `json:"ml_risk_score_100,omitempty"`
	MLConfidence     *float64           `json:"ml_confidence,omitempty"`
	MLProbabilities  map[string]float64 `json:"ml_probabilities,omitempty"`
	MLClassification string             `json:"ml_classification,omitempty"`
	MLModelVersion   string             `json:"ml_model_version,omitempty"`
	MLStatus         string             `json:"ml_status,omitempty"`
	MLError          string             `json:"ml_error,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Verdict is the engine's answer for one analysis request.
type Verdict struct {
	RiskLevel      Level     `json:"risk_level"`
	Confidence     float64   `json:"confidence"`
	Reasons        []string  `json:"reasons"`
	Recommendation string    `json:"recommendation"`
	Breakdown      Breakdown `json:"risk_breakdown"`
	Details        Details   `json:"details"`
}

// Score100 is the final score on a 0-100 scale.
func (v *Verdict) Score100() int {
	if v == nil {
		return 0
	}
	return int(math.Round(v.Breakdown.FinalScore * 100))
}

// MLUsed reports whether the classifier contributed to the verdict.
func (v *Verdict) MLUsed() bool {
	return v != nil && v.Details.AnalysisMethod == MethodMLIntegrated
}

func levelFor(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

func recommendationFor(l Level) string {
	switch l {
	case LevelHigh, LevelCritical:
		return RecommendReject
	case LevelMedium:
		return RecommendWarn
	default:
		return RecommendApprove
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
