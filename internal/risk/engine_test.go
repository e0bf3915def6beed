package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/mlclient"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine().WithClock(func() time.Time { return fixedNow })
}

// finding builds a successful finding with n distinct dangerous matches.
func finding(id string, n int) *analyzer.Finding {
	f := &analyzer.Finding{PackageID: id, Status: analyzer.StatusSuccess}
	for i := 0; i < n; i++ {
		f.DangerousFunctions = append(f.DangerousFunctions, fmt.Sprintf("fn%d(", i))
	}
	return f
}

const untrusted = "0x5f2c9a1e0b4d3c2a1908f7e6d5c4b3a2918f7e6d5c4b3a2918f7e6d5c4b3a291"

type fakeClassifier struct {
	cls   *mlclient.Classification
	err   error
	panic any
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, code string) (*mlclient.Classification, error) {
	f.calls++
	if f.panic != nil {
		panic(f.panic)
	}
	return f.cls, f.err
}

func critical(confidence float64) *mlclient.Classification {
	return &mlclient.Classification{
		Label:          mlclient.LabelCapabilityLeak,
		Probabilities:  map[string]float64{mlclient.LabelCapabilityLeak: 0.9, mlclient.LabelSafe: 0.1},
		MaxProbability: 0.9,
		Confidence:     confidence,
		RiskScore:      89,
		Status:         mlclient.StatusOK,
	}
}

func TestAnalyzeDomainRisk(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   float64
	}{
		{"neutral", "example.org", 0},
		{"malicious keyword", "phishing.com", 0.8},
		{"three suspicious keywords", "free-bonus-gift.com", 0.9},
		{"digits with letters", "abc1234.com", 0.2},
		{"three digits are fine", "web123.net", 0},
		{"too many hyphens", "a-b-c-d.com", 0.3},
		{"saturates at one", "scam-phishing-fake.com", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AnalyzeDomainRisk(tt.domain).Score, 1e-9)
		})
	}
}

func TestAnalyzeDomainRisk_TrustedShortCircuits(t *testing.T) {
	for _, d := range []string{"sui.io", "wallet.SUI.IO", "phishing-scam-fake.github.com"} {
		r := AnalyzeDomainRisk(d)
		assert.Zero(t, r.Score, d)
		require.Len(t, r.Reasons, 1, d)
		assert.Contains(t, r.Reasons[0], "Trusted domain")
	}
}

func TestAnalyzeDomainRisk_ReasonOrder(t *testing.T) {
	r := AnalyzeDomainRisk("free-scam.com")
	assert.Equal(t, []string{
		"High-risk domain pattern: scam",
		"Suspicious domain pattern: free",
	}, r.Reasons)
}

func TestAnalyzePermissionRisk(t *testing.T) {
	tests := []struct {
		name  string
		perms []string
		want  float64
	}{
		{"none", nil, 0},
		{"single high", []string{"wallet:sign"}, 0.4},
		{"unknown ignored", []string{"wallet:unknown"}, 0},
		{"four medium-ish", []string{"wallet:connect", "wallet:read_balance", "wallet:read_history", "x"}, 0.7},
		{"high without combo", []string{"wallet:sign", "wallet:delegate"}, 0.8},
		{"sign plus transfer", []string{"wallet:sign", "wallet:transfer"}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AnalyzePermissionRisk(tt.perms).Score, 1e-9)
		})
	}
}

func TestAnalyzePermissionRisk_CombinationBonus(t *testing.T) {
	without := AnalyzePermissionRisk([]string{"wallet:sign", "wallet:read_balance", "wallet:transfer_x"})
	with := AnalyzePermissionRisk([]string{"wallet:sign", "wallet:read_balance", "wallet:transfer"})

	assert.InDelta(t, 0.6, without.Score, 1e-9)
	// +0.4 for transfer, +0.2 for the combination, clamped
	assert.InDelta(t, 1.0, with.Score, 1e-9)
	assert.Contains(t, with.Reasons, "Dangerous permission combination: sign + transfer")
	assert.Equal(t, 2, with.HighCount)
	assert.Equal(t, 1, with.MediumCount)
}

func TestAnalyzePermissionRisk_CountTiers(t *testing.T) {
	six := []string{"a", "b", "c", "d", "e", "f"}
	r := AnalyzePermissionRisk(six)
	assert.InDelta(t, 0.3, r.Score, 1e-9)
	assert.Equal(t, []string{"Excessive permissions requested: 6"}, r.Reasons)
}

func TestAnalyzePackageRisk(t *testing.T) {
	findings := []*analyzer.Finding{
		finding(untrusted, 12),
		finding("0x2", 30),
		analyzer.Failed("0xdead", "source code unavailable"),
		nil,
	}
	r := AnalyzePackageRisk(findings)

	assert.InDelta(t, 0.4, r.Score, 1e-9)
	assert.Equal(t, 2, r.AnalyzedCount)
	assert.Equal(t, []string{
		"Large number of dangerous functions detected: 12",
		"Official Sui package - verified safe",
	}, r.Reasons)
}

func TestAnalyzePackageRisk_MultipleTier(t *testing.T) {
	r := AnalyzePackageRisk([]*analyzer.Finding{finding(untrusted, 6), finding(untrusted, 5)})
	assert.InDelta(t, 0.2, r.Score, 1e-9)
}

func TestIsOfficialPackage(t *testing.T) {
	assert.True(t, IsOfficialPackage("0x2"))
	assert.True(t, IsOfficialPackage("0x0000000000000000000000000000000000000000000000000000000000000003"))
	assert.False(t, IsOfficialPackage("0x4"))
	assert.False(t, IsOfficialPackage("2"))
	assert.False(t, IsOfficialPackage(untrusted))
}

func TestCalculateOverallRisk_SingleDimensionOverride(t *testing.T) {
	v := newTestEngine().CalculateOverallRisk("free-bonus-gift.com", nil, nil)

	assert.Equal(t, LevelHigh, v.RiskLevel)
	assert.InDelta(t, 0.72, v.Confidence, 1e-9)
	assert.InDelta(t, 0.9, v.Breakdown.DomainRisk, 1e-9)
	assert.InDelta(t, 0.45, v.Breakdown.WeightedScore, 1e-9)
	assert.InDelta(t, 0.72, v.Breakdown.FinalScore, 1e-9)
	assert.Equal(t, RecommendReject, v.Recommendation)
	assert.Equal(t, MethodRules, v.Details.AnalysisMethod)
	assert.Equal(t, 72, v.Score100())
}

func TestCalculateOverallRisk_DangerousPackage(t *testing.T) {
	v := newTestEngine().CalculateOverallRisk("example.org", nil, []*analyzer.Finding{finding(untrusted, 12)})

	assert.InDelta(t, 0.4, v.Breakdown.PackageRisk, 1e-9)
	assert.InDelta(t, 0.08, v.Breakdown.WeightedScore, 1e-9)
	assert.InDelta(t, 0.32, v.Breakdown.FinalScore, 1e-9)
	assert.Equal(t, LevelMedium, v.RiskLevel)
	assert.Equal(t, RecommendWarn, v.Recommendation)
	assert.Equal(t, 1, v.Details.AnalyzedPackages)
}

func TestCalculateOverallRisk_Low(t *testing.T) {
	v := newTestEngine().CalculateOverallRisk("app.example.org", []string{"wallet:connect"}, nil)

	// 0.3*0.2 = 0.06 vs 0.8*0.2 = 0.16
	assert.Equal(t, LevelLow, v.RiskLevel)
	assert.InDelta(t, 0.16, v.Confidence, 1e-9)
	assert.Equal(t, RecommendApprove, v.Recommendation)
}

func TestCalculateOverallRisk_ReasonOrder(t *testing.T) {
	v := newTestEngine().CalculateOverallRisk("scam.io",
		[]string{"wallet:admin"},
		[]*analyzer.Finding{finding(untrusted, 11)})

	assert.Equal(t, []string{
		"High-risk domain pattern: scam",
		"High-risk permission requested: wallet:admin",
		"Large number of dangerous functions detected: 11",
	}, v.Reasons)
	assert.Equal(t, 1, v.Details.HighRiskPermissions)
}

func TestCalculateOverallRisk_Idempotent(t *testing.T) {
	e := newTestEngine()
	args := func() *Verdict {
		return e.CalculateOverallRisk("free-airdrop-scam-4242.xyz",
			[]string{"wallet:sign", "wallet:transfer", "wallet:connect"},
			[]*analyzer.Finding{finding(untrusted, 7), finding("0x1", 40)})
	}
	a, err := json.Marshal(args())
	require.NoError(t, err)
	b, err := json.Marshal(args())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestVerdictJSONShape(t *testing.T) {
	v := newTestEngine().CalculateOverallRisk("example.org", nil, nil)
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"risk_level", "confidence", "reasons", "recommendation", "risk_breakdown", "details"} {
		assert.Contains(t, m, k)
	}
	details := m["details"].(map[string]any)
	assert.Equal(t, "rules", details["analysis_method"])
	assert.Equal(t, "2025-03-01T10:00:00Z", details["timestamp"])
	assert.NotContains(t, details, "ml_status")
}

func TestClassifyVulnerability_Fallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("no classifier", func(t *testing.T) {
		cls := newTestEngine().ClassifyVulnerability(ctx, "code")
		assert.Equal(t, mlclient.StatusDisabled, cls.Status)
		assert.Equal(t, 0, cls.RiskScore)
	})

	t.Run("timeout", func(t *testing.T) {
		fc := &fakeClassifier{err: fmt.Errorf("%w: deadline", mlclient.ErrTimeout)}
		cls := newTestEngine().WithClassifier(fc).ClassifyVulnerability(ctx, "code")
		assert.Equal(t, mlclient.LabelSafe, cls.Label)
		assert.Equal(t, mlclient.StatusTimeout, cls.Status)
		assert.Equal(t, 0, cls.RiskScore)
		assert.NotEmpty(t, cls.Error)
		assert.InDelta(t, 1.0, cls.Probabilities[mlclient.LabelSafe], 1e-9)
	})

	t.Run("nil result", func(t *testing.T) {
		cls := newTestEngine().WithClassifier(&fakeClassifier{}).ClassifyVulnerability(ctx, "code")
		assert.Equal(t, mlclient.StatusError, cls.Status)
	})

	t.Run("panic", func(t *testing.T) {
		fc := &fakeClassifier{panic: "boom"}
		cls := newTestEngine().WithClassifier(fc).ClassifyVulnerability(ctx, "code")
		assert.Equal(t, mlclient.StatusError, cls.Status)
		assert.Contains(t, cls.Error, "boom")
	})
}

func TestAnalyzeWithMLIntegration_NoCodeSkipsClassifier(t *testing.T) {
	fc := &fakeClassifier{cls: critical(0.9)}
	v := newTestEngine().WithClassifier(fc).AnalyzeWithMLIntegration(context.Background(), "example.org", nil, nil, "  ")

	assert.Equal(t, 0, fc.calls)
	assert.Equal(t, MethodRules, v.Details.AnalysisMethod)
}

func TestAnalyzeWithMLIntegration_ConfidentML(t *testing.T) {
	fc := &fakeClassifier{cls: critical(0.9)}
	v := newTestEngine().WithClassifier(fc).
		AnalyzeWithMLIntegration(context.Background(), "free-bonus-gift.com", nil, nil, "module m {}")

	// 0.6*0.89 + 0.4*0.72
	assert.InDelta(t, 0.82, v.Confidence, 1e-9)
	assert.Equal(t, LevelHigh, v.RiskLevel)
	assert.Equal(t, MethodMLIntegrated, v.Details.AnalysisMethod)
	require.NotNil(t, v.Details.MLRiskScore100)
	assert.Equal(t, 89, *v.Details.MLRiskScore100)
	assert.Equal(t, mlclient.LabelCapabilityLeak, v.Details.MLClassification)
	assert.InDelta(t, 0.9, v.Details.MLProbabilities[mlclient.LabelCapabilityLeak], 1e-9)
	assert.Contains(t, v.Reasons[len(v.Reasons)-1], "ML classification: capability_leak")
	assert.True(t, v.MLUsed())
}

func TestAnalyzeWithMLIntegration_LowConfidenceTrustsRules(t *testing.T) {
	fc := &fakeClassifier{cls: critical(0.2)}
	v := newTestEngine().WithClassifier(fc).
		AnalyzeWithMLIntegration(context.Background(), "example.org", nil, []*analyzer.Finding{finding(untrusted, 12)}, "code")

	// 0.8*0.32 + 0.2*0.89
	assert.InDelta(t, 0.43, v.Confidence, 1e-9)
	assert.Equal(t, LevelMedium, v.RiskLevel)
	require.NotNil(t, v.Details.RuleScore)
	assert.InDelta(t, 0.32, *v.Details.RuleScore, 1e-9)
}

func TestAnalyzeWithMLIntegration_ConfidentSafeLowersBelowFloor(t *testing.T) {
	fc := &fakeClassifier{cls: &mlclient.Classification{
		Label:          mlclient.LabelSafe,
		Probabilities:  map[string]float64{mlclient.LabelSafe: 0.95, mlclient.LabelLogicError: 0.05},
		MaxProbability: 0.95,
		Confidence:     0.95,
		RiskScore:      5,
		Status:         mlclient.StatusOK,
	}}
	e := newTestEngine().WithClassifier(fc)
	findings := []*analyzer.Finding{finding(untrusted, 12)}

	rules := e.CalculateOverallRisk("example.org", nil, findings)
	require.Equal(t, LevelMedium, rules.RiskLevel, "rules alone hit the single-dimension floor")

	v := e.AnalyzeWithMLIntegration(context.Background(), "example.org", nil, findings, "code")

	// 0.6*0.05 + 0.4*0.32
	assert.InDelta(t, 0.16, v.Confidence, 1e-9)
	assert.Equal(t, LevelLow, v.RiskLevel)
	assert.Equal(t, MethodMLIntegrated, v.Details.AnalysisMethod)
	assert.Equal(t, RecommendApprove, v.Recommendation)
}

func TestAnalyzeWithMLIntegration_TimeoutDegradesToRules(t *testing.T) {
	fc := &fakeClassifier{err: mlclient.ErrTimeout}
	e := newTestEngine().WithClassifier(fc)

	v := e.AnalyzeWithMLIntegration(context.Background(), "free-bonus-gift.com", nil, nil, "code")
	rules := e.CalculateOverallRisk("free-bonus-gift.com", nil, nil)

	assert.Equal(t, rules.RiskLevel, v.RiskLevel)
	assert.Equal(t, rules.Confidence, v.Confidence)
	assert.Equal(t, rules.Reasons, v.Reasons)
	assert.Equal(t, MethodRulesOnly, v.Details.AnalysisMethod)
	assert.Equal(t, mlclient.StatusTimeout, v.Details.MLStatus)
	assert.NotEmpty(t, v.Details.MLError)
	assert.Nil(t, v.Details.MLRiskScore100)
	assert.False(t, v.MLUsed())
}

func TestAnalyzeWithMLIntegration_PanicFallsBack(t *testing.T) {
	fc := &fakeClassifier{panic: "model exploded"}
	v := newTestEngine().WithClassifier(fc).
		AnalyzeWithMLIntegration(context.Background(), "free-bonus-gift.com", nil, nil, "code")

	require.NotNil(t, v)
	assert.Equal(t, MethodRulesOnlyFallback, v.Details.AnalysisMethod)
	assert.Equal(t, "model exploded", v.Details.Error)
	assert.Equal(t, LevelHigh, v.RiskLevel)
	assert.InDelta(t, 0.72, v.Confidence, 1e-9)
}

func TestLevel(t *testing.T) {
	assert.True(t, LevelMedium.AboveLow())
	assert.True(t, LevelCritical.AboveLow())
	assert.False(t, LevelLow.AboveLow())
	assert.False(t, LevelSafe.AboveLow())
	assert.False(t, Level("bogus").AboveLow())
}
