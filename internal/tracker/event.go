package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/suiguard/suiguard/internal/analyzer"
	"github.com/suiguard/suiguard/internal/idgen"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/suirpc"
)

// EventPackagePublished is the only event type the scanner emits today.
const EventPackagePublished = "package_published"

// ContractEvent is a newly published package attributed to a tracked protocol.
type ContractEvent struct {
	PackageID   string    `json:"package_id"`
	Protocol    string    `json:"protocol"`
	Deployer    string    `json:"deployer"`
	Timestamp   time.Time `json:"timestamp"`
	TxDigest    string    `json:"transaction_digest"`
	BlockHeight *uint64   `json:"block_height,omitempty"`
	GasUsed     *uint64   `json:"gas_used,omitempty"`
	Modules     []string  `json:"modules"`
	EventType   string    `json:"event_type"`
}

func eventFromPublished(p suirpc.PublishedPackage, protocolName string) ContractEvent {
	return ContractEvent{
		PackageID:   p.PackageID,
		Protocol:    protocolName,
		Deployer:    p.Sender,
		Timestamp:   time.UnixMilli(int64(p.TimestampMs)).UTC(),
		TxDigest:    p.TxDigest,
		BlockHeight: p.Checkpoint,
		GasUsed:     p.GasUsed,
		Modules:     p.Modules,
		EventType:   EventPackagePublished,
	}
}

// MLAnalysis summarizes the classifier's part in a report.
type MLAnalysis struct {
	AnalysisMethod string  `json:"analysis_method"`
	Classification string  `json:"classification,omitempty"`
	RiskScore      *int    `json:"risk_score,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	ModelVersion   string  `json:"model_version,omitempty"`
	Status         string  `json:"status,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Report is the tracker's risk report for one detected package. Score and
// confidence are on a 0-100 scale.
type Report struct {
	ID              string      `json:"id"`
	PackageID       string      `json:"package_id"`
	Protocol        string      `json:"protocol"`
	Deployer        string      `json:"deployer"`
	TxDigest        string      `json:"transaction_digest"`
	RiskLevel       risk.Level  `json:"risk_level"`
	RiskScore       int         `json:"risk_score"`
	Confidence      float64     `json:"confidence"`
	Vulnerabilities []string    `json:"vulnerabilities"`
	SecurityIssues  []string    `json:"security_issues"`
	Recommendations []string    `json:"recommendations"`
	MLAnalysis      *MLAnalysis `json:"ml_analysis,omitempty"`
	AnalyzerVersion string      `json:"analyzer_version"`
	AnalyzedAt      time.Time   `json:"analyzed_at"`
}

// HighRisk reports whether the report counts toward high_risk_found.
func (r *Report) HighRisk() bool {
	return r.RiskLevel.Rank() >= risk.LevelHigh.Rank()
}

// Analyzer versions recorded on reports.
const (
	analyzerVersion   = "v1.0"
	analyzerVersionML = "v1.0-ml"
)

// BuildReport turns a verdict and the package finding behind it into a
// report. Vulnerabilities come from the static finding and the classifier;
// when neither names anything, level-based defaults are used.
func BuildReport(ev ContractEvent, v *risk.Verdict, f *analyzer.Finding, now time.Time) *Report {
	r := &Report{
		ID:              idgen.New("rpt_"),
		PackageID:       ev.PackageID,
		Protocol:        ev.Protocol,
		Deployer:        ev.Deployer,
		TxDigest:        ev.TxDigest,
		RiskLevel:       v.RiskLevel,
		RiskScore:       v.Score100(),
		Confidence:      round1(v.Confidence * 100),
		SecurityIssues:  append([]string(nil), v.Reasons...),
		AnalyzerVersion: analyzerVersion,
		AnalyzedAt:      now.UTC(),
	}

	if f != nil {
		for _, fn := range f.DangerousFunctions {
			r.Vulnerabilities = append(r.Vulnerabilities, "Dangerous function: "+fn)
		}
		for _, c := range f.SuspiciousCalls {
			r.Vulnerabilities = append(r.Vulnerabilities, "Suspicious call: "+c)
		}
		for _, k := range f.HighRiskKeywords {
			r.Vulnerabilities = append(r.Vulnerabilities, "High-risk keyword: "+k)
		}
		if !f.OK() && f.Error != "" {
			r.SecurityIssues = append(r.SecurityIssues, "Package analysis incomplete: "+f.Error)
		}
	}

	d := v.Details
	ml := &MLAnalysis{AnalysisMethod: d.AnalysisMethod, Status: d.MLStatus, Error: d.MLError}
	if v.MLUsed() {
		r.AnalyzerVersion = analyzerVersionML
		ml.Classification = d.MLClassification
		ml.RiskScore = d.MLRiskScore100
		ml.ModelVersion = d.MLModelVersion
		if d.MLConfidence != nil {
			ml.Confidence = *d.MLConfidence
		}
		if d.MLClassification != "" && d.MLClassification != "safe" && d.MLRiskScore100 != nil {
			r.Vulnerabilities = append(r.Vulnerabilities,
				fmt.Sprintf("ML classification: %s (risk %d/100)", d.MLClassification, *d.MLRiskScore100))
		}
	}
	r.MLAnalysis = ml

	if len(r.Vulnerabilities) == 0 {
		r.Vulnerabilities = defaultVulnerabilities(r.RiskLevel)
	}
	r.Recommendations = append([]string{v.Recommendation}, defaultRecommendations(r.RiskLevel)...)
	return r
}

func defaultVulnerabilities(l risk.Level) []string {
	switch l {
	case risk.LevelCritical:
		return []string{
			"Potential reentrancy vulnerability",
			"Unauthorized privilege escalation risk",
			"Funds may be locked or lost",
		}
	case risk.LevelHigh:
		return []string{
			"Improper permission management",
			"Potential integer overflow",
			"Logic errors that may lead to loss of funds",
		}
	case risk.LevelMedium:
		return []string{
			"Minor security configuration issues",
			"Regions of high code complexity",
			"Potential gas inefficiencies",
		}
	default:
		return []string{
			"No obvious vulnerabilities found",
			"Routine security audit recommended",
		}
	}
}

func defaultRecommendations(l risk.Level) []string {
	switch l {
	case risk.LevelCritical:
		return []string{
			"Stop using the contract and run an emergency security audit",
			"Engage a professional security team for in-depth analysis",
			"Test any fixed version thoroughly before deployment",
		}
	case risk.LevelHigh:
		return []string{
			"Commission a professional security audit",
			"Strengthen access control and input validation",
			"Test thoroughly before deployment",
		}
	case risk.LevelMedium:
		return []string{
			"Perform a code review",
			"Optimize gas usage",
			"Improve error handling",
		}
	default:
		return []string{
			"Keep following good development practices",
			"Apply security updates regularly",
			"Monitor contract behaviour",
		}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
