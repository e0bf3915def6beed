// Package analyzer scans decompiled Sui Move source for dangerous functions,
// suspicious calls and high-risk keywords, producing one Finding per package.
//
// Analysis is a pure function of the source text. Fetching the source is the
// caller's job; an empty source yields a failed Finding rather than an error.
package analyzer

import (
	"regexp"
	"strings"
)

// PermissionLevel buckets the total number of matched tokens.
type PermissionLevel string

const (
	PermissionLow    PermissionLevel = "low"
	PermissionMedium PermissionLevel = "medium"
	PermissionHigh   PermissionLevel = "high"
)

// Status is the terminal state of a package analysis.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed" // source could not be obtained
	StatusError   Status = "error"  // unexpected data or internal failure
)

// Thresholds on total matches for the derived permission level.
const (
	highPermissionMatches   = 10
	mediumPermissionMatches = 5
)

var (
	entryFunRegex  = regexp.MustCompile(`entry\s+fun\s+(\w+)`)
	publicFunRegex = regexp.MustCompile(`public\s+fun\s+(\w+)`)
)

// Finding is the static analysis result for one package.
type Finding struct {
	PackageID          string          `json:"package_id"`
	DangerousFunctions []string        `json:"dangerous_functions"`
	SuspiciousCalls    []string        `json:"suspicious_calls"`
	HighRiskKeywords   []string        `json:"high_risk_keywords"`
	PermissionLevel    PermissionLevel `json:"permission_level,omitempty"`
	ComplexityScore    int             `json:"complexity_score"`
	EntryFunctions     []string        `json:"entry_functions"`
	SourceLines        int             `json:"source_lines"`
	ModuleCount        int             `json:"module_count"`
	Status             Status          `json:"status"`
	Error              string          `json:"error,omitempty"`
}

// OK reports whether the finding carries usable analysis data.
func (f *Finding) OK() bool {
	return f != nil && f.Status == StatusSuccess
}

// TotalMatches is the number of matched tokens across all three lists.
func (f *Finding) TotalMatches() int {
	return len(f.DangerousFunctions) + len(f.SuspiciousCalls) + len(f.HighRiskKeywords)
}

// Failed returns a finding for a package whose source could not be fetched.
func Failed(packageID, reason string) *Finding {
	return &Finding{PackageID: packageID, Status: StatusFailed, Error: reason}
}

// Errored returns a finding for a package whose analysis hit an unexpected error.
func Errored(packageID string, err error) *Finding {
	msg := "analysis failed"
	if err != nil {
		msg = err.Error()
	}
	return &Finding{PackageID: packageID, Status: StatusError, Error: msg}
}

// Analyze scans source and returns the finding for packageID.
func Analyze(source, packageID string) *Finding {
	if source == "" {
		return Failed(packageID, "source code unavailable")
	}

	dangerous := matchAll(source, dangerousFunctions)
	suspicious := matchAll(source, suspiciousCalls)
	keywords := matchFold(source, highRiskKeywords)

	return &Finding{
		PackageID:          packageID,
		DangerousFunctions: dangerous,
		SuspiciousCalls:    suspicious,
		HighRiskKeywords:   keywords,
		PermissionLevel:    permissionLevel(len(dangerous) + len(suspicious) + len(keywords)),
		ComplexityScore:    ComplexityScore(source),
		EntryFunctions:     EntryFunctions(source),
		SourceLines:        lineCount(source),
		ModuleCount:        strings.Count(source, moduleMarker),
		Status:             StatusSuccess,
	}
}

// ComplexityScore is lines + 10 per function declaration + 5 per struct declaration.
func ComplexityScore(source string) int {
	if source == "" {
		return 0
	}
	return lineCount(source) +
		10*strings.Count(source, functionMarker) +
		5*strings.Count(source, structMarker)
}

// EntryFunctions returns the de-duplicated names of entry and public functions.
func EntryFunctions(source string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, re := range []*regexp.Regexp{entryFunRegex, publicFunRegex} {
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}
	return names
}

func permissionLevel(total int) PermissionLevel {
	switch {
	case total >= highPermissionMatches:
		return PermissionHigh
	case total >= mediumPermissionMatches:
		return PermissionMedium
	default:
		return PermissionLow
	}
}

func matchAll(source string, tokens []string) []string {
	found := []string{}
	for _, tok := range tokens {
		if strings.Contains(source, tok) {
			found = append(found, tok)
		}
	}
	return found
}

func matchFold(source string, tokens []string) []string {
	lower := strings.ToLower(source)
	found := []string{}
	for _, tok := range tokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			found = append(found, tok)
		}
	}
	return found
}

func lineCount(source string) int {
	return strings.Count(source, "\n") + 1
}
