package risk

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/suiguard/suiguard/internal/analyzer"
)

// Keyword lists are slices so that reasons come out in a fixed order.
var (
	maliciousDomainKeywords = []string{
		"phishing", "fake", "scam", "steal", "malicious", "hack",
		"fraud", "theft", "fishing", "wallet-stealer", "crypto-steal",
		"bitcoin-scam", "eth-fake", "sui-fake", "defi-scam", "nft-steal",
		"metamask-fake", "phantom-fake", "ledger-fake", "trezor-fake",
	}

	suspiciousDomainKeywords = []string{
		"free", "bonus", "gift", "earn", "quick", "fast", "easy",
		"double", "triple", "profit", "money", "rich", "millionaire",
		"lottery", "winner", "prize", "reward", "airdrop-free",
	}

	trustedDomains = []string{
		"sui.io", "mysten.io", "suiwallet.com", "ethoswallet.com",
		"martianwallet.xyz", "github.com", "chrome.google.com",
	}
)

// Wallet permission classes.
var (
	highRiskPermissions = map[string]bool{
		"wallet:sign":        true,
		"wallet:transfer":    true,
		"wallet:approve_all": true,
		"wallet:delegate":    true,
		"wallet:admin":       true,
	}
	mediumRiskPermissions = map[string]bool{
		"wallet:read_balance": true,
		"wallet:read_history": true,
		"wallet:connect":      true,
	}
)

const (
	permSign     = "wallet:sign"
	permTransfer = "wallet:transfer"
)

// officialPackages are the Move stdlib, Sui framework and Sui system
// packages, keyed by address with leading zeros stripped.
var officialPackages = map[string]bool{"1": true, "2": true, "3": true}

// IsOfficialPackage reports whether id is one of the framework packages.
// Both the short (0x2) and the canonical 66-character forms are accepted.
func IsOfficialPackage(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if !strings.HasPrefix(id, "0x") {
		return false
	}
	return officialPackages[strings.TrimLeft(id[2:], "0")]
}

// AnalyzeDomainRisk scores the requesting domain. A trusted domain returns
// 0 immediately, whatever else the name contains.
func AnalyzeDomainRisk(domain string) DomainRisk {
	lower := strings.ToLower(domain)

	for _, trusted := range trustedDomains {
		if strings.Contains(lower, trusted) {
			return DomainRisk{Score: 0, Reasons: []string{"Trusted domain: " + trusted}}
		}
	}

	var score float64
	reasons := []string{}

	for _, kw := range maliciousDomainKeywords {
		if strings.Contains(lower, kw) {
			score += 0.8
			reasons = append(reasons, "High-risk domain pattern: "+kw)
		}
	}
	for _, kw := range suspiciousDomainKeywords {
		if strings.Contains(lower, kw) {
			score += 0.3
			reasons = append(reasons, "Suspicious domain pattern: "+kw)
		}
	}

	if len(domain) > 30 {
		score += 0.2
		reasons = append(reasons, "Unusually long domain name")
	}
	if strings.Count(domain, "-") > 2 {
		score += 0.3
		reasons = append(reasons, "Domain contains too many hyphens")
	}

	var digits, letters int
	for _, r := range domain {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters > 0 && digits > 3 {
		score += 0.2
		reasons = append(reasons, "Suspicious mix of digits and letters")
	}

	return DomainRisk{Score: clamp01(score), Reasons: reasons}
}

// AnalyzePermissionRisk scores the wallet permissions a dApp requests.
func AnalyzePermissionRisk(permissions []string) PermissionRisk {
	var score float64
	var high, medium int
	var hasSign, hasXfer bool
	reasons := []string{}

	for _, p := range permissions {
		switch {
		case highRiskPermissions[p]:
			score += 0.4
			high++
			reasons = append(reasons, "High-risk permission requested: "+p)
		case mediumRiskPermissions[p]:
			score += 0.2
			medium++
			reasons = append(reasons, "Medium-risk permission requested: "+p)
		}
		switch p {
		case permSign:
			hasSign = true
		case permTransfer:
			hasXfer = true
		}
	}

	switch n := len(permissions); {
	case n > 5:
		score += 0.3
		reasons = append(reasons, fmt.Sprintf("Excessive permissions requested: %d", n))
	case n > 3:
		score += 0.1
		reasons = append(reasons, fmt.Sprintf("Many permissions requested: %d", n))
	}

	if hasSign && hasXfer {
		score += 0.2
		reasons = append(reasons, "Dangerous permission combination: sign + transfer")
	}

	return PermissionRisk{
		Score:       clamp01(score),
		Reasons:     reasons,
		HighCount:   high,
		MediumCount: medium,
	}
}

// AnalyzePackageRisk scores the static findings of the touched packages.
// Findings that did not succeed are ignored; official packages are trusted
// and contribute nothing.
func AnalyzePackageRisk(findings []*analyzer.Finding) PackageRisk {
	var score float64
	reasons := []string{}
	analyzed := 0

	for _, f := range findings {
		if !f.OK() {
			continue
		}
		analyzed++

		if IsOfficialPackage(f.PackageID) {
			reasons = append(reasons, "Official Sui package - verified safe")
			continue
		}

		switch n := len(f.DangerousFunctions); {
		case n > 10:
			score += 0.4
			reasons = append(reasons, fmt.Sprintf("Large number of dangerous functions detected: %d", n))
		case n > 5:
			score += 0.2
			reasons = append(reasons, fmt.Sprintf("Multiple dangerous functions detected: %d", n))
		}
	}

	return PackageRisk{Score: clamp01(score), Reasons: reasons, AnalyzedCount: analyzed}
}
