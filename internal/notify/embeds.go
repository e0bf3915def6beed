package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/suiguard/suiguard/internal/protocol"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/tracker"
)

const (
	usernameMonitor  = "SuiGuard Monitor"
	usernameAnalyzer = "SuiGuard Risk Analyzer"
	usernameSystem   = "SuiGuard System"

	footerMonitor = "SuiGuard Package Monitor"
	explorerTxURL = "https://suiexplorer.com/txblock/"
)

// Embed colours.
const (
	colorDetection = 0x3498db
	colorStartup   = 0x00ff00
	colorError     = 0xff0000
	colorMedium    = 0xFFA500
	colorHigh      = 0xFF4500
	colorCritical  = 0xFF0000
)

// Payload is a Discord webhook message.
type Payload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []Embed `json:"embeds"`
}

// Embed is one Discord rich embed.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

func contractEmbed(ev tracker.ContractEvent) Embed {
	gas := "N/A"
	if ev.GasUsed != nil {
		gas = fmt.Sprint(*ev.GasUsed)
	}
	info := protocol.Lookup(ev.Protocol)
	desc := fmt.Sprintf("A new %s package was published", info.Name)
	if info.Description != "" {
		desc += " (" + strings.ToLower(info.Description) + ")"
	}
	return Embed{
		Title:       "🔍 New contract deployment - " + info.Name,
		Description: desc,
		Color:       colorDetection,
		Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		Fields: []Field{
			{Name: "📦 Package ID", Value: "`" + ev.PackageID + "`"},
			{Name: "👤 Deployer", Value: "`" + ev.Deployer + "`", Inline: true},
			{Name: "🏷️ Protocol", Value: info.Name, Inline: true},
			{Name: "⛽ Gas used", Value: gas, Inline: true},
			{Name: "🔗 Transaction", Value: fmt.Sprintf("[View details](%s%s)", explorerTxURL, ev.TxDigest)},
		},
		Footer: &Footer{Text: footerMonitor},
	}
}

func riskEmbed(ev tracker.ContractEvent, r *tracker.Report, now time.Time) Embed {
	method, version := risk.MethodRulesOnly, "v1.0"
	if r.MLAnalysis != nil {
		if r.MLAnalysis.AnalysisMethod != "" {
			method = r.MLAnalysis.AnalysisMethod
		}
		if r.MLAnalysis.ModelVersion != "" {
			version = r.MLAnalysis.ModelVersion
		}
	}

	info := protocol.Lookup(ev.Protocol)
	e := Embed{
		Title:       fmt.Sprintf("%s Risk analysis - %s", levelIcon(r.RiskLevel), info.Name),
		Description: fmt.Sprintf("Security risk detected in a %s package", info.Name),
		Color:       levelColor(r.RiskLevel),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Fields: []Field{
			{Name: "🆔 Package ID", Value: "`" + ev.PackageID + "`"},
			{Name: "📊 Risk score", Value: fmt.Sprintf("**%d/100** (%s)", r.RiskScore, r.RiskLevel), Inline: true},
			{Name: "🎯 Confidence", Value: fmt.Sprintf("%.1f%%", r.Confidence), Inline: true},
			{Name: "🤖 Analysis method", Value: strings.ToUpper(method), Inline: true},
		},
		Footer: &Footer{Text: fmt.Sprintf("%s • Model %s", footerMonitor, version)},
	}
	if info.RiskThreshold > 0 {
		verdict := "below"
		if info.Exceeds(r.RiskScore) {
			verdict = "**exceeded**"
		}
		e.Fields = append(e.Fields, Field{
			Name:   "🎚️ Protocol threshold",
			Value:  fmt.Sprintf("%d/100 (%s)", int(info.RiskThreshold*100+0.5), verdict),
			Inline: true,
		})
	}
	if v := bulletList(r.Vulnerabilities, 3, "vulnerabilities"); v != "" {
		e.Fields = append(e.Fields, Field{Name: "🔍 Vulnerabilities", Value: v})
	}
	if v := bulletList(r.SecurityIssues, 2, "issues"); v != "" {
		e.Fields = append(e.Fields, Field{Name: "⚠️ Security issues", Value: v})
	}
	if v := bulletList(r.Recommendations, 2, "recommendations"); v != "" {
		e.Fields = append(e.Fields, Field{Name: "💡 Recommendations", Value: v})
	}
	return e
}

func startupEmbed(message string, now time.Time) Embed {
	return Embed{
		Title:       "🚀 System started",
		Description: message,
		Color:       colorStartup,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Footer:      &Footer{Text: "SuiGuard System Monitor"},
	}
}

func errorEmbed(message string, now time.Time) Embed {
	return Embed{
		Title:       "❌ System error",
		Description: message,
		Color:       colorError,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Footer:      &Footer{Text: "SuiGuard Error Monitor"},
	}
}

// bulletList renders up to limit items, noting how many were left out.
func bulletList(items []string, limit int, noun string) string {
	if len(items) == 0 {
		return ""
	}
	shown := items
	if len(shown) > limit {
		shown = shown[:limit]
	}
	var b strings.Builder
	for i, it := range shown {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• " + it)
	}
	if extra := len(items) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n... and %d more %s", extra, noun)
	}
	return b.String()
}

func levelColor(l risk.Level) int {
	switch l {
	case risk.LevelCritical:
		return colorCritical
	case risk.LevelHigh:
		return colorHigh
	default:
		return colorMedium
	}
}

func levelIcon(l risk.Level) string {
	switch l {
	case risk.LevelCritical:
		return "🔴"
	case risk.LevelHigh:
		return "🚨"
	default:
		return "⚠️"
	}
}
