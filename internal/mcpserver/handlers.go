package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/suiguard/suiguard/internal/protocol"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client   *Client
	registry *protocol.Registry
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client, registry *protocol.Registry) *Handlers {
	return &Handlers{client: client, registry: registry}
}

// HandleAnalyzePackages runs a connection risk analysis.
func (h *Handlers) HandleAnalyzePackages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("package_ids", nil)
	if len(ids) == 0 {
		return mcp.NewToolResultError("package_ids is required"), nil
	}
	domain := req.GetString("domain", "")

	raw, err := h.client.AnalyzePackages(ctx, ids, domain)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatVerdict(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAnalyzeObject analyzes the package behind an object.
func (h *Handlers) HandleAnalyzeObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectID := req.GetString("object_id", "")
	if objectID == "" {
		return mcp.NewToolResultError("object_id is required"), nil
	}

	raw, err := h.client.AnalyzeObject(ctx, objectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatVerdict(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleIdentifyProtocol attributes a package to a tracked protocol locally.
func (h *Handlers) HandleIdentifyProtocol(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageID := req.GetString("package_id", "")
	if packageID == "" {
		return mcp.NewToolResultError("package_id is required"), nil
	}
	var modules []string
	for _, m := range strings.Split(req.GetString("modules", ""), ",") {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	deployer := req.GetString("deployer", "")

	name := h.registry.Identify(packageID, modules, deployer)
	if name == protocol.Unknown {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Package %s does not match any tracked protocol (%s).",
			packageID, strings.Join(h.registry.Protocols(), ", "))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Package %s belongs to %s.", packageID, name)), nil
}

// HandleMonitorStats returns the monitor counters.
func (h *Handlers) HandleMonitorStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.MonitorStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get monitor stats: %v", err)), nil
	}

	text, err := formatMonitorStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse monitor stats: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandlePackageReports lists stored reports for a package.
func (h *Handlers) HandlePackageReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageID := req.GetString("package_id", "")
	if packageID == "" {
		return mcp.NewToolResultError("package_id is required"), nil
	}
	limit := req.GetInt("limit", 10)

	raw, err := h.client.PackageReports(ctx, packageID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list reports: %v", err)), nil
	}

	text, err := formatReports(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reports: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func formatVerdict(raw json.RawMessage) (string, error) {
	var v struct {
		RiskLevel        string   `json:"risk_level"`
		Confidence       float64  `json:"confidence"`
		Reasons          []string `json:"reasons"`
		Recommendation   string   `json:"recommendation"`
		AnalyzedPackages int      `json:"analyzed_packages"`
		TotalPackages    int      `json:"total_packages"`
		SkippedPackages  []string `json:"skipped_packages"`
		AnalysisMethod   string   `json:"analysis_method"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	if v.RiskLevel == "" {
		return "", fmt.Errorf("response has no risk_level")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk level: %s (confidence %.0f%%)\n", v.RiskLevel, v.Confidence*100)
	fmt.Fprintf(&sb, "Recommendation: %s\n", v.Recommendation)
	fmt.Fprintf(&sb, "Packages analyzed: %d of %d\n", v.AnalyzedPackages, v.TotalPackages)
	if len(v.SkippedPackages) > 0 {
		fmt.Fprintf(&sb, "Skipped (malformed ids): %s\n", strings.Join(v.SkippedPackages, ", "))
	}
	fmt.Fprintf(&sb, "Method: %s\n", v.AnalysisMethod)
	if len(v.Reasons) > 0 {
		sb.WriteString("\nReasons:\n")
		for _, r := range v.Reasons {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	return sb.String(), nil
}

func formatMonitorStats(raw json.RawMessage) (string, error) {
	var resp struct {
		Enabled  bool           `json:"enabled"`
		Channels []string       `json:"channels"`
		Monitor  map[string]any `json:"monitor"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if !resp.Enabled {
		return "Protocol monitor is disabled on this server.", nil
	}

	m := resp.Monitor
	var sb strings.Builder
	sb.WriteString("Protocol Monitor:\n")
	fmt.Fprintf(&sb, "  State: %s\n", getString(m, "state"))
	if v, ok := getFloat(m, "contracts_detected"); ok {
		fmt.Fprintf(&sb, "  Packages detected: %.0f\n", v)
	}
	if v, ok := getFloat(m, "high_risk_found"); ok {
		fmt.Fprintf(&sb, "  High risk: %.0f\n", v)
	}
	if v, ok := getFloat(m, "notifications_sent"); ok {
		fmt.Fprintf(&sb, "  Alerts sent: %.0f\n", v)
	}
	if v, ok := getFloat(m, "last_checkpoint"); ok {
		fmt.Fprintf(&sb, "  Last checkpoint: %.0f\n", v)
	}
	if len(resp.Channels) > 0 {
		fmt.Fprintf(&sb, "  Alert channels: %s\n", strings.Join(resp.Channels, ", "))
	}
	return sb.String(), nil
}

func formatReports(raw json.RawMessage) (string, error) {
	var resp struct {
		PackageID string           `json:"package_id"`
		Reports   []map[string]any `json:"reports"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Reports) == 0 {
		return fmt.Sprintf("No reports stored for %s.", resp.PackageID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d report(s) for %s:\n\n", len(resp.Reports), resp.PackageID)
	for i, r := range resp.Reports {
		score, _ := getFloat(r, "risk_score")
		fmt.Fprintf(&sb, "%d. %s %s, score %.0f/100\n", i+1, getString(r, "analyzed_at"), getString(r, "risk_level"), score)
		if p := getString(r, "protocol"); p != "" {
			fmt.Fprintf(&sb, "   Protocol: %s\n", p)
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
