package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/suiguard/suiguard/internal/protocol"
)

// NewMCPServer creates a configured MCP server with all SuiGuard tools registered.
func NewMCPServer(cfg Config, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("suiguard", "1.0.0")
	h := NewHandlers(NewClient(cfg, logger), protocol.DefaultRegistry(logger))

	s.AddTool(ToolAnalyzePackages, h.HandleAnalyzePackages)
	s.AddTool(ToolAnalyzeObject, h.HandleAnalyzeObject)
	s.AddTool(ToolIdentifyProtocol, h.HandleIdentifyProtocol)
	s.AddTool(ToolMonitorStats, h.HandleMonitorStats)
	s.AddTool(ToolPackageReports, h.HandlePackageReports)

	return s
}
