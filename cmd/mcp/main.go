// SuiGuard MCP Server - Exposes SuiGuard risk analysis as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/suiguard/suiguard/internal/logging"
	"github.com/suiguard/suiguard/internal/mcpserver"
)

func main() {
	timeout := 90 * time.Second
	if v := os.Getenv("SUIGUARD_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SUIGUARD_API_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		timeout = d
	}

	cfg := mcpserver.Config{
		APIURL:  envOrDefault("SUIGUARD_API_URL", "http://localhost:8000"),
		Timeout: timeout,
	}

	// stdout carries the MCP protocol; logs go to stderr
	logger := logging.NewWithWriter(os.Stderr, envOrDefault("LOG_LEVEL", "warn"), "text")

	s := mcpserver.NewMCPServer(cfg, logger)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
