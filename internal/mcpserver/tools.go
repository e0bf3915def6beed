package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the SuiGuard MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzePackages = mcp.NewTool("analyze_packages",
	mcp.WithDescription(
		"Assess the security risk of connecting a wallet to a Sui dApp. "+
			"Fetches each Move package from chain, runs static analysis and the ML classifier, "+
			"and returns a risk level (LOW/MEDIUM/HIGH), confidence, reasons and a recommendation."),
	mcp.WithArray("package_ids",
		mcp.Required(),
		mcp.Description("Sui package ids, 0x-prefixed hex (1 to 50 ids)"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("domain",
		mcp.Description("Website requesting the connection (e.g. 'app.example.com'). Optional.")),
)

var ToolAnalyzeObject = mcp.NewTool("analyze_object",
	mcp.WithDescription(
		"Assess the risk of the Move package that defines a Sui object. "+
			"Use this when you only know an object or coin id, not its package."),
	mcp.WithString("object_id",
		mcp.Required(),
		mcp.Description("Sui object id, 0x-prefixed hex")),
)

var ToolIdentifyProtocol = mcp.NewTool("identify_protocol",
	mcp.WithDescription(
		"Tell whether a Sui package belongs to a tracked DeFi protocol (Bucket, Scallop or Navi) "+
			"from its id, module names and deployer. Works offline."),
	mcp.WithString("package_id",
		mcp.Required(),
		mcp.Description("Sui package id")),
	mcp.WithString("modules",
		mcp.Description("Comma separated module names in the package (e.g. 'bucket_core,vault')")),
	mcp.WithString("deployer",
		mcp.Description("Address that published the package")),
)

var ToolMonitorStats = mcp.NewTool("monitor_stats",
	mcp.WithDescription(
		"Show the DeFi deployment monitor's status: running state, packages detected, "+
			"high-risk findings and alerts sent."),
)

var ToolPackageReports = mcp.NewTool("package_reports",
	mcp.WithDescription(
		"List the monitor's stored risk reports for a package, newest first."),
	mcp.WithString("package_id",
		mcp.Required(),
		mcp.Description("Sui package id")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of reports to return (default 10)")),
)
