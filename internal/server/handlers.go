package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suiguard/suiguard/internal/logging"
	"github.com/suiguard/suiguard/internal/packages"
	"github.com/suiguard/suiguard/internal/pagination"
	"github.com/suiguard/suiguard/internal/reports"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/suirpc"
	"github.com/suiguard/suiguard/internal/tracker"
	"github.com/suiguard/suiguard/internal/traces"
	"github.com/suiguard/suiguard/internal/validation"
)

// maxDomainLen bounds the optional requesting domain.
const maxDomainLen = 253

// ConnectionRequest is the body of POST /api/analyze-connection.
type ConnectionRequest struct {
	PackageIDs  []string `json:"package_ids"`
	Domain      string   `json:"domain,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ObjectRequest is the body of POST /api/analyze-object.
type ObjectRequest struct {
	ObjectID string `json:"object_id"`
	Domain   string `json:"domain,omitempty"`
}

// AnalysisResponse is the trimmed verdict returned to the extension. The
// score breakdown and ML internals stay server side.
type AnalysisResponse struct {
	RiskLevel        risk.Level `json:"risk_level"`
	Confidence       float64    `json:"confidence"`
	Reasons          []string   `json:"reasons"`
	Recommendation   string     `json:"recommendation"`
	AnalyzedPackages int        `json:"analyzed_packages"`
	TotalPackages    int        `json:"total_packages"`
	SkippedPackages  []string   `json:"skipped_packages,omitempty"`
	AnalysisMethod   string     `json:"analysis_method"`
	Timestamp        string     `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Info and health
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "SuiGuard API - Production Ready",
		"version": Version,
		"status":  "ready",
		"features": []string{
			"Smart Contract Vulnerability Detection",
			"ML-Powered Risk Assessment",
			"DeFi Protocol Deployment Monitoring",
			"Real-time Sui Blockchain Analysis",
		},
		"endpoints": gin.H{
			"analyze":        "/api/analyze-connection",
			"analyze_object": "/api/analyze-object",
			"monitor":        "/api/monitor/stats",
			"reports":        "/api/reports/:packageId",
			"stream":         "/ws",
			"health":         "/health",
		},
	})
}

// healthHandler answers 200 with status "degraded" rather than failing; load
// balancers should use /health/ready.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	services := gin.H{
		"api":           "operational",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"core_services": "ready",
		"configuration": s.configurationStatus(),
	}
	if !healthy {
		services["core_services"] = "degraded"
	}

	status := "healthy"
	if !healthy || services["configuration"] != "complete" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"message":  "SuiGuard API operational status",
		"services": services,
		"checks":   checks,
		"version":  Version,
	})
}

func (s *Server) configurationStatus() string {
	var missing []string
	if s.cfg.SuiRPCURL == "" {
		missing = append(missing, "SUI_RPC_PUBLIC_URL or SUI_RPC_PROVIDER_URL")
	}
	if s.tracker != nil && len(s.notifier.Channels()) == 0 {
		missing = append(missing, "WEBHOOK_*")
	}
	if len(missing) > 0 {
		return "missing: " + strings.Join(missing, ", ")
	}
	return "complete"
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Analysis
// -----------------------------------------------------------------------------

func (s *Server) analyzeConnection(c *gin.Context) {
	var req ConnectionRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := packages.CheckBatchSize(req.PackageIDs); err != nil {
		message := "package_ids are required"
		if errors.Is(err, packages.ErrBatchTooBig) {
			message = "Too many packages to analyze (max: 50)"
		}
		badRequest(c, message)
		return
	}

	s.respondWithAnalysis(c, req.PackageIDs, req.Domain, req.Permissions)
}

func (s *Server) analyzeObject(c *gin.Context) {
	var req ObjectRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := validation.Validate(
		validation.Required("object_id", req.ObjectID),
		validation.SuiID("object_id", req.ObjectID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	ctx := c.Request.Context()
	packageID, err := s.chain.ObjectPackageID(ctx, req.ObjectID)
	if err != nil {
		if errors.Is(err, suirpc.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "object_not_found",
				"message": "No object with that id exists on chain",
			})
			return
		}
		logging.L(ctx).Error("object lookup failed", "object_id", req.ObjectID, "error", err)
		unavailable(c)
		return
	}

	s.respondWithAnalysis(c, []string{packageID}, req.Domain, nil)
}

func (s *Server) respondWithAnalysis(c *gin.Context, ids []string, domain string, permissions []string) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	domain = validation.SanitizeString(domain, maxDomainLen)
	if domain == "" {
		domain = tracker.DefaultDomain
	}

	ctx, span := traces.StartSpan(ctx, "server.analyze", traces.Domain(domain), traces.PackageCount(len(ids)))
	defer span.End()

	logger.Info("analyzing packages", "count", len(ids), "domain", domain)

	batch, err := s.packages.AnalyzeBatch(ctx, ids)
	if err != nil {
		logger.Error("connection analysis failed", "error", err)
		unavailable(c)
		return
	}

	verdict := s.engine.AnalyzeWithMLIntegration(ctx, domain, permissions, batch.Findings, batch.Source)
	method := verdict.Details.AnalysisMethod
	if method == "" {
		method = risk.MethodRulesOnly
	}
	span.SetAttributes(traces.RiskLevel(string(verdict.RiskLevel)), traces.AnalysisMethod(method))

	logger.Info("analysis completed",
		"risk_level", verdict.RiskLevel,
		"confidence", verdict.Confidence,
		"method", method,
	)

	c.JSON(http.StatusOK, AnalysisResponse{
		RiskLevel:        verdict.RiskLevel,
		Confidence:       verdict.Confidence,
		Reasons:          verdict.Reasons,
		Recommendation:   verdict.Recommendation,
		AnalyzedPackages: batch.Analyzed(),
		TotalPackages:    batch.Total,
		SkippedPackages:  batch.Skipped,
		AnalysisMethod:   method,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------
// Monitor, queue and reports
// -----------------------------------------------------------------------------

func (s *Server) monitorStats(c *gin.Context) {
	resp := gin.H{
		"enabled":  s.tracker != nil,
		"channels": s.notifier.Channels(),
		"realtime": s.hub.Stats(),
	}
	if s.tracker != nil {
		resp["monitor"] = s.tracker.Stats()
	} else {
		resp["monitor"] = tracker.Stats{State: tracker.StateStopped}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) queueStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ml_enabled": s.cfg.MLEnabled,
		"queue":      s.mlQueue.Stats(),
	})
}

func (s *Server) recentReports(c *gin.Context) {
	after, ok := queryCursor(c)
	if !ok {
		return
	}
	page, err := s.reports.ListRecent(c.Request.Context(), after, queryLimit(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list reports", "error", err)
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, reportsBody(page))
}

func (s *Server) packageReports(c *gin.Context) {
	after, ok := queryCursor(c)
	if !ok {
		return
	}
	packageID := c.GetString(validation.PackageIDKey)
	page, err := s.reports.ListByPackage(c.Request.Context(), packageID, after, queryLimit(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list reports", "package_id", packageID, "error", err)
		unavailable(c)
		return
	}
	body := reportsBody(page)
	body["package_id"] = packageID
	c.JSON(http.StatusOK, body)
}

func reportsBody(page *reports.Page) gin.H {
	return gin.H{
		"reports":     page.Reports,
		"count":       len(page.Reports),
		"next_cursor": page.NextCursor,
		"has_more":    page.NextCursor != "",
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", ""))
	if err != nil || n <= 0 {
		return reports.DefaultLimit
	}
	return n
}

func queryCursor(c *gin.Context) (*pagination.Cursor, bool) {
	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		badRequest(c, "Invalid cursor")
		return nil, false
	}
	return after, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if validation.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request_too_large",
				"message": "Request body is too large",
			})
			return false
		}
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
	})
}

func unavailable(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "analysis_unavailable",
		"message": "Analysis service temporarily unavailable",
	})
}
