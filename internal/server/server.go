// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/suiguard/suiguard/internal/circuitbreaker"
	"github.com/suiguard/suiguard/internal/config"
	"github.com/suiguard/suiguard/internal/health"
	"github.com/suiguard/suiguard/internal/logging"
	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/mlclient"
	"github.com/suiguard/suiguard/internal/mlqueue"
	"github.com/suiguard/suiguard/internal/notify"
	"github.com/suiguard/suiguard/internal/packages"
	"github.com/suiguard/suiguard/internal/protocol"
	"github.com/suiguard/suiguard/internal/ratelimit"
	"github.com/suiguard/suiguard/internal/realtime"
	"github.com/suiguard/suiguard/internal/reports"
	"github.com/suiguard/suiguard/internal/risk"
	"github.com/suiguard/suiguard/internal/security"
	"github.com/suiguard/suiguard/internal/suirpc"
	"github.com/suiguard/suiguard/internal/tracker"
	"github.com/suiguard/suiguard/internal/validation"
)

// Version is reported by the info and health endpoints.
const Version = "1.0.0"

// Breaker settings per dependency.
const (
	rpcBreakerThreshold     = 5
	rpcBreakerRecovery      = 30 * time.Second
	mlBreakerThreshold      = 3
	mlBreakerRecovery       = 60 * time.Second
	webhookBreakerThreshold = 5
	webhookBreakerRecovery  = 60 * time.Second
)

// Chain is the part of the Sui node the server and tracker read from.
// *suirpc.Client satisfies it.
type Chain interface {
	packages.SourceFetcher
	tracker.ChainReader
	ObjectPackageID(ctx context.Context, objectID string) (string, error)
}

var _ Chain = (*suirpc.Client)(nil)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg        *config.Config
	chain      Chain
	classifier risk.Classifier
	packages   *packages.Service
	engine     *risk.Engine
	mlQueue    *mlqueue.Queue
	notifier   *notify.Notifier
	reports    reports.Store
	tracker    *tracker.Tracker
	hub        *realtime.Hub
	health     *health.Registry

	rpcBreaker     *circuitbreaker.Breaker
	mlBreaker      *circuitbreaker.Breaker
	webhookBreaker *circuitbreaker.Breaker

	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	drainDelay   time.Duration

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChain replaces the Sui RPC client (for testing)
func WithChain(c Chain) Option {
	return func(s *Server) {
		s.chain = c
	}
}

// WithClassifier replaces the ML classifier client. It is only consulted
// when ML is enabled in the config.
func WithClassifier(c risk.Classifier) Option {
	return func(s *Server) {
		s.classifier = c
	}
}

// WithReports sets the report store instead of deriving it from DATABASE_URL.
func WithReports(store reports.Store) Option {
	return func(s *Server) {
		s.reports = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	s.rpcBreaker = circuitbreaker.New(rpcBreakerThreshold, rpcBreakerRecovery)
	s.mlBreaker = circuitbreaker.New(mlBreakerThreshold, mlBreakerRecovery)
	s.webhookBreaker = circuitbreaker.New(webhookBreakerThreshold, webhookBreakerRecovery)

	// Report storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.reports == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			if err := db.PingContext(ctx); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			store := reports.NewPostgresStore(db)
			if err := store.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate report store", "error", err)
			}
			s.reports = store
			s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.reports = reports.NewMemoryStore()
			s.logger.Info("using in-memory report storage (data will not persist)")
		}
	}

	// Sui node client if not injected
	if s.chain == nil {
		s.chain = suirpc.New(suirpc.Config{
			URL:     cfg.SuiRPCURL,
			Timeout: cfg.RPCTimeout,
		}, s.rpcBreaker, s.logger)
		s.logger.Info("sui rpc configured", "url", cfg.SuiRPCURL)
	}

	s.packages = packages.NewService(s.chain, s.logger)

	s.engine = risk.NewEngine().WithLogger(s.logger)
	if cfg.MLEnabled {
		if s.classifier == nil {
			s.classifier = mlclient.New(mlclient.Config{
				BaseURL: cfg.MLServiceURL,
				Enabled: true,
				Timeout: cfg.MLTimeout,
			}, s.mlBreaker, s.logger)
		}
		s.engine.WithClassifier(s.classifier)
		s.logger.Info("ml classifier enabled", "url", cfg.MLServiceURL)
	} else {
		s.logger.Info("ml classifier disabled, verdicts are rules only")
	}

	s.mlQueue = mlqueue.New(cfg.MLMaxConcurrent, cfg.MLMaxQueueSize, s.logger)

	// Webhook destinations must be public https endpoints in production
	if cfg.IsProduction() {
		for channel, hook := range cfg.Webhooks {
			if hook == "" {
				continue
			}
			if err := notify.ValidateWebhookURL(ctx, hook); err != nil {
				return nil, fmt.Errorf("webhook %s: %w", channel, err)
			}
		}
	}
	s.notifier = notify.New(notify.Config{
		Webhooks: cfg.Webhooks,
		Secret:   cfg.WebhookSecret,
	}, s.webhookBreaker, s.logger)

	// Realtime hub for dashboard WebSocket streaming
	s.hub = realtime.NewHub(s.logger, cfg.AllowedOrigins()...)

	if cfg.MonitorEnabled {
		scanner := tracker.NewScanner(s.chain, protocol.DefaultRegistry(s.logger), cfg.MaxBlocksToScan, s.logger)
		s.tracker = tracker.New(tracker.Config{
			ScanInterval: cfg.ScanInterval,
			QueueTimeout: cfg.MLQueueTimeout,
		}, scanner, tracker.Deps{
			Packages:  s.packages,
			Engine:    s.engine,
			Notifier:  s.notifier,
			Queue:     s.mlQueue,
			Reports:   s.reports,
			Publisher: s.hub,
		}, s.logger)
		s.logger.Info("protocol monitor enabled",
			"scan_interval", cfg.ScanInterval,
			"channels", s.notifier.Channels(),
		)
	}

	s.setupHealth()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) setupHealth() {
	s.health = health.NewRegistry()
	s.health.Register("sui_rpc", health.Breaker(s.rpcBreaker, "rpc"))
	if s.cfg.MLEnabled {
		s.health.Register("ml_classifier", health.Breaker(s.mlBreaker, "ml"))
	}
	if s.db != nil {
		s.health.Register("database", health.Func("postgres reachable", s.db.PingContext))
	}
	if s.tracker != nil {
		s.health.Register("protocol_monitor", health.Func("running", func(context.Context) error {
			if !s.ready.Load() {
				return nil
			}
			if state := s.tracker.State(); state != tracker.StateRunning {
				return fmt.Errorf("monitor %s", state)
			}
			return nil
		}))
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging; internals never leak to the client
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":       "Internal server error",
			"message":     "Service temporarily unavailable. Please try again later.",
			"status_code": http.StatusInternalServerError,
		})
	}))

	s.router.Use(security.HeadersMiddleware())

	// Only the browser extension may call cross-origin. Development without
	// an extension id stays open for local tooling.
	origins := s.cfg.AllowedOrigins()
	if len(origins) == 0 && s.cfg.IsDevelopment() {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	maxBytes := s.cfg.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = validation.MaxRequestSize
	}
	s.router.Use(validation.RequestSizeMiddleware(maxBytes))

	s.router.Use(metrics.Middleware())
	s.router.Use(logging.RequestIDMiddleware(s.logger))
	s.router.Use(logging.AccessLogMiddleware())
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)

	// Health and metrics are never rate limited
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.rateLimiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: s.cfg.RateLimitRPM})

	api := s.router.Group("/api", s.rateLimiter.Middleware())
	{
		analysis := api.Group("", s.mlQueue.Middleware(s.cfg.MLQueueTimeout))
		analysis.POST("/analyze-connection", s.analyzeConnection)
		analysis.POST("/analyze-object", s.analyzeObject)

		api.GET("/monitor/stats", s.monitorStats)
		api.GET("/queue/stats", s.queueStats)
		api.GET("/reports", s.recentReports)
		api.GET("/reports/:packageId", validation.PackageIDParamMiddleware("packageId"), s.packageReports)
	}

	s.router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":       "Endpoint not found",
			"message":     "The requested resource does not exist",
			"status_code": http.StatusNotFound,
		})
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute, // queued analyses can wait up to ML_QUEUE_TIMEOUT
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"ml_enabled", s.cfg.MLEnabled,
			"monitor_enabled", s.tracker != nil,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	if s.tracker != nil {
		if err := s.tracker.Start(runCtx); err != nil {
			s.logger.Error("failed to start protocol monitor", "error", err)
		}
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stop the monitor first so no alert is cut off mid-delivery
	if s.tracker != nil {
		s.tracker.Stop()
		s.logger.Info("protocol monitor stopped")
	}

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	var shutdownErr error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
