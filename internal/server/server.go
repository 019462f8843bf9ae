// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/config"
	"github.com/mbd888/walletscope/internal/health"
	"github.com/mbd888/walletscope/internal/idgen"
	"github.com/mbd888/walletscope/internal/lists"
	"github.com/mbd888/walletscope/internal/logging"
	"github.com/mbd888/walletscope/internal/metrics"
	"github.com/mbd888/walletscope/internal/ratelimit"
	"github.com/mbd888/walletscope/internal/realtime"
	"github.com/mbd888/walletscope/internal/rules"
	"github.com/mbd888/walletscope/internal/scoring"
	"github.com/mbd888/walletscope/internal/security"
	"github.com/mbd888/walletscope/internal/traces"
	"github.com/mbd888/walletscope/internal/validation"
)

// Version reported by the health and info endpoints.
const Version = "0.1.0"

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	provider     chain.HistoryProvider
	registry     *lists.Registry
	reloader     *lists.Reloader
	scoring      *scoring.Service
	hub          *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTraces   func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithProvider sets a custom history provider (for testing and demo
// seeding)
func WithProvider(p chain.HistoryProvider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set provider/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if s.provider == nil {
		// No indexer wired up: serve from the seedable in-memory
		// provider. Real deployments inject their indexer client.
		s.provider = chain.NewMemoryProvider()
		s.logger.Warn("no history provider configured, using in-memory provider")
	}

	// Weight table
	weights := rules.DefaultWeights()
	if cfg.WeightsFile != "" {
		loaded, err := rules.LoadFile(cfg.WeightsFile)
		if err != nil {
			return nil, fmt.Errorf("load weight table: %w", err)
		}
		weights = loaded
		s.logger.Info("weight table loaded", "file", cfg.WeightsFile, "version", weights.Version)
	}

	// Curated lists
	s.registry = lists.NewRegistry(s.logger)
	for _, l := range []struct {
		name, kind, location string
	}{
		{"sanctioned", lists.KindSanctioned, cfg.SanctionedList},
		{"mixers", lists.KindMixer, cfg.MixerList},
		{"scam_clusters", lists.KindScamCluster, cfg.ScamClusterList},
	} {
		if l.location == "" {
			continue
		}
		src, err := listSource(l.location)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", l.name, err)
		}
		if err := s.registry.AddSource(l.name, l.kind, src); err != nil {
			return nil, fmt.Errorf("list %s: %w", l.name, err)
		}
	}
	if err := s.registry.Reload(ctx); err != nil {
		// Fail-open: scoring starts with whatever loaded and the
		// reloader keeps retrying.
		s.logger.Warn("initial list load incomplete", "error", err)
	}
	s.reloader = lists.NewReloader(s.registry, cfg.ListReloadInterval, s.logger)

	// Realtime streaming
	s.hub = realtime.NewHub(s.logger)

	// Scoring pipeline
	s.scoring = scoring.NewService(s.provider, s.registry, rules.NewEngine(weights), scoring.Options{
		NeighborLimit:   cfg.NeighborLimit,
		Concurrency:     cfg.Concurrency,
		ProviderTimeout: cfg.ProviderTimeout,
		HistoryTTL:      cfg.HistoryCacheTTL,
		GraphTTL:        cfg.GraphCacheTTL,
		ScoreTTL:        cfg.ScoreCacheTTL,
		CacheMaxEntries: cfg.CacheMaxEntries,
	}).WithEvents(s.hub)

	// Tracing (no-op without an endpoint)
	stop, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.stopTraces = stop
	}

	// Health checks
	s.checks = health.NewRegistry()
	s.checks.Register("lists", s.listsChecker())

	// Router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// listSource builds a list source from a config location: an http(s)
// URL or a local file path.
func listSource(location string) (lists.Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return lists.NewHTTPSource(location, nil)
	}
	return lists.FileSource{Path: location}, nil
}

func (s *Server) listsChecker() health.Checker {
	return func(ctx context.Context) health.Status {
		snap := s.registry.Snapshot()
		infos := snap.Infos()
		total := 0
		for _, info := range infos {
			total += info.Entries
		}
		return health.Status{
			Name:    "lists",
			Healthy: true, // lists are fail-open; absence degrades scores, not the service
			Detail:  fmt.Sprintf("%d lists, %d entries, version %d", len(infos), total, snap.Version),
		}
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Service info
	s.router.GET("/", s.infoHandler)

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// API v1
	v1 := s.router.Group("/v1")
	scoring.NewHandler(s.scoring, s.cfg.DefaultNetwork, s.cfg.BatchSize).RegisterRoutes(v1)
	lists.NewHandler(s.registry, s.onListReload).RegisterRoutes(v1)
}

// onListReload runs after a manual list reload: flush score caches so
// new memberships apply immediately, and tell subscribers.
func (s *Server) onListReload() {
	s.scoring.FlushCaches()
	snap := s.registry.Snapshot()
	s.hub.ListReloaded(snap.Version, snap.Infos())
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   Version,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "walletscope",
		"version":        Version,
		"defaultNetwork": s.cfg.DefaultNetwork,
		"endpoints": []string{
			"GET /v1/score?address=0x...&network=ethereum&explain=true",
			"GET /v1/neighbors?address=0x...&limit=50",
			"POST /v1/score/batch",
			"GET /v1/lists",
			"POST /v1/lists/reload",
			"GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"network", s.cfg.DefaultNetwork,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start list reload worker
	go s.reloader.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
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

	// Cancel the context for background goroutines (hub, reloader)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop list reloader
	if s.reloader != nil {
		s.reloader.Stop()
		s.logger.Info("list reloader stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router exposes the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
