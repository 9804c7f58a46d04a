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

	"github.com/mbd888/bazaar/internal/admin"
	"github.com/mbd888/bazaar/internal/config"
	"github.com/mbd888/bazaar/internal/health"
	"github.com/mbd888/bazaar/internal/identity"
	"github.com/mbd888/bazaar/internal/idgen"
	"github.com/mbd888/bazaar/internal/keys"
	"github.com/mbd888/bazaar/internal/logging"
	"github.com/mbd888/bazaar/internal/metrics"
	"github.com/mbd888/bazaar/internal/pepper"
	"github.com/mbd888/bazaar/internal/plan"
	"github.com/mbd888/bazaar/internal/prices"
	"github.com/mbd888/bazaar/internal/ratelimit"
	"github.com/mbd888/bazaar/internal/realtime"
	"github.com/mbd888/bazaar/internal/security"
	"github.com/mbd888/bazaar/internal/shop"
	"github.com/mbd888/bazaar/internal/tenant"
	"github.com/mbd888/bazaar/internal/traces"
	"github.com/mbd888/bazaar/internal/usage"
	"github.com/mbd888/bazaar/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	plans       plan.Store
	tenants     tenant.Store
	keyMgr      *keys.Manager
	meter       *usage.Service
	keyLimiter  *keys.Limiter
	priceCache  *prices.Cache
	pricePoller *prices.Poller
	verifier    *identity.Verifier
	realtimeHub *realtime.Hub
	checks      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.plans = plan.NewPostgresStore(db)
		s.tenants = tenant.NewPostgresStore(db)
		s.keyMgr = keys.NewManager(keys.NewPostgresStore(db), s.plans,
			pepper.NewSource(cfg.Pepper, cfg.PepperPath))
		s.meter = usage.NewService(usage.NewPostgresStore(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.plans = plan.NewMemoryStore()
		s.tenants = tenant.NewMemoryStore()
		keyStore := keys.NewMemoryStore()
		s.keyMgr = keys.NewManager(keyStore, s.plans,
			pepper.NewSource(cfg.Pepper, cfg.PepperPath))
		usageStore := usage.NewMemoryStore()
		usageStore.SetActiveCheck(func(ctx context.Context, apiKeyID string) (bool, error) {
			k, err := keyStore.GetByID(ctx, apiKeyID, "")
			if err != nil {
				return false, nil
			}
			return k.Active, nil
		})
		s.meter = usage.NewService(usageStore)
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Seed the default plan catalog. Safe to repeat; existing slugs are
	// left alone.
	if err := plan.Seed(ctx, s.plans); err != nil {
		return nil, fmt.Errorf("failed to seed plans: %w", err)
	}

	// Per-plan RPM enforcement on metered routes
	s.keyLimiter = keys.NewLimiter()

	// Identity tokens for tenant self-service
	s.verifier = identity.NewVerifier(cfg.IdentityJWTSecret, cfg.IdentityAudience)
	if s.verifier.Enabled() {
		s.logger.Info("identity tokens enabled", "audience", cfg.IdentityAudience)
	} else {
		s.logger.Warn("identity tokens not configured, /me endpoints disabled")
	}

	if cfg.AdminToken == "" {
		s.logger.Warn("admin token not configured, /admin endpoints disabled")
	}

	// Price snapshot cache and poller
	s.priceCache = prices.NewCache()
	s.pricePoller = prices.NewPoller(cfg.PriceFeedURL, cfg.PricePollInterval,
		s.priceCache, logging.Component(s.logger, "prices"))

	// Realtime hub for WebSocket streaming; each fresh snapshot is pushed
	// to connected clients
	s.realtimeHub = realtime.NewHub(s.logger)
	s.pricePoller.OnUpdate = func(snap *prices.Snapshot) {
		s.realtimeHub.BroadcastSnapshot(snap.Data)
	}

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", health.DatabaseChecker(s.db))
	}
	if cfg.PriceFeedURL != "" {
		// Tolerate a few missed polls before reporting unhealthy
		s.checks.Register("snapshot", health.SnapshotChecker(s.priceCache.Age, 5*cfg.PricePollInterval))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
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

	// Outer abuse limiter, keyed by IP or presented credential
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	if burst := s.cfg.RateLimitRPM / 10; burst > limiterCfg.BurstSize {
		limiterCfg.BurstSize = burst
	}
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
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time snapshot streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	priceHandler := prices.NewHandler(s.priceCache)

	// PUBLIC ROUTES (no auth required)
	// Raw unfiltered snapshot, plus the storefront
	s.router.GET("/prices", priceHandler.Public)
	shopHandler := shop.NewHandler(s.plans, s.tenants, s.keyMgr, s.meter)
	shopHandler.RegisterPublic(s.router)

	// SELF-SERVICE (authenticated by the API key itself)
	self := s.router.Group("/self")
	self.Use(keys.RequireKey(s.keyMgr))
	shopHandler.RegisterSelf(self)

	// ACCOUNT (authenticated by identity token)
	me := s.router.Group("/me")
	me.Use(identity.RequireIdentity(s.verifier))
	shopHandler.RegisterAccount(me)

	// ADMIN (shared operator token)
	adminGroup := s.router.Group("/admin")
	adminGroup.Use(admin.RequireToken(s.cfg.AdminToken))
	admin.NewHandler(s.keyMgr, s.plans).RegisterRoutes(adminGroup)

	// METERED DATA (every hit counts against the key's monthly quota)
	v1 := s.router.Group("/v1")
	v1.Use(keys.RequireMeteredKey(s.keyMgr, s.meter, s.keyLimiter))
	{
		v1.GET("/prices", priceHandler.Scoped)
		// Legacy clients embed the key in the path instead of a header
		v1.GET("/key/:key/prices", priceHandler.Scoped)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"ok":        healthy,
		"status":    status,
		"version":   "0.1.0",
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
		"name":        "Bazaar",
		"description": "Market data API with metered access plans",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTLP endpoint is not configured)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start snapshot poller
	go s.pricePoller.Run(runCtx)

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

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

	// Cancel the context for all background goroutines (poller, hub)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
