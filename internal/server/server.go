// Package server sets up the gateway HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/fraudgate/internal/aggregator"
	"github.com/mbd888/fraudgate/internal/alerts"
	"github.com/mbd888/fraudgate/internal/apikey"
	"github.com/mbd888/fraudgate/internal/audit"
	"github.com/mbd888/fraudgate/internal/circuitbreaker"
	"github.com/mbd888/fraudgate/internal/config"
	"github.com/mbd888/fraudgate/internal/health"
	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/oracle"
	"github.com/mbd888/fraudgate/internal/ratelimit"
	"github.com/mbd888/fraudgate/internal/realtime"
	"github.com/mbd888/fraudgate/internal/security"
	"github.com/mbd888/fraudgate/internal/traces"
	"github.com/mbd888/fraudgate/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the gateway HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpSrv    *http.Server
	logger     *slog.Logger
	checks     *health.Registry
	limiter    *ratelimit.Limiter
	hub        *realtime.Hub
	svc        *aggregator.Service
	auditStore audit.Store
	db         *sql.DB // nil when the trail is in-memory

	ruleSrc aggregator.RuleSource
	mlSrc   aggregator.MLSource
	scorer  *aggregator.Scorer

	traceShutdown func(context.Context) error
	cancelRun     context.CancelFunc

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSources injects the decision sources (for testing).
func WithSources(ruleSrc aggregator.RuleSource, mlSrc aggregator.MLSource) Option {
	return func(s *Server) {
		s.ruleSrc = ruleSrc
		s.mlSrc = mlSrc
	}
}

// WithScorer injects the hybrid scorer (for testing).
func WithScorer(scorer *aggregator.Scorer) Option {
	return func(s *Server) {
		s.scorer = scorer
	}
}

// WithAuditStore injects the audit store (for testing).
func WithAuditStore(store audit.Store) Option {
	return func(s *Server) {
		s.auditStore = store
	}
}

// New creates a gateway server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		checks: health.NewRegistry(),
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.ruleSrc == nil {
		s.ruleSrc = aggregator.NewRuleClient(cfg.RuleEngineURL)
	}
	if s.mlSrc == nil {
		s.mlSrc = oracle.NewClient(cfg.MLModelURL)
	}
	if s.scorer == nil {
		s.scorer = aggregator.NewScorer()
	}

	if s.auditStore == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("open audit database: %w", err)
			}
			if err := db.Ping(); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("connect audit database: %w", err)
			}
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			s.db = db
			s.auditStore = audit.NewPostgresStore(db)
			s.checks.Register("audit_db", func(ctx context.Context) health.Status {
				if err := db.PingContext(ctx); err != nil {
					return health.Status{Name: "audit_db", Healthy: false, Detail: err.Error()}
				}
				return health.Status{Name: "audit_db", Healthy: true}
			})
			s.logger.Info("verdict audit trail using postgres")
		} else {
			s.auditStore = audit.NewMemoryStore()
			s.logger.Info("verdict audit trail in memory (set DATABASE_URL to persist)")
		}
	}

	s.hub = realtime.NewHub(s.logger)

	sinks := []aggregator.Sink{audit.NewRecorder(s.auditStore), s.hub}
	if cfg.AlertWebhookURL != "" {
		sinks = append(sinks, alerts.NewNotifier(cfg.AlertWebhookURL, cfg.AlertWebhookSecret))
		s.logger.Info("high-risk alert webhook enabled")
	}

	dispatcher := aggregator.NewDispatcher(s.ruleSrc, s.mlSrc, cfg.DispatchTimeout,
		circuitbreaker.New(5, 30*time.Second))
	s.svc = aggregator.NewService(dispatcher, s.scorer, sinks...)

	s.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(nil))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.limiter.Middleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(logging.CorrelationMiddleware(s.logger))
	s.router.Use(logging.RequestLogger())
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live verdict stream for ops dashboards.
	s.router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})

	v1 := s.router.Group("/api/v1")
	v1.Use(apikey.Middleware(s.cfg.APIKey))
	aggregator.NewHandler(s.svc).RegisterRoutes(v1)
	v1.GET("/verdicts/:userId", s.listVerdictsHandler)
	v1.GET("/verdicts/id/:id", s.getVerdictHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP", "service": "Aggregator"})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)
	if !s.ready.Load() || !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": statuses})
}

// listVerdictsHandler handles GET /api/v1/verdicts/:userId
func (s *Server) listVerdictsHandler(c *gin.Context) {
	userID := c.Param("userId")
	if !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid userId",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "limit must be between 1 and 500",
			})
			return
		}
		limit = parsed
	}

	records, err := s.auditStore.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("list verdicts failed", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load verdict history",
		})
		return
	}

	if records == nil {
		records = []*audit.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "verdicts": records})
}

// getVerdictHandler handles GET /api/v1/verdicts/id/:id
func (s *Server) getVerdictHandler(c *gin.Context) {
	record, err := s.auditStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Verdict not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("get verdict failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load verdict",
		})
		return
	}
	c.JSON(http.StatusOK, record)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	shutdown, err := traces.Init(runCtx, "fraudgate-gateway", s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without", "error", err)
	} else {
		s.traceShutdown = shutdown
	}

	go s.hub.Run(runCtx)

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
		s.logger.Info("starting gateway", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.ready.Store(true)

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
			firstErr = err
		}
	}

	// Stops the hub and any in-flight sink publishes tied to the run context.
	if s.cancelRun != nil {
		s.cancelRun()
	}

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	s.limiter.Stop()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("audit db close error", "error", err)
		}
	}

	s.logger.Info("gateway stopped")
	return firstErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
