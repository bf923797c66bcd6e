// Package httpapi serves the read-only dashboard API, the breaker reset
// endpoint and Prometheus metrics over gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

// SummarySource provides the dashboard summary.
type SummarySource interface {
	Summary() domain.DashboardSummary
	LastError() string
}

// Controller starts and stops trading on operator request.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Server exposes the HTTP API.
type Server struct {
	addr   string
	router *gin.Engine
	logger ports.Logger
}

// ServerConfig describes the HTTP server's dependencies. Audit, Control and
// Metrics are optional; their routes are omitted when nil.
type ServerConfig struct {
	Addr    string
	Summary SummarySource
	Risk    *risk.Engine
	Audit   ports.AuditReader
	Control Controller
	Metrics http.Handler
	Logger  ports.Logger
	// OnBreakerReset runs after a successful manual reset.
	OnBreakerReset func(domain.CircuitBreakerState)
}

// NewServer builds the router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Summary == nil || cfg.Risk == nil || cfg.Logger == nil {
		return nil, errors.New("http api requires summary, risk engine and logger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	h := &handlers{cfg: cfg}
	api := router.Group("/api")
	api.GET("/summary", h.summary)
	api.GET("/stats", h.stats)
	api.GET("/risk", h.risk)
	api.POST("/risk/breaker/reset", h.resetBreaker)
	if cfg.Audit != nil {
		api.GET("/results", h.results)
		api.GET("/results/counts", h.resultCounts)
	}
	if cfg.Control != nil {
		api.POST("/control/start", h.start)
		api.POST("/control/stop", h.stop)
	}

	return &Server{addr: cfg.Addr, router: router, logger: cfg.Logger}, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info(ctx, "HTTP API listening", map[string]interface{}{"addr": s.addr})

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger(logger ports.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"ip":       c.ClientIP(),
			"duration": time.Since(start).String(),
		})
	}
}
