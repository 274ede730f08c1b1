package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/planner"
	"github.com/coinlens/coinlens/internal/rebalance"
)

// Defaults are the per-request fallbacks applied when an analysis request
// leaves a field unset.
type Defaults struct {
	WindowDays  int
	Benchmark   string
	Policy      alerts.Policy
	Constraints rebalance.Constraints
}

// Config contains server configuration.
type Config struct {
	Host          string
	Port          int
	Runner        *planner.Runner
	Plans         map[string]*planner.Plan
	DefaultPlan   string
	Defaults      Defaults
	EnableMetrics bool
}

// Server is the REST API server around the plan runner.
type Server struct {
	router      *gin.Engine
	runner      *planner.Runner
	plans       map[string]*planner.Plan
	defaultPlan string
	defaults    Defaults
	addr        string
	server      *http.Server
}

// NewServer creates the API server.
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:      router,
		runner:      config.Runner,
		plans:       config.Plans,
		defaultPlan: config.DefaultPlan,
		defaults:    config.Defaults,
		addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	s.setupRoutes(config.EnableMetrics)
	return s
}

func (s *Server) setupRoutes(enableMetrics bool) {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/analyze/ws", s.handleAnalyzeWS)
		v1.GET("/plans", s.handleListPlans)
	}

	s.router.GET("/healthz", s.handleHealthz)
	if enableMetrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("API server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}
