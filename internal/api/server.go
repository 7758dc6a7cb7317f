// Package api serves the positions, trades and status HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/models"
	"monad-trade-agent-go/internal/trader"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PositionService reads valued positions.
type PositionService interface {
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
	Summary(ctx context.Context, wallet string) (domain.PortfolioSummary, error)
}

// TradeStore reads stored trades and performance snapshots.
type TradeStore interface {
	ListTrades(ctx context.Context, filter database.TradeFilter) ([]models.Trade, error)
	LatestPerformance(ctx context.Context) ([]models.StrategyPerformance, error)
}

// StatusProvider reports the running engine.
type StatusProvider interface {
	Status() trader.Status
}

// Deps are the collaborators behind the handlers. Status and Stream are optional.
type Deps struct {
	Positions PositionService
	Trades    TradeStore
	Status    StatusProvider
	Stream    http.HandlerFunc
}

// Server provides the HTTP interface of the agent.
type Server struct {
	router *gin.Engine
	server *http.Server
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// NewServer creates a server and registers its routes.
func NewServer(cfg config.Server, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		router: r,
		deps:   deps,
		logger: logger.Named("api-server"),
		now:    time.Now,
	}
	r.Use(LoggerMiddleware(s.logger))
	if cfg.RateLimit > 0 {
		r.Use(RateLimiterMiddleware(RateLimiterConfig{RequestsPerSecond: cfg.RateLimit, Burst: cfg.RateLimitBurst}))
	}

	r.GET("/health", s.health)
	r.GET("/positions/:walletAddress", s.positions)
	r.GET("/positions/:walletAddress/summary", s.summary)
	r.GET("/trades", s.trades)
	r.GET("/statistics", s.statistics)
	r.GET("/performance", s.performance)

	operator := r.Group("/")
	if cfg.JWTSecret != "" {
		operator.Use(AuthMiddleware(cfg.JWTSecret))
	}
	operator.GET("/status", s.status)
	operator.GET("/ws/trades", s.stream)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
