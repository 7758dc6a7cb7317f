package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/performance"
	"monad-trade-agent-go/internal/wallet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxTradeLimit = 500

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// walletParam returns the checksummed wallet address of the request, or
// writes a 400 and returns false.
func walletParam(c *gin.Context) (string, bool) {
	addr, err := wallet.NormalizeAddress(c.Param("walletAddress"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return "", false
	}
	return addr, true
}

// positions returns every position of a wallet, ordered by current value.
// Wallets without history have no positions.
func (s *Server) positions(c *gin.Context) {
	addr, ok := walletParam(c)
	if !ok {
		return
	}
	positions, err := s.deps.Positions.Positions(c.Request.Context(), addr)
	if errors.Is(err, domain.ErrWalletNotFound) {
		c.JSON(http.StatusOK, []domain.Position{})
		return
	}
	if err != nil {
		s.logger.Error("Failed to get positions", zap.String("wallet", addr), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get positions"})
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) summary(c *gin.Context) {
	addr, ok := walletParam(c)
	if !ok {
		return
	}
	summary, err := s.deps.Positions.Summary(c.Request.Context(), addr)
	if errors.Is(err, domain.ErrWalletNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to get summary", zap.String("wallet", addr), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// trades returns stored trades, most recent first. Optional query
// parameters: wallet, token, since (RFC3339) and limit.
func (s *Server) trades(c *gin.Context) {
	filter := database.TradeFilter{Token: wallet.CanonicalAddress(c.Query("token")), Limit: 100}
	if w := c.Query("wallet"); w != "" {
		addr, err := wallet.NormalizeAddress(w)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		filter.Wallet = addr
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since, expected RFC3339"})
			return
		}
		filter.Since = t
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = min(n, maxTradeLimit)
	}

	trades, err := s.deps.Trades.ListTrades(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to get trades from database", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

// statistics returns trading statistics for the last 24 hours and all time.
func (s *Server) statistics(c *gin.Context) {
	filter := database.TradeFilter{}
	if w := c.Query("wallet"); w != "" {
		addr, err := wallet.NormalizeAddress(w)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		filter.Wallet = addr
	}
	trades, err := s.deps.Trades.ListTrades(c.Request.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to get trades for statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate statistics"})
		return
	}
	c.JSON(http.StatusOK, performance.Calculate(trades, s.now()))
}

// performance returns the latest performance snapshot of every wallet.
func (s *Server) performance(c *gin.Context) {
	rows, err := s.deps.Trades.LatestPerformance(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to get performance snapshots", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get performance"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) status(c *gin.Context) {
	if s.deps.Status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Trading engine is not running in this process"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Status.Status())
}

func (s *Server) stream(c *gin.Context) {
	if s.deps.Stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Trade stream is not available in this process"})
		return
	}
	s.deps.Stream(c.Writer, c.Request)
}
