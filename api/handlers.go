package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 100

func listLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultListLimit
}

func (s *Server) handlePaperTrading(c *gin.Context) {
	executed, err := s.manager.ExecutePendingPaper(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"executed": executed,
		"message":  "pending paper orders executed",
	})
}

func (s *Server) handleRefreshPositions(c *gin.Context) {
	refreshed, exitSignals, err := s.manager.RefreshOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refreshed":          refreshed,
		"exit_signals_count": exitSignals,
	})
}

func (s *Server) handleGetPositions(c *gin.Context) {
	positions, err := s.store.Positions().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleGetOrders(c *gin.Context) {
	orders, err := s.store.Orders().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleGetTrades(c *gin.Context) {
	trades, err := s.store.Trades().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleGetSignals(c *gin.Context) {
	signals, err := s.store.Signals().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) handleGetRiskLimits(c *gin.Context) {
	limits, err := s.store.Rules().RiskLimits()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_limits": limits})
}

func (s *Server) handleGetRiskViolations(c *gin.Context) {
	violations, err := s.store.Rules().Violations(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_violations": violations})
}

func (s *Server) handleGetExitSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exit_signals": s.manager.ExitSignals()})
}

func (s *Server) handleGetAdapterLogs(c *gin.Context) {
	logs, err := s.store.AdapterLogs().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapter_logs": logs})
}

func (s *Server) handleGetStats(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetAnalytics(c *gin.Context) {
	decisions, err := s.store.Decisions().List(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	history, err := s.store.Regimes().RecentHistory(listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decisions":      decisions,
		"regime_history": history,
	})
}
