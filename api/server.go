// Package api is the HTTP surface: the HMAC-verified webhook ingress,
// the manual paper-trading and refresh triggers, the health probe, and
// the JWT-protected read-only projections.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/pipeline"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/trader"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server carries the handler dependencies.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	pipe      *pipeline.Pipeline
	manager   *trader.Manager
	startedAt time.Time
}

// NewServer wires the HTTP layer.
func NewServer(cfg *config.Config, st *store.Store, pipe *pipeline.Pipeline, manager *trader.Manager) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		pipe:      pipe,
		manager:   manager,
		startedAt: time.Now(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/webhook", s.handleWebhook)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	authed := r.Group("/", s.authMiddleware())
	{
		authed.POST("/paper-trading", s.handlePaperTrading)
		authed.POST("/refresh-positions", s.handleRefreshPositions)
		authed.GET("/positions", s.handleGetPositions)
		authed.GET("/orders", s.handleGetOrders)
		authed.GET("/trades", s.handleGetTrades)
		authed.GET("/signals", s.handleGetSignals)
		authed.GET("/risk-limits", s.handleGetRiskLimits)
		authed.GET("/risk-violations", s.handleGetRiskViolations)
		authed.GET("/exit-signals", s.handleGetExitSignals)
		authed.GET("/adapter-logs", s.handleGetAdapterLogs)
		authed.GET("/stats", s.handleGetStats)
		authed.GET("/analytics", s.handleGetAnalytics)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	dbConnected := s.store.Ping() == nil

	status := "ok"
	if !dbConnected {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"version":   Version,
		"mode":      s.manager.Safety().Mode,
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
		"database": gin.H{
			"connected": dbConnected,
		},
		"last_activity": s.manager.LastActivity(),
	})
}
