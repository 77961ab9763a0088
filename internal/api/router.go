// Package api provides the HTTP surface: backtest runs and history, live
// trading control and status, and the WebSocket status stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"papertrader/internal/backtest"
	"papertrader/internal/gateway"
	"papertrader/internal/live"
	"papertrader/internal/logger"
	"papertrader/internal/tradelog"
)

// Server bundles the request handlers' collaborators.
type Server struct {
	runner   *backtest.Runner
	store    *backtest.Store
	trader   *live.Trader
	liveLogs *tradelog.CSVLogger
	hub      *gateway.Hub
}

// NewServer wires the handlers to their collaborators.
func NewServer(runner *backtest.Runner, store *backtest.Store, trader *live.Trader, liveLogs *tradelog.CSVLogger, hub *gateway.Hub) *Server {
	return &Server{
		runner:   runner,
		store:    store,
		trader:   trader,
		liveLogs: liveLogs,
		hub:      hub,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors())

	r.POST("/run-backtest", s.runBacktest)
	r.GET("/backtest-history", s.backtestHistory)
	r.GET("/read-log/:filename", s.readLog)

	r.POST("/live/start", s.startLive)
	r.POST("/live/stop", s.stopLive)
	r.GET("/live/status", s.liveStatus)
	r.GET("/live-logs", s.listLiveLogs)
	r.GET("/read-live-log/:filename", s.readLiveLog)

	r.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWS(c.Writer, c.Request)
	})

	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

type backtestRequest struct {
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
	Limit      int      `json:"limit"`
}

func (s *Server) runBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Symbols) == 0 || len(req.Timeframes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols and timeframes are required"})
		return
	}

	results := s.runner.RunMany(c.Request.Context(), req.Symbols, req.Timeframes, req.Limit)
	runID := backtest.NewRunID(time.Now())

	summaries := make([]interface{}, 0, len(results))
	for _, res := range results {
		if len(res.Ledger) > 0 {
			name, err := s.store.Save(runID, res)
			if err != nil {
				logger.Error("[api] save ledger %s %s: %v", res.Summary.Symbol, res.Summary.Timeframe, err)
			} else {
				res.Summary.File = name
				res.Summary.RunID = runID
			}
		}
		summaries = append(summaries, res.Summary)
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) backtestHistory(c *gin.Context) {
	hist, err := s.store.History()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list backtest history"})
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (s *Server) readLog(c *gin.Context) {
	rows, stats, err := s.store.Read(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "statistics": stats})
}

type liveRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (s *Server) startLive(c *gin.Context) {
	var req liveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	if req.Timeframe == "" {
		req.Timeframe = "1h"
	}

	if err := s.trader.StartTrading(req.Symbol, req.Timeframe); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already trading " + req.Symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "started trading " + req.Symbol})
}

func (s *Server) stopLive(c *gin.Context) {
	var req liveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	if err := s.trader.StopTrading(req.Symbol); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not trading " + req.Symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stopped trading " + req.Symbol})
}

func (s *Server) liveStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.trader.Status())
}

func (s *Server) listLiveLogs(c *gin.Context) {
	files, err := s.liveLogs.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list live logs"})
		return
	}
	c.JSON(http.StatusOK, files)
}

func (s *Server) readLiveLog(c *gin.Context) {
	rows, stats, err := s.liveLogs.Read(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "statistics": stats})
}
