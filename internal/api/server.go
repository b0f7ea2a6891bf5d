// Package api exposes the recommendation records, the position book and
// the scan controls over HTTP and websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"options-advisor/config"
	"options-advisor/internal/database"
	"options-advisor/internal/events"
	"options-advisor/internal/position"
	"options-advisor/internal/scan"
)

// ScanControl is the slice of the scheduler the API exposes.
type ScanControl interface {
	Run(ctx context.Context, kind scan.Kind) scan.Report
	LastReport() *scan.Report
}

// MarketStatus reports gateway health for the health endpoint.
type MarketStatus interface {
	CacheStats() (hits, misses int64)
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.Repository
	book       *position.Book
	scans      ScanControl
	market     MarketStatus
	bus        *events.Bus
	hub        *WSHub
	cfg        config.ServerConfig
	logger     zerolog.Logger
}

// NewServer creates the API server and wires the websocket hub to the
// event bus.
func NewServer(repo *database.Repository, book *position.Book, scans ScanControl, market MarketStatus, bus *events.Bus, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		repo:   repo,
		book:   book,
		scans:  scans,
		market: market,
		bus:    bus,
		hub:    NewWSHub(logger),
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	s.router.Use(cors.New(corsConfig))

	s.registerRoutes()

	// Everything published on the bus streams to websocket clients.
	bus.SubscribeAll(s.hub.BroadcastEvent)

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	apiGroup := s.router.Group("/api")
	{
		apiGroup.GET("/positions", s.handleListPositions)
		apiGroup.GET("/recommendations", s.handleListRecommendations)
		apiGroup.GET("/resolutions", s.handleListResolutions)
		apiGroup.GET("/scans", s.handleListScanRuns)
		apiGroup.GET("/scans/latest", s.handleLatestScan)
		apiGroup.POST("/scan", s.handleTriggerScan)
		apiGroup.POST("/feedback", s.handleCreateFeedback)
	}
}

// Start runs the HTTP server and the websocket hub.
func (s *Server) Start() error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
