// Package server implements the operator control surface (spec §6):
// /healthz, /status, /config, /pause, /resume and a /ws/events websocket
// feed of the events.Bus signal, trade and analysis events. Grounded on the teacher's
// internal/api/server.go (Server{router, httpServer, eventBus, config},
// gin.New + gin.Logger/Recovery + gin-contrib/cors, setupRoutes pattern)
// and websocket.go (WSHub{clients, broadcast, register, unregister} with
// a Run() fan-out goroutine), narrowed from the teacher's multi-tenant
// billing/autopilot/ginie route surface to the engine's own control
// endpoints, and from per-endpoint rate limiting (a Binance-ban concern
// the core no longer has) to none.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hyperdesk/perpcore/internal/engine"
	"github.com/hyperdesk/perpcore/internal/events"
	"github.com/hyperdesk/perpcore/internal/opauth"
	"github.com/hyperdesk/perpcore/internal/position"
	"github.com/hyperdesk/perpcore/internal/store"
	"github.com/hyperdesk/perpcore/internal/tradegate"
	"github.com/rs/zerolog"
)

// Config holds the HTTP server's own settings, separate from engine.Config.
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
}

// Server is the gin-backed control surface sitting in front of the
// Scheduler, TradeGate and PositionManager.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger

	scheduler *engine.Scheduler
	gate      *tradegate.Gate
	manager   *position.Manager
	bus       *events.Bus
	auth      *opauth.Manager
	store     *store.Store

	hub *Hub
}

func New(cfg Config, scheduler *engine.Scheduler, gate *tradegate.Gate, manager *position.Manager, bus *events.Bus, auth *opauth.Manager, sqlStore *store.Store, logger zerolog.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	s := &Server{
		router:    router,
		logger:    logger.With().Str("component", "Server").Logger(),
		scheduler: scheduler,
		gate:      gate,
		manager:   manager,
		bus:       bus,
		auth:      auth,
		store:     sqlStore,
		hub:       NewHub(),
	}

	go s.hub.Run()
	if bus != nil {
		bus.OnSignal(func(e events.SignalEvent) { s.hub.Broadcast("signal", e) })
		bus.OnTrade(func(e events.TradeEvent) { s.hub.Broadcast("trade", e) })
		bus.OnAnalysis(func(e events.AnalysisSummary) { s.hub.Broadcast("analysis", e) })
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealthz)

	if s.auth != nil {
		s.router.POST("/login", s.handleLogin)
	}

	protected := s.router.Group("/")
	if s.auth != nil {
		protected.Use(opauth.Middleware(s.auth))
	}

	protected.GET("/status", s.handleStatus)
	protected.GET("/config", s.handleGetConfig)
	protected.PUT("/config", s.handlePutConfig)
	protected.POST("/pause", s.handlePause)
	protected.POST("/resume", s.handleResume)
	protected.GET("/ws/events", s.handleWebsocket)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		OperatorID string `json:"operator_id"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, err := s.auth.Login(req.OperatorID, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"cycle":        s.scheduler.Cycle(),
		"processing":   s.scheduler.IsProcessing(),
		"mode":         s.scheduler.Config().Mode,
		"positions":    s.manager.Count(),
	}
	if s.gate != nil {
		status["gate"] = s.gate.Snapshot()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.Config())
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var cfg engine.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config body"})
		return
	}
	s.scheduler.UpdateConfig(cfg)
	s.persistConfig()
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) handlePause(c *gin.Context) {
	cfg := s.scheduler.Config()
	cfg.Mode = engine.ModeManual
	s.scheduler.UpdateConfig(cfg)
	s.persistConfig()
	c.JSON(http.StatusOK, gin.H{"mode": cfg.Mode})
}

func (s *Server) handleResume(c *gin.Context) {
	cfg := s.scheduler.Config()
	cfg.Mode = engine.ModeAuto
	s.scheduler.UpdateConfig(cfg)
	s.persistConfig()
	c.JSON(http.StatusOK, gin.H{"mode": cfg.Mode})
}

// persistConfig writes the current EngineConfig to the config store so a
// restart picks up the operator's last edit instead of the file-loaded
// default. No-op if the store is unavailable.
func (s *Server) persistConfig() {
	if s.store == nil {
		return
	}
	schedCfg := s.scheduler.Config()
	row := store.EngineConfigRow{
		Name:                "default",
		Symbols:             schedCfg.Symbols,
		Timeframes:          schedCfg.Timeframes,
		Mode:                string(schedCfg.Mode),
		Strategy:            schedCfg.Strategy,
		MaxConcurrentTrades: 0,
	}
	if s.gate != nil {
		gateCfg := s.gate.Config()
		row.Leverage = gateCfg.Leverage
		row.MaxConcurrentTrades = gateCfg.MaxConcurrentTrades
		row.RSIOverbought = gateCfg.RSIOverbought
		row.RSIOversold = gateCfg.RSIOversold
		row.TPSLMode = string(gateCfg.TPSLMode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveConfig(ctx, row); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist engine config")
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	ServeWS(s.hub, c.Writer, c.Request, s.logger)
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control surface listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
