package hub

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/common/config"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/httpmw"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/router"
	"github.com/neuralhub/neuralhub/internal/tools"
	"github.com/neuralhub/neuralhub/internal/vector"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server is the API front: JSON-RPC tool surface plus the REST convenience
// routes. The WebSocket hub runs on its own port, see WSServer.
type Server struct {
	cfg        *config.Config
	store      memory.Store
	registry   *registry.Registry
	router     *router.Router
	dispatcher *tools.Dispatcher
	wshub      *WSHub
	bus        bus.EventBus
	vec        vector.Store
	logger     *logger.Logger

	started time.Time
	engine  *gin.Engine
	srv     *http.Server
}

// NewServer builds the API server with routes and middleware installed.
func NewServer(
	cfg *config.Config,
	store memory.Store,
	reg *registry.Registry,
	rt *router.Router,
	dispatcher *tools.Dispatcher,
	wshub *WSHub,
	eventBus bus.EventBus,
	vec vector.Store,
	resolver *auth.Resolver,
	limiter *auth.RateLimiter,
	log *logger.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		registry:   reg,
		router:     rt,
		dispatcher: dispatcher,
		wshub:      wshub,
		bus:        eventBus,
		vec:        vec,
		logger:     log.WithFields(zap.String("component", "api_server")),
		started:    time.Now().UTC(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.CorrelationID())
	engine.Use(httpmw.RequestLogger(log, "api"))
	engine.Use(httpmw.OtelTracing("api"))
	engine.Use(httpmw.Deadline(cfg.Server.RequestTimeout()))
	engine.Use(auth.Middleware(resolver, limiter))

	engine.GET("/health", s.handleHealth)
	engine.GET("/health.json", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	engine.POST("/mcp", s.handleMCP)
	engine.POST("/ai-message", s.handleSendMessage)
	engine.GET("/ai-messages/:agentId", s.handleGetMessages)
	engine.GET("/system/status", s.handleSystemStatus)

	s.engine = engine
	return s
}

// Handler exposes the route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the HTTP listener until the server is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
	}
	s.logger.Info("api server listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"time":    time.Now().UTC(),
	})
}

// handleReady reports 503 until the store answers a ping.
func (s *Server) handleReady(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

type sendMessageRequest struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	ToCapabilities []string `json:"toCapabilities"`
	Broadcast      bool     `json:"broadcast"`
	ExcludeSelf    *bool    `json:"excludeSelf"`
	Content        string   `json:"content"`
	Type           string   `json:"type"`
	Priority       string   `json:"priority"`
}

// handleSendMessage is the REST wrapper over the router, equivalent to the
// send_ai_message tool.
func (s *Server) handleSendMessage(c *gin.Context) {
	rc := auth.MustRequestContext(c)
	if rc.TenantID == "" || rc.TenantID == auth.PublicTenant {
		auth.Abort(c, apperrors.Unauthorized("authentication required"))
		return
	}

	var body sendMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		auth.Abort(c, apperrors.InvalidArgument("body", "invalid JSON body"))
		return
	}
	if body.From == "" {
		body.From = rc.AgentID
	}

	result, err := s.router.Send(c.Request.Context(), rc.TenantID, router.SendRequest{
		From:         body.From,
		To:           body.To,
		Capabilities: body.ToCapabilities,
		Broadcast:    body.Broadcast,
		IncludeSelf:  body.ExcludeSelf != nil && !*body.ExcludeSelf,
		Content:      body.Content,
		Type:         body.Type,
		Priority:     body.Priority,
	})
	if err != nil {
		auth.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetMessages reads an agent's inbox, equivalent to the get_ai_messages
// tool. Read receipts are only stamped when the connection identifies itself
// as the inbox owner.
func (s *Server) handleGetMessages(c *gin.Context) {
	rc := auth.MustRequestContext(c)
	if rc.TenantID == "" || rc.TenantID == auth.PublicTenant {
		auth.Abort(c, apperrors.Unauthorized("authentication required"))
		return
	}

	agentID := c.Param("agentId")
	caller := rc.AgentID
	if caller == "" {
		caller = agentID
	}

	opts := memory.ListMessagesOptions{
		UnreadOnly:    c.Query("unreadOnly") == "true",
		MarkAsRead:    c.Query("markAsRead") == "true",
		SinceID:       c.Query("sinceId"),
		CallerAgentID: caller,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			auth.Abort(c, apperrors.InvalidArgument("limit", "limit must be an integer"))
			return
		}
		opts.Limit = n
	}

	page, err := s.store.ListMessages(c.Request.Context(), rc.TenantID, agentID, opts)
	if err != nil {
		auth.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleSystemStatus reports component health and coarse counters for the
// caller's tenant.
func (s *Server) handleSystemStatus(c *gin.Context) {
	rc := auth.MustRequestContext(c)
	ctx := c.Request.Context()

	dbStatus := "ok"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "down"
	}
	busStatus := "down"
	if s.bus != nil && s.bus.IsConnected() {
		busStatus = "ok"
	}
	vectorStatus := "absent"
	if s.vec != nil {
		vectorStatus = "down"
		if s.vec.Healthy(ctx) {
			vectorStatus = "ok"
		}
	}

	status := gin.H{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"components": gin.H{
			"database":  dbStatus,
			"bus":       busStatus,
			"vector":    vectorStatus,
			"websocket": gin.H{"clients": s.wshub.ClientCount(), "missedNotifications": s.wshub.MissedNotifications()},
		},
	}
	if dbStatus != "ok" || busStatus != "ok" {
		status["status"] = "degraded"
	}

	if rc.TenantID != "" && rc.TenantID != auth.PublicTenant {
		stats, err := s.store.Stats(ctx, rc.TenantID)
		if err == nil {
			status["tenant"] = gin.H{
				"id":        rc.TenantID,
				"counters":  stats,
				"connected": s.registry.ConnectedCount(rc.TenantID),
			}
		}
	}

	c.JSON(http.StatusOK, status)
}
