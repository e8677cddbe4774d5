package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/common/config"
	"github.com/neuralhub/neuralhub/internal/common/httpmw"
	"github.com/neuralhub/neuralhub/internal/common/logger"
)

const helloWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Agents connect from local processes and CI runners, not browsers.
		return true
	},
}

// WSServer serves the message-hub port: a single WebSocket endpoint that
// streams inbox pushes to connected agents.
type WSServer struct {
	cfg    *config.Config
	hub    *WSHub
	logger *logger.Logger

	engine *gin.Engine
	srv    *http.Server
}

// helloFrame is the first frame a client sends after the upgrade. The tenant
// comes from the authenticated request, never from the frame.
type helloFrame struct {
	AgentID string `json:"agentId"`
}

// NewWSServer builds the hub-port server.
func NewWSServer(cfg *config.Config, hub *WSHub, resolver *auth.Resolver, limiter *auth.RateLimiter, log *logger.Logger) *WSServer {
	s := &WSServer{
		cfg:    cfg,
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws_server")),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.CorrelationID())
	engine.Use(httpmw.RequestLogger(log, "hub"))
	engine.Use(auth.Middleware(resolver, limiter))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ws", s.handleWS)

	s.engine = engine
	return s
}

// Handler exposes the route tree, used by tests.
func (s *WSServer) Handler() http.Handler {
	return s.engine
}

// Start runs the hub listener until shut down.
func (s *WSServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Hub.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.engine}
	s.logger.Info("hub server listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections; live sockets are closed by WSHub.Stop.
func (s *WSServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleWS upgrades the connection and waits for the {agentId} hello before
// registering the client for pushes.
func (s *WSServer) handleWS(c *gin.Context) {
	rc := auth.MustRequestContext(c)
	if rc.TenantID == "" || rc.TenantID == auth.PublicTenant {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	agentID, err := readHello(conn, rc.AgentID)
	if err != nil {
		s.logger.Debug("websocket hello failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	client := newClient(rc.TenantID, agentID, conn, s.hub, s.cfg.Hub.SendQueue, s.logger)
	s.hub.register(client)

	ack, _ := json.Marshal(map[string]any{
		"type":     "connected",
		"tenantId": rc.TenantID,
		"agentId":  agentID,
	})
	client.enqueue(ack)

	go client.writePump()
	go client.readPump()
}

// readHello reads the first frame and returns the agent id it declares. The
// X-Agent-Id header serves as a fallback when the frame omits it.
func readHello(conn *websocket.Conn, fallback string) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}
	var hello helloFrame
	if err := json.Unmarshal(raw, &hello); err != nil {
		return "", fmt.Errorf("parse hello: %w", err)
	}
	if hello.AgentID == "" {
		hello.AgentID = fallback
	}
	if hello.AgentID == "" {
		return "", fmt.Errorf("hello frame must carry agentId")
	}
	return hello.AgentID, nil
}
