// Package hub is the network front of the system: the HTTP/JSON-RPC surface
// and the WebSocket fan-out that streams inbox pushes to connected agents.
// Storage stays authoritative; a client that misses a push recovers by
// reading its inbox.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
)

type clientKey struct {
	tenantID string
	agentID  string
}

// WSHub routes bus events to live WebSocket clients. One client per
// (tenant, agent); a reconnect replaces the previous socket.
type WSHub struct {
	registry *registry.Registry
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[clientKey]*Client

	// missed counts notifications dropped because a client's send queue was
	// full. Reported by /system/status.
	missed atomic.Int64

	sub bus.Subscription
}

// NewWSHub creates the fan-out hub.
func NewWSHub(reg *registry.Registry, log *logger.Logger) *WSHub {
	return &WSHub{
		registry: reg,
		logger:   log.WithFields(zap.String("component", "ws_hub")),
		clients:  make(map[clientKey]*Client),
	}
}

// Start subscribes to message-created events for all tenants.
func (h *WSHub) Start(eventBus bus.EventBus) error {
	sub, err := eventBus.Subscribe(bus.SubjectMessageCreated+".>", h.onMessageCreated)
	if err != nil {
		return err
	}
	h.sub = sub
	return nil
}

// Stop drops the bus subscription and closes every client.
func (h *WSHub) Stop() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}
	h.mu.Lock()
	for key, client := range h.clients {
		client.close()
		delete(h.clients, key)
	}
	h.mu.Unlock()
}

// onMessageCreated pushes the event payload to the recipient's socket if one
// is connected. Absent clients are fine; the message is already stored.
func (h *WSHub) onMessageCreated(ctx context.Context, event *bus.Event) error {
	tenantID, _ := event.Data["tenantId"].(string)
	agentID, _ := event.Data["to"].(string)
	if tenantID == "" || agentID == "" {
		return nil
	}

	h.mu.RLock()
	client := h.clients[clientKey{tenantID, agentID}]
	h.mu.RUnlock()
	if client == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"type":    "message",
		"payload": event.Data,
	})
	if err != nil {
		return err
	}
	if dropped := client.enqueue(payload); dropped {
		h.missed.Add(1)
	}
	return nil
}

// register adds a client, replacing any previous socket for the same agent.
func (h *WSHub) register(client *Client) {
	key := clientKey{client.tenantID, client.agentID}
	h.mu.Lock()
	if prev, ok := h.clients[key]; ok {
		prev.close()
	}
	h.clients[key] = client
	h.mu.Unlock()

	h.registry.MarkConnected(context.Background(), client.tenantID, client.agentID)
	h.logger.Info("agent connected",
		zap.String("tenant_id", client.tenantID),
		zap.String("agent_id", client.agentID))
}

// unregister removes the client if it is still the registered socket.
func (h *WSHub) unregister(client *Client) {
	key := clientKey{client.tenantID, client.agentID}
	h.mu.Lock()
	if h.clients[key] == client {
		delete(h.clients, key)
	}
	h.mu.Unlock()

	h.registry.MarkDisconnected(client.tenantID, client.agentID)
	h.logger.Info("agent disconnected",
		zap.String("tenant_id", client.tenantID),
		zap.String("agent_id", client.agentID))
}

// ClientCount returns the number of connected sockets.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MissedNotifications returns the number of dropped pushes since start.
func (h *WSHub) MissedNotifications() int64 {
	return h.missed.Load()
}
