// Package registry tracks the agents registered within each tenant: their
// durable registration rows, their live hub connections, and a background
// sweeper that flips silent agents offline.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/cache"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
)

const agentListCacheKind = "agents"

// Registry is the agent presence layer. Registrations live in the store;
// live connection state is in-process only and resets on restart.
type Registry struct {
	store  memory.Store
	cache  *cache.Cache
	bus    bus.EventBus
	logger *logger.Logger

	mu   sync.RWMutex
	live map[string]map[string]struct{} // tenant -> connected agent ids

	staleAfter time.Duration
	sweepEvery time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
}

// New creates a registry. The cache may be nil.
func New(store memory.Store, c *cache.Cache, eventBus bus.EventBus, staleAfter, sweepEvery time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		store:      store,
		cache:      c,
		bus:        eventBus,
		logger:     log.WithFields(zap.String("component", "registry")),
		live:       make(map[string]map[string]struct{}),
		staleAfter: staleAfter,
		sweepEvery: sweepEvery,
		stop:       make(chan struct{}),
	}
}

// Register upserts the agent's registration, brings it online, and announces
// it on the bus. Re-registration with the same id replaces the previous
// capability set.
func (r *Registry) Register(ctx context.Context, tenantID string, agent *memory.Agent) (*memory.Agent, error) {
	registered, err := r.store.UpsertAgent(ctx, tenantID, agent)
	if err != nil {
		return nil, err
	}
	r.invalidate(tenantID)

	subject := fmt.Sprintf("%s.%s", bus.SubjectAgentRegistered, tenantID)
	event := bus.NewEvent("agent.registered", "registry", map[string]any{
		"tenantId":     tenantID,
		"agentId":      registered.ID,
		"name":         registered.Name,
		"capabilities": registered.Capabilities,
	})
	if err := r.bus.Publish(ctx, subject, event); err != nil {
		r.logger.Warn("failed to publish agent registration",
			zap.String("tenant_id", tenantID),
			zap.String("agent_id", registered.ID),
			zap.Error(err))
	}
	return registered, nil
}

// List returns the tenant's agents, served from cache when fresh.
func (r *Registry) List(ctx context.Context, tenantID string) ([]*memory.Agent, error) {
	key := cache.Key(tenantID, "", agentListCacheKind)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if agents, ok := v.([]*memory.Agent); ok {
				return agents, nil
			}
		}
	}
	agents, err := r.store.ListAgents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, agents)
	}
	return agents, nil
}

// Get returns one agent registration.
func (r *Registry) Get(ctx context.Context, tenantID, agentID string) (*memory.Agent, error) {
	return r.store.GetAgent(ctx, tenantID, agentID)
}

// Heartbeat refreshes the agent's last_seen and status.
func (r *Registry) Heartbeat(ctx context.Context, tenantID, agentID string, status memory.AgentStatus) error {
	if status == "" {
		status = memory.AgentOnline
	}
	if err := r.store.TouchAgent(ctx, tenantID, agentID, status); err != nil {
		return err
	}
	r.invalidate(tenantID)
	return nil
}

// MarkConnected records a live hub connection for the agent and brings its
// registration online.
func (r *Registry) MarkConnected(ctx context.Context, tenantID, agentID string) {
	r.mu.Lock()
	if r.live[tenantID] == nil {
		r.live[tenantID] = make(map[string]struct{})
	}
	r.live[tenantID][agentID] = struct{}{}
	r.mu.Unlock()

	// Connections from unregistered agents are allowed; only registered ones
	// have a row to touch.
	if err := r.store.TouchAgent(ctx, tenantID, agentID, memory.AgentOnline); err != nil {
		r.logger.Debug("connected agent has no registration",
			zap.String("tenant_id", tenantID),
			zap.String("agent_id", agentID))
	}
	r.invalidate(tenantID)
}

// MarkDisconnected drops the live connection record.
func (r *Registry) MarkDisconnected(tenantID, agentID string) {
	r.mu.Lock()
	if agents, ok := r.live[tenantID]; ok {
		delete(agents, agentID)
		if len(agents) == 0 {
			delete(r.live, tenantID)
		}
	}
	r.mu.Unlock()
	r.invalidate(tenantID)
}

// IsConnected reports whether the agent currently holds a hub connection.
func (r *Registry) IsConnected(tenantID, agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[tenantID][agentID]
	return ok
}

// ConnectedCount returns the number of live connections for a tenant, or
// across all tenants when tenantID is empty.
func (r *Registry) ConnectedCount(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tenantID != "" {
		return len(r.live[tenantID])
	}
	n := 0
	for _, agents := range r.live {
		n += len(agents)
	}
	return n
}

// StartSweeper launches the background loop that flips agents offline when
// their last_seen falls behind the stale window.
func (r *Registry) StartSweeper(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	n, err := r.store.MarkStaleAgentsOffline(ctx, cutoff)
	if err != nil {
		r.logger.Warn("stale agent sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("marked stale agents offline", zap.Int("count", n))
	}
}

// Stop halts the sweeper and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Registry) invalidate(tenantID string) {
	if r.cache != nil {
		r.cache.InvalidatePrefix(tenantID + ":")
	}
}
