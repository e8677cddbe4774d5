package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralhub/neuralhub/internal/cache"
	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/memory/sqlstore"
)

func newTestRegistry(t *testing.T) (*Registry, memory.Store, bus.EventBus) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlstore.New(db, nil, false, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureTenant(context.Background(), "acme"))

	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	c := cache.New(time.Minute)
	t.Cleanup(c.Close)

	r := New(store, c, eventBus, 5*time.Minute, time.Minute, logger.NewNop())
	return r, store, eventBus
}

func TestRegisterPublishesEvent(t *testing.T) {
	r, _, eventBus := newTestRegistry(t)
	ctx := context.Background()

	events := make(chan *bus.Event, 1)
	_, err := eventBus.Subscribe(bus.SubjectAgentRegistered+".*", func(ctx context.Context, e *bus.Event) error {
		events <- e
		return nil
	})
	require.NoError(t, err)

	a, err := r.Register(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder", Capabilities: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, memory.AgentOnline, a.Status)

	select {
	case e := <-events:
		assert.Equal(t, "agent.registered", e.Type)
		assert.Equal(t, "coder", e.Data["agentId"])
	case <-time.After(time.Second):
		t.Fatal("expected agent.registered event")
	}
}

func TestListUsesCacheAndInvalidates(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)

	agents, err := r.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, agents, 1)

	// A new registration must not be hidden by the cached list.
	_, err = r.Register(ctx, "acme", &memory.Agent{ID: "reviewer", Name: "Reviewer"})
	require.NoError(t, err)

	agents, err = r.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestLiveConnections(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)

	assert.False(t, r.IsConnected("acme", "coder"))
	r.MarkConnected(ctx, "acme", "coder")
	assert.True(t, r.IsConnected("acme", "coder"))
	assert.Equal(t, 1, r.ConnectedCount("acme"))
	assert.Equal(t, 1, r.ConnectedCount(""))

	// Connection state is tenant-scoped.
	assert.False(t, r.IsConnected("globex", "coder"))
	assert.Zero(t, r.ConnectedCount("globex"))

	r.MarkDisconnected("acme", "coder")
	assert.False(t, r.IsConnected("acme", "coder"))
	assert.Zero(t, r.ConnectedCount(""))
}

func TestSweepMarksStaleAgentsOffline(t *testing.T) {
	r, store, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)

	// Zero stale window: everything currently online is stale.
	r.staleAfter = -time.Minute
	r.sweep(ctx)

	a, err := store.GetAgent(ctx, "acme", "coder")
	require.NoError(t, err)
	assert.Equal(t, memory.AgentOffline, a.Status)
}
