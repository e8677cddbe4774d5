package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/cache"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/memory/sqlstore"
	"github.com/neuralhub/neuralhub/internal/router"
	"github.com/neuralhub/neuralhub/internal/session"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, memory.Store) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewNop()
	store, err := sqlstore.New(db, nil, false, log)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.EnsureTenant(ctx, "acme"))
	require.NoError(t, store.EnsureTenant(ctx, "globex"))

	eventBus := bus.NewMemoryEventBus(log)
	c := cache.New(time.Minute)
	t.Cleanup(c.Close)
	reg := registry.New(store, c, eventBus, 5*time.Minute, time.Minute, log)
	rt := router.New(store, reg, eventBus, log)
	sm := session.New(store, eventBus, 90*24*time.Hour, 10, 20, log)

	d, err := New(store, reg, rt, sm, c, log)
	require.NoError(t, err)
	return d, store
}

func rcFor(tenant, agent string) *auth.RequestContext {
	return &auth.RequestContext{TenantID: tenant, AgentID: agent}
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestToolsListComplete(t *testing.T) {
	d, _ := newTestDispatcher(t)

	names := make([]string, 0)
	for _, tool := range d.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"create_entities", "add_observations", "create_relations", "read_graph",
		"search_entities", "send_ai_message", "get_ai_messages", "register_agent",
		"set_agent_identity", "get_agent_status", "record_learning",
		"set_preferences", "get_individual_memory", "get_agent_context",
		"begin_session", "end_session", "translate_path", "search_nodes",
	}, names)
}

func TestCallUnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res, err := d.Call(context.Background(), rcFor("acme", ""), "no_such_tool", nil)
	require.Error(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCallRequiresTenant(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Call(context.Background(), rcFor(auth.PublicTenant, ""), "read_graph", nil)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	_, err = d.Call(context.Background(), nil, "read_graph", nil)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
}

func TestCallEnforcesScopes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	rc := &auth.RequestContext{TenantID: "acme", Scopes: []string{ScopeRead}}

	_, err := d.Call(context.Background(), rc, "read_graph", nil)
	require.NoError(t, err)

	_, err = d.Call(context.Background(), rc, "create_entities", map[string]any{
		"entities": []any{map[string]any{"name": "e", "type": "t"}},
	})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
}

func TestSchemaViolationIsInvalidArgument(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res, err := d.Call(context.Background(), rcFor("acme", ""), "search_entities", map[string]any{})
	require.Error(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
}

func TestArgsCannotSpoofTenant(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	// A tenantId inside arguments is data, not identity.
	_, err := d.Call(ctx, rcFor("acme", ""), "create_entities", map[string]any{
		"tenantId": "globex",
		"entities": []any{map[string]any{"name": "secret", "type": "service"}},
	})
	require.NoError(t, err)

	acme, err := store.ReadGraph(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, acme.Stats.Entities)

	globex, err := store.ReadGraph(ctx, "globex")
	require.NoError(t, err)
	assert.Zero(t, globex.Stats.Entities)
}

func TestGraphToolsRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	rc := rcFor("acme", "")

	res, err := d.Call(ctx, rc, "create_entities", map[string]any{
		"entities": []any{
			map[string]any{"name": "auth-service", "type": "service", "observations": []any{"uses jwt"}},
			map[string]any{"name": "user-db", "type": "database"},
		},
	})
	require.NoError(t, err)
	created := decodeResult(t, res)
	assert.Len(t, created["createdIds"], 2)

	_, err = d.Call(ctx, rc, "add_observations", map[string]any{
		"entityName":   "auth-service",
		"observations": []any{"rotates keys"},
	})
	require.NoError(t, err)

	_, err = d.Call(ctx, rc, "create_relations", map[string]any{
		"relations": []any{map[string]any{"from": "auth-service", "to": "user-db", "relationType": "reads_from"}},
	})
	require.NoError(t, err)

	res, err = d.Call(ctx, rc, "read_graph", nil)
	require.NoError(t, err)
	graph := decodeResult(t, res)
	stats := graph["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["entities"])
	assert.EqualValues(t, 1, stats["relations"])
	assert.EqualValues(t, 2, stats["observations"])
}

func TestSearchNodesAliasMatchesGraphMode(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	rc := rcFor("acme", "")

	_, err := d.Call(ctx, rc, "create_entities", map[string]any{
		"entities": []any{
			map[string]any{"name": "auth-service", "type": "service"},
			map[string]any{"name": "user-db", "type": "database"},
		},
	})
	require.NoError(t, err)
	_, err = d.Call(ctx, rc, "create_relations", map[string]any{
		"relations": []any{map[string]any{"from": "auth-service", "to": "user-db", "relationType": "reads_from"}},
	})
	require.NoError(t, err)

	viaAlias, err := d.Call(ctx, rc, "search_nodes", map[string]any{"query": "auth-service"})
	require.NoError(t, err)
	viaMode, err := d.Call(ctx, rc, "search_entities", map[string]any{"query": "auth-service", "mode": "graph"})
	require.NoError(t, err)

	aliasText, _ := mcp.AsTextContent(viaAlias.Content[0])
	modeText, _ := mcp.AsTextContent(viaMode.Content[0])
	assert.JSONEq(t, modeText.Text, aliasText.Text)
}

func TestSendMessageLegacyAliases(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Call(ctx, rcFor("acme", ""), "register_agent", map[string]any{
		"agentId": "coder", "name": "Coder",
	})
	require.NoError(t, err)

	// Legacy wire shape: agentId instead of to, message instead of content.
	res, err := d.Call(ctx, rcFor("acme", "planner"), "send_ai_message", map[string]any{
		"agentId": "coder",
		"message": "legacy ping",
	})
	require.NoError(t, err)
	sent := decodeResult(t, res)
	assert.Equal(t, []any{"coder"}, sent["recipients"].([]any))

	page, err := store.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "legacy ping", page.Messages[0].Content)
	assert.Equal(t, "planner", page.Messages[0].From)
}

func TestGetMessagesMarkAsReadOwnerOnly(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Call(ctx, rcFor("acme", ""), "register_agent", map[string]any{"agentId": "coder", "name": "Coder"})
	require.NoError(t, err)
	_, err = d.Call(ctx, rcFor("acme", "planner"), "send_ai_message", map[string]any{
		"to": "coder", "content": "hello",
	})
	require.NoError(t, err)

	// A different connection agent cannot stamp coder's inbox.
	res, err := d.Call(ctx, rcFor("acme", "snooper"), "get_ai_messages", map[string]any{
		"agentId": "coder", "markAsRead": true,
	})
	require.NoError(t, err)
	page := decodeResult(t, res)
	assert.EqualValues(t, 1, page["unread"])

	res, err = d.Call(ctx, rcFor("acme", "coder"), "get_ai_messages", map[string]any{
		"agentId": "coder", "markAsRead": true,
	})
	require.NoError(t, err)
	page = decodeResult(t, res)
	assert.EqualValues(t, 0, page["unread"])
}

func TestAgentIdentityTools(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Call(ctx, rcFor("acme", "coder"), "register_agent", map[string]any{
		"name": "Coder", "capabilities": []any{"go"},
	})
	require.NoError(t, err)

	// Partial identity update keeps unspecified fields.
	_, err = d.Call(ctx, rcFor("acme", "coder"), "set_agent_identity", map[string]any{
		"name": "Coder Prime",
	})
	require.NoError(t, err)

	res, err := d.Call(ctx, rcFor("acme", ""), "get_agent_status", map[string]any{"agentId": "coder"})
	require.NoError(t, err)
	status := decodeResult(t, res)
	agent := status["agent"].(map[string]any)
	assert.Equal(t, "Coder Prime", agent["name"])
	assert.Equal(t, []any{"go"}, agent["capabilities"])

	res, err = d.Call(ctx, rcFor("acme", ""), "get_agent_status", nil)
	require.NoError(t, err)
	all := decodeResult(t, res)
	assert.EqualValues(t, 1, all["count"])
}

func TestIndividualMemoryTools(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	rc := rcFor("acme", "coder")

	_, err := d.Call(ctx, rc, "record_learning", map[string]any{
		"lesson": "check migrations first", "context": "deploys", "confidence": 0.9,
	})
	require.NoError(t, err)

	_, err = d.Call(ctx, rc, "set_preferences", map[string]any{
		"preferences": map[string]any{"style": "tabs"},
	})
	require.NoError(t, err)

	res, err := d.Call(ctx, rc, "get_individual_memory", nil)
	require.NoError(t, err)
	im := decodeResult(t, res)
	assert.Len(t, im["learnings"], 1)
	prefs := im["preferences"].(map[string]any)
	assert.Equal(t, "tabs", prefs["style"])
}

func TestSessionToolsHandoffFlow(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Call(ctx, rcFor("acme", "coder"), "begin_session", map[string]any{"projectId": "proj-1"})
	require.NoError(t, err)
	first := decodeResult(t, res)
	assert.NotEmpty(t, first["sessionId"])
	assert.Nil(t, first["handoff"])

	_, err = d.Call(ctx, rcFor("acme", "coder"), "end_session", map[string]any{
		"projectId": "proj-1",
		"summary":   "auth half done",
		"openItems": []any{"wire refresh"},
		"learnings": []any{map[string]any{"lesson": "oauth scopes are tricky", "confidence": 0.7}},
	})
	require.NoError(t, err)

	res, err = d.Call(ctx, rcFor("acme", "reviewer"), "begin_session", map[string]any{"projectId": "proj-1"})
	require.NoError(t, err)
	resumed := decodeResult(t, res)
	handoff := resumed["handoff"].(map[string]any)
	assert.Equal(t, "auth half done", handoff["summary"])
}

func TestGetAgentContextDepthValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Call(context.Background(), rcFor("acme", "coder"), "get_agent_context", map[string]any{
		"depth": "scalding",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
}

func TestTranslatePath(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	rc := rcFor("acme", "")

	res, err := d.Call(ctx, rc, "translate_path", map[string]any{"path": `C:\Users\dev\project`})
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "/c/Users/dev/project", out["posix"])
	assert.Equal(t, `C:\Users\dev\project`, out["windows"])

	res, err = d.Call(ctx, rc, "translate_path", map[string]any{"path": "/home/dev/project", "style": "windows"})
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, `\home\dev\project`, out["translated"])
}

func TestCallTouchesCallingAgent(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Call(ctx, rcFor("acme", "coder"), "register_agent", map[string]any{"name": "Coder"})
	require.NoError(t, err)
	require.NoError(t, store.TouchAgent(ctx, "acme", "coder", memory.AgentBusy))

	_, err = d.Call(ctx, rcFor("acme", "coder"), "read_graph", nil)
	require.NoError(t, err)

	a, err := store.GetAgent(ctx, "acme", "coder")
	require.NoError(t, err)
	assert.Equal(t, memory.AgentOnline, a.Status)
}
