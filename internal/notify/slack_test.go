package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuralhub/neuralhub/internal/common/config"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
)

func TestNilWhenUnconfigured(t *testing.T) {
	n := NewSlackNotifier(config.SlackConfig{}, logger.NewNop())
	assert.Nil(t, n)
}

func TestPostsOnSessionEnded(t *testing.T) {
	received := make(chan map[string]string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	log := logger.NewNop()
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: ts.URL}, log)
	require.NotNil(t, n)

	eventBus := bus.NewMemoryEventBus(log)
	ctx := context.Background()
	require.NoError(t, n.Start(eventBus))
	defer n.Stop()

	err := eventBus.Publish(ctx, bus.SubjectSessionEnded+".acme",
		bus.NewEvent("session.ended", "session", map[string]any{
			"tenantId":  "acme",
			"agentId":   "coder",
			"projectId": "website",
			"summary":   "shipped the landing page",
		}))
	require.NoError(t, err)

	payload := <-received
	assert.Contains(t, payload["text"], "coder")
	assert.Contains(t, payload["text"], "website")
	assert.Contains(t, payload["text"], "shipped the landing page")
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	log := logger.NewNop()
	n := NewSlackNotifier(config.SlackConfig{WebhookURL: ts.URL}, log)
	require.NotNil(t, n)

	eventBus := bus.NewMemoryEventBus(log)
	ctx := context.Background()
	require.NoError(t, n.Start(eventBus))
	defer n.Stop()

	// The handler logs and returns nil, so publishing still succeeds.
	err := eventBus.Publish(ctx, bus.SubjectSessionEnded+".acme",
		bus.NewEvent("session.ended", "session", map[string]any{"tenantId": "acme"}))
	assert.NoError(t, err)
}
