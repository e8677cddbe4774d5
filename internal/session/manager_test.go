package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/memory/sqlstore"
)

func newTestManager(t *testing.T) (*Manager, memory.Store, bus.EventBus) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlstore.New(db, nil, false, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureTenant(context.Background(), "acme"))

	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	m := New(store, eventBus, 90*24*time.Hour, 10, 20, logger.NewNop())
	return m, store, eventBus
}

func TestBeginOpensAndReusesSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Begin(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Nil(t, first.Handoff)
	require.NotNil(t, first.ContextBundle)

	second, err := m.Begin(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestEndThenBeginHandsOff(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Begin(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)

	ended, err := m.End(ctx, "acme", "coder", "proj-1", "auth flow half done", []string{"wire refresh"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ended.HandoffID)
	assert.NotEmpty(t, ended.SessionID)

	// Any agent resuming the project receives the handoff, once.
	res, err := m.Begin(ctx, "acme", "reviewer", "proj-1")
	require.NoError(t, err)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, "auth flow half done", res.Handoff.Summary)
	assert.Equal(t, []string{"wire refresh"}, res.Handoff.OpenItems)
	require.NotNil(t, res.Handoff.ConsumedAt)
	// The bundle never re-reports the handoff this call just claimed.
	assert.Nil(t, res.ContextBundle.PendingHandoff)

	again, err := m.Begin(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.Nil(t, again.Handoff)
}

func TestConcurrentBeginConsumesHandoffOnce(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.End(ctx, "acme", "coder", "proj-1", "S", nil, nil)
	require.NoError(t, err)

	const callers = 4
	results := make([]*BeginResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Begin(ctx, "acme", uuid.New().String(), "proj-1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		if res.Handoff != nil {
			winners++
			assert.Equal(t, "S", res.Handoff.Summary)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestEndWithoutOpenSessionStillWritesHandoff(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.End(ctx, "acme", "coder", "proj-1", "notes", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.HandoffID)
	assert.Empty(t, res.SessionID)

	h, err := store.PeekHandoff(ctx, "acme", "proj-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "notes", h.Summary)
}

func TestEndRecordsLearningHints(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.End(ctx, "acme", "coder", "proj-1", "done", nil, []LearningHint{
		{Context: "deploys", Lesson: "check migrations", Confidence: 0.8},
	})
	require.NoError(t, err)

	im, err := store.GetIndividualMemory(ctx, "acme", "coder", 10)
	require.NoError(t, err)
	require.Len(t, im.Learnings, 1)
	assert.Equal(t, "check migrations", im.Learnings[0].Lesson)
}

func TestEndPublishesSessionEnded(t *testing.T) {
	m, _, eventBus := newTestManager(t)
	ctx := context.Background()

	events := make(chan *bus.Event, 1)
	_, err := eventBus.Subscribe(bus.SubjectSessionEnded+".*", func(ctx context.Context, e *bus.Event) error {
		events <- e
		return nil
	})
	require.NoError(t, err)

	_, err = m.End(ctx, "acme", "coder", "proj-1", "done", nil, nil)
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, "session.ended", e.Type)
		assert.Equal(t, "proj-1", e.Data["projectId"])
	case <-time.After(time.Second):
		t.Fatal("expected session.ended event")
	}
}

func TestBundleTiers(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := store.UpsertAgent(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder", Capabilities: []string{"go"}})
	require.NoError(t, err)
	require.NoError(t, store.InsertMessages(ctx, "acme", []*memory.Message{
		{ID: uuid.New().String(), From: "planner", To: "coder", Content: "unread", Type: "message", Priority: "normal"},
	}))
	_, err = store.RecordLearning(ctx, "acme", &memory.Learning{AgentID: "coder", Lesson: "lesson", Confidence: 0.7})
	require.NoError(t, err)
	require.NoError(t, store.SetPreferences(ctx, "acme", "coder", map[string]string{"style": "tabs"}))
	_, err = store.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "proj-1", Type: "project", Observations: []string{"the project"}},
	})
	require.NoError(t, err)

	hot, err := m.Bundle(ctx, "acme", "coder", "proj-1", DepthHot)
	require.NoError(t, err)
	require.NotNil(t, hot.Identity)
	assert.Len(t, hot.UnreadMessages, 1)
	assert.Empty(t, hot.Learnings)
	assert.Empty(t, hot.RelevantEntities)

	warm, err := m.Bundle(ctx, "acme", "coder", "proj-1", DepthWarm)
	require.NoError(t, err)
	assert.Len(t, warm.Learnings, 1)
	assert.Equal(t, "tabs", warm.Preferences["style"])
	assert.Empty(t, warm.RelevantEntities)

	cold, err := m.Bundle(ctx, "acme", "coder", "proj-1", DepthCold)
	require.NoError(t, err)
	require.NotEmpty(t, cold.RelevantEntities)
	assert.Equal(t, "proj-1", cold.RelevantEntities[0].Entity.Name)
	assert.Positive(t, cold.Meta.TokenEstimate)
}

func TestBundleUnknownDepth(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Bundle(context.Background(), "acme", "coder", "proj-1", "boiling")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))
}

func TestBundleDeterministic(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := store.UpsertAgent(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)
	_, err = store.RecordLearning(ctx, "acme", &memory.Learning{AgentID: "coder", Lesson: "l", Confidence: 0.5})
	require.NoError(t, err)

	a, err := m.Bundle(ctx, "acme", "coder", "proj-1", DepthWarm)
	require.NoError(t, err)
	b, err := m.Bundle(ctx, "acme", "coder", "proj-1", DepthWarm)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}
