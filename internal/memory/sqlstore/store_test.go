package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/vector"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, nil, false, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.EnsureTenant(context.Background(), "acme"))
	require.NoError(t, s.EnsureTenant(context.Background(), "globex"))
	return s
}

func TestUpsertEntitiesIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service", Observations: []string{"uses jwt"}},
		{Name: "billing", Type: "service"},
	})
	require.NoError(t, err)
	assert.Len(t, first.CreatedIDs, 2)
	assert.Empty(t, first.ExistingIDs)

	second, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service"},
	})
	require.NoError(t, err)
	assert.Empty(t, second.CreatedIDs)
	require.Len(t, second.ExistingIDs, 1)
	assert.Equal(t, first.CreatedIDs[0], second.ExistingIDs[0])

	// Same name under a different type is a distinct entity.
	third, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "team"},
	})
	require.NoError(t, err)
	assert.Len(t, third.CreatedIDs, 1)
}

func TestUpsertEntitiesValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertEntities(context.Background(), "acme", []memory.EntityInput{{Name: "", Type: "service"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	// A failed batch leaves nothing behind.
	graph, err := s.ReadGraph(context.Background(), "acme")
	require.NoError(t, err)
	assert.Zero(t, graph.Stats.Entities)
}

func TestAddObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{{Name: "auth-service", Type: "service"}})
	require.NoError(t, err)

	obs, err := s.AddObservations(ctx, "acme", "auth-service", []string{"rotates keys daily", "written in go"})
	require.NoError(t, err)
	assert.Len(t, obs, 2)

	_, err = s.AddObservations(ctx, "acme", "no-such-entity", []string{"x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCreateRelationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service"},
		{Name: "user-db", Type: "database"},
	})
	require.NoError(t, err)

	rels, err := s.CreateRelations(ctx, "acme", []memory.RelationInput{
		{From: "auth-service", To: "user-db", Type: "reads_from"},
	})
	require.NoError(t, err)
	require.Len(t, rels, 1)

	again, err := s.CreateRelations(ctx, "acme", []memory.RelationInput{
		{From: "auth-service", To: "user-db", Type: "reads_from"},
	})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, rels[0].ID, again[0].ID)

	_, err = s.CreateRelations(ctx, "acme", []memory.RelationInput{
		{From: "auth-service", To: "missing", Type: "calls"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestReadGraphIsTenantScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service", Observations: []string{"acme fact"}},
	})
	require.NoError(t, err)
	_, err = s.UpsertEntities(ctx, "globex", []memory.EntityInput{
		{Name: "auth-service", Type: "service", Observations: []string{"globex fact"}},
	})
	require.NoError(t, err)

	graph, err := s.ReadGraph(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, graph.Entities, 1)
	assert.Equal(t, []string{"acme fact"}, graph.Entities[0].Observations)
	assert.Equal(t, 1, graph.Stats.Observations)
}

func TestSearchExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service", Observations: []string{"validates tokens"}},
		{Name: "billing", Type: "service", Observations: []string{"charges cards"}},
	})
	require.NoError(t, err)

	res, err := s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "token", Mode: memory.SearchExact})
	require.NoError(t, err)
	assert.Equal(t, "exact", res.ModeUsed)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "auth-service", res.Results[0].Entity.Name)

	// Other tenants never leak into results.
	res, err = s.SearchEntities(ctx, "globex", memory.SearchQuery{Query: "token", Mode: memory.SearchExact})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestSearchSemanticWithoutVectorStore(t *testing.T) {
	s := newTestStore(t)

	res, err := s.SearchEntities(context.Background(), "acme", memory.SearchQuery{Query: "anything", Mode: memory.SearchSemantic})
	require.NoError(t, err)
	assert.Equal(t, "none", res.ModeUsed)
	assert.Empty(t, res.Results)
}

type downVector struct{}

func (downVector) Upsert(context.Context, string, string, string, string) error { return nil }

func (downVector) QuerySimilar(context.Context, string, string, int) ([]vector.Match, error) {
	return nil, errors.New("connection refused")
}

func (downVector) Healthy(context.Context) bool { return false }

func TestSearchSemanticDegradesWhenVectorDown(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := New(db, downVector{}, false, logger.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.EnsureTenant(ctx, "acme"))

	_, err = s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service", Observations: []string{"validates tokens"}},
	})
	require.NoError(t, err)

	// An unreachable service is a capability loss, not a request failure.
	_, serr := s.semanticSearch(ctx, "acme", "tokens", 5)
	require.Error(t, serr)
	assert.Equal(t, apperrors.KindDegradedCapability, apperrors.KindOf(serr))

	res, err := s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "tokens", Mode: memory.SearchSemantic})
	require.NoError(t, err)
	assert.Equal(t, "none", res.ModeUsed)
	assert.Empty(t, res.Results)

	res, err = s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "token", Mode: memory.SearchHybrid})
	require.NoError(t, err)
	assert.Equal(t, "exact", res.ModeUsed)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "auth-service", res.Results[0].Entity.Name)
}

func TestSearchGraphWalksRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "auth-service", Type: "service"},
		{Name: "user-db", Type: "database"},
		{Name: "audit-log", Type: "database"},
		{Name: "unrelated", Type: "service"},
	})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, "acme", []memory.RelationInput{
		{From: "auth-service", To: "user-db", Type: "reads_from"},
		{From: "user-db", To: "audit-log", Type: "mirrors_to"},
	})
	require.NoError(t, err)

	res, err := s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "auth-service", Mode: memory.SearchGraph})
	require.NoError(t, err)
	assert.Equal(t, "graph", res.ModeUsed)

	names := map[string]float64{}
	for _, m := range res.Results {
		names[m.Entity.Name] = m.Score
	}
	assert.Contains(t, names, "auth-service")
	assert.Contains(t, names, "user-db")
	assert.Contains(t, names, "audit-log")
	assert.NotContains(t, names, "unrelated")
	assert.Greater(t, names["auth-service"], names["user-db"])
	assert.Greater(t, names["user-db"], names["audit-log"])
}

func TestSearchGraphFollowsOutgoingEdgesOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntities(ctx, "acme", []memory.EntityInput{
		{Name: "root", Type: "service"},
		{Name: "leaf", Type: "service"},
	})
	require.NoError(t, err)
	_, err = s.CreateRelations(ctx, "acme", []memory.RelationInput{
		{From: "root", To: "leaf", Type: "depends_on"},
	})
	require.NoError(t, err)

	// Seeding on the edge target must not pull the source in.
	res, err := s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "leaf", Mode: memory.SearchGraph})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "leaf", res.Results[0].Entity.Name)

	// Seeding on the source still reaches the target.
	res, err = s.SearchEntities(ctx, "acme", memory.SearchQuery{Query: "root", Mode: memory.SearchGraph})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
}

func TestInsertAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msgs := []*memory.Message{
		{ID: uuid.New().String(), From: "planner", To: "coder", Content: "first", Type: "message", Priority: "normal"},
		{ID: uuid.New().String(), From: "planner", To: "coder", Content: "second", Type: "message", Priority: "high"},
		{ID: uuid.New().String(), From: "planner", To: "reviewer", Content: "other inbox", Type: "message", Priority: "normal"},
	}
	require.NoError(t, s.InsertMessages(ctx, "acme", msgs))

	page, err := s.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "first", page.Messages[0].Content)
	assert.Equal(t, "second", page.Messages[1].Content)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.Unread)
}

func TestListMessagesMarkAsReadOwnerOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMessages(ctx, "acme", []*memory.Message{
		{ID: uuid.New().String(), From: "planner", To: "coder", Content: "hello", Type: "message", Priority: "normal"},
	}))

	// A non-owner asking for markAsRead gets the rows but no stamping.
	page, err := s.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{MarkAsRead: true, CallerAgentID: "snooper"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Nil(t, page.Messages[0].ReadAt)

	page, err = s.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{MarkAsRead: true, CallerAgentID: "coder"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.NotNil(t, page.Messages[0].ReadAt)
	assert.Zero(t, page.Unread)

	page, err = s.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestListMessagesSinceID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		id := uuid.New().String()
		ids = append(ids, id)
		require.NoError(t, s.InsertMessages(ctx, "acme", []*memory.Message{
			{ID: id, From: "planner", To: "coder", Content: content, Type: "message", Priority: "normal"},
		}))
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.ListMessages(ctx, "acme", "coder", memory.ListMessagesOptions{SinceID: ids[0]})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "two", page.Messages[0].Content)
	assert.Equal(t, "three", page.Messages[1].Content)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.New().String()
	require.NoError(t, s.InsertMessages(ctx, "acme", []*memory.Message{
		{ID: id, From: "planner", To: "coder", Content: "hello", Type: "message", Priority: "normal"},
	}))

	n, err := s.MarkRead(ctx, "acme", "snooper", []string{id})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.MarkRead(ctx, "acme", "coder", []string{id})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Second stamp is a no-op.
	n, err = s.MarkRead(ctx, "acme", "coder", []string{id})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertAgentAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAgent(ctx, "acme", &memory.Agent{
		ID:           "coder",
		Name:         "Coder",
		Capabilities: []string{"go", "review"},
	})
	require.NoError(t, err)
	assert.Equal(t, memory.AgentOnline, a.Status)

	// Re-registration replaces capabilities and keeps created_at.
	b, err := s.UpsertAgent(ctx, "acme", &memory.Agent{
		ID:           "coder",
		Name:         "Coder v2",
		Capabilities: []string{"go"},
	})
	require.NoError(t, err)
	assert.Equal(t, a.CreatedAt, b.CreatedAt)

	agents, err := s.ListAgents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Coder v2", agents[0].Name)
	assert.Equal(t, []string{"go"}, agents[0].Capabilities)

	other, err := s.ListAgents(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTouchAgentAndSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAgent(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)

	require.NoError(t, s.TouchAgent(ctx, "acme", "coder", memory.AgentBusy))
	a, err := s.GetAgent(ctx, "acme", "coder")
	require.NoError(t, err)
	assert.Equal(t, memory.AgentBusy, a.Status)

	err = s.TouchAgent(ctx, "acme", "ghost", memory.AgentOnline)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	require.NoError(t, s.TouchAgent(ctx, "acme", "coder", memory.AgentOnline))
	n, err := s.MarkStaleAgentsOffline(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err = s.GetAgent(ctx, "acme", "coder")
	require.NoError(t, err)
	assert.Equal(t, memory.AgentOffline, a.Status)
}

func TestIndividualMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordLearning(ctx, "acme", &memory.Learning{
		AgentID: "coder", Context: "deploys", Lesson: "check migrations first", Confidence: 0.9,
	})
	require.NoError(t, err)
	_, err = s.RecordLearning(ctx, "acme", &memory.Learning{
		AgentID: "coder", Context: "deploys", Lesson: "roll back fast", Confidence: 0.5,
	})
	require.NoError(t, err)

	_, err = s.RecordLearning(ctx, "acme", &memory.Learning{AgentID: "coder", Lesson: "x", Confidence: 1.5})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	require.NoError(t, s.SetPreferences(ctx, "acme", "coder", map[string]string{"style": "tabs"}))
	require.NoError(t, s.SetPreferences(ctx, "acme", "coder", map[string]string{"style": "spaces", "editor": "vim"}))

	im, err := s.GetIndividualMemory(ctx, "acme", "coder", 10)
	require.NoError(t, err)
	assert.Len(t, im.Learnings, 2)
	assert.Equal(t, "spaces", im.Preferences["style"])
	assert.Equal(t, "vim", im.Preferences["editor"])

	// Private to the agent.
	other, err := s.GetIndividualMemory(ctx, "acme", "reviewer", 10)
	require.NoError(t, err)
	assert.Empty(t, other.Learnings)
	assert.Empty(t, other.Preferences)
}

func TestOpenSessionSingleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, reused, err := s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.False(t, reused)

	second, reused, err := s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, second.ID)

	// Different project opens independently.
	_, reused, err = s.OpenSession(ctx, "acme", "coder", "proj-2")
	require.NoError(t, err)
	assert.False(t, reused)
}

func TestOpenSessionUniqueIndexBacksSingleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _, err := s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)

	// The partial unique index rejects a second open row even when the
	// check-then-insert path is bypassed, so the invariant holds on
	// backends that let two transactions pass the check concurrently.
	q := s.rebind(`INSERT INTO sessions (id, tenant_id, project_id, agent_id, summary, opened_at)
		VALUES (?, ?, ?, ?, '', ?)`)
	_, err = s.db.DB().ExecContext(ctx, q, uuid.New().String(), "acme", "proj-1", "coder", time.Now())
	require.Error(t, err)

	// Closed rows are outside the index; history can accumulate.
	_, err = s.CloseSession(ctx, "acme", "coder", "proj-1", "done")
	require.NoError(t, err)
	next, reused, err := s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, sess.ID, next.ID)
}

func TestCloseSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)

	closed, err := s.CloseSession(ctx, "acme", "coder", "proj-1", "shipped the fix")
	require.NoError(t, err)
	assert.Equal(t, "shipped the fix", closed.Summary)
	require.NotNil(t, closed.ClosedAt)

	_, err = s.CloseSession(ctx, "acme", "coder", "proj-1", "again")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	last, err := s.LastClosedSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, closed.ID, last.ID)

	open, err := s.FindOpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestConsumeHandoffAtMostOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteHandoff(ctx, "acme", &memory.Handoff{
		ProjectID:        "proj-1",
		AuthoringAgentID: "coder",
		Summary:          "auth flow half done",
		OpenItems:        []string{"wire refresh tokens"},
	})
	require.NoError(t, err)

	notBefore := time.Now().Add(-time.Hour)

	peeked, err := s.PeekHandoff(ctx, "acme", "proj-1", notBefore)
	require.NoError(t, err)
	require.NotNil(t, peeked)

	got, err := s.ConsumeHandoff(ctx, "acme", "proj-1", notBefore)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "auth flow half done", got.Summary)
	assert.Equal(t, []string{"wire refresh tokens"}, got.OpenItems)
	require.NotNil(t, got.ConsumedAt)

	// Already consumed: nothing left to claim.
	again, err := s.ConsumeHandoff(ctx, "acme", "proj-1", notBefore)
	require.NoError(t, err)
	assert.Nil(t, again)

	// Other tenants never see it either way.
	cross, err := s.ConsumeHandoff(ctx, "globex", "proj-1", notBefore)
	require.NoError(t, err)
	assert.Nil(t, cross)
}

func TestConsumeHandoffRespectsRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteHandoff(ctx, "acme", &memory.Handoff{
		ProjectID: "proj-1", AuthoringAgentID: "coder", Summary: "old note",
	})
	require.NoError(t, err)

	// A cutoff in the future excludes everything written so far.
	got, err := s.ConsumeHandoff(ctx, "acme", "proj-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAPIKeysAndMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := &memory.APIKey{
		ID:       uuid.New().String(),
		TenantID: "acme",
		UserID:   "ops",
		Scopes:   []string{"admin"},
		KeyHash:  "abc123",
	}
	require.NoError(t, s.EnsureAPIKey(ctx, key))
	require.NoError(t, s.EnsureAPIKey(ctx, key))

	got, err := s.LookupAPIKey(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, []string{"admin"}, got.Scopes)

	_, err = s.LookupAPIKey(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	ok, err := s.IsTenantMember(ctx, "ops", "globex")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddTenantMember(ctx, "ops", "globex"))
	require.NoError(t, s.AddTenantMember(ctx, "ops", "globex"))
	ok, err = s.IsTenantMember(ctx, "ops", "globex")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAgent(ctx, "acme", &memory.Agent{ID: "coder", Name: "Coder"})
	require.NoError(t, err)
	require.NoError(t, s.InsertMessages(ctx, "acme", []*memory.Message{
		{ID: uuid.New().String(), From: "a", To: "coder", Content: "x", Type: "message", Priority: "normal"},
	}))
	_, err = s.UpsertEntities(ctx, "acme", []memory.EntityInput{{Name: "e", Type: "t"}})
	require.NoError(t, err)
	_, _, err = s.OpenSession(ctx, "acme", "coder", "proj-1")
	require.NoError(t, err)

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Agents)
	assert.Equal(t, 1, stats.Messages)
	assert.Equal(t, 1, stats.Unread)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 1, stats.Sessions)

	empty, err := s.Stats(ctx, "globex")
	require.NoError(t, err)
	assert.Zero(t, empty.Agents)
}
