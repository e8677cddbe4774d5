package memory

import (
	"context"
	"time"
)

// Store is the persistence capability of the hub. Every operation takes the
// resolved tenant id from the request context; payload-supplied tenant ids
// are never used for scoping. The single implementation lives in sqlstore
// and runs on SQLite or PostgreSQL.
type Store interface {
	// Knowledge graph
	UpsertEntities(ctx context.Context, tenantID string, inputs []EntityInput) (*UpsertResult, error)
	AddObservations(ctx context.Context, tenantID, entityName string, contents []string) ([]*Observation, error)
	CreateRelations(ctx context.Context, tenantID string, triples []RelationInput) ([]*Relation, error)
	ReadGraph(ctx context.Context, tenantID string) (*Graph, error)
	SearchEntities(ctx context.Context, tenantID string, q SearchQuery) (*SearchResults, error)

	// Messaging. InsertMessages writes the whole batch in one transaction so
	// an observer never sees a partial fan-out.
	InsertMessages(ctx context.Context, tenantID string, msgs []*Message) error
	ListMessages(ctx context.Context, tenantID, agentID string, opts ListMessagesOptions) (*MessagesPage, error)
	MarkRead(ctx context.Context, tenantID, agentID string, ids []string) (int, error)

	// Agents
	UpsertAgent(ctx context.Context, tenantID string, agent *Agent) (*Agent, error)
	GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error)
	ListAgents(ctx context.Context, tenantID string) ([]*Agent, error)
	TouchAgent(ctx context.Context, tenantID, agentID string, status AgentStatus) error
	MarkStaleAgentsOffline(ctx context.Context, cutoff time.Time) (int, error)

	// Individual memory
	RecordLearning(ctx context.Context, tenantID string, l *Learning) (*Learning, error)
	SetPreferences(ctx context.Context, tenantID, agentID string, prefs map[string]string) error
	GetIndividualMemory(ctx context.Context, tenantID, agentID string, learningLimit int) (*IndividualMemory, error)

	// Sessions and handoffs
	OpenSession(ctx context.Context, tenantID, agentID, projectID string) (sess *Session, reused bool, err error)
	CloseSession(ctx context.Context, tenantID, agentID, projectID, summary string) (*Session, error)
	FindOpenSession(ctx context.Context, tenantID, agentID, projectID string) (*Session, error)
	LastClosedSession(ctx context.Context, tenantID, agentID, projectID string) (*Session, error)
	WriteHandoff(ctx context.Context, tenantID string, h *Handoff) (*Handoff, error)
	// ConsumeHandoff atomically claims the most recent unconsumed handoff for
	// the project, or returns nil when none is claimable. notBefore filters
	// out handoffs past the retention window.
	ConsumeHandoff(ctx context.Context, tenantID, projectID string, notBefore time.Time) (*Handoff, error)
	PeekHandoff(ctx context.Context, tenantID, projectID string, notBefore time.Time) (*Handoff, error)

	// Credentials
	LookupAPIKey(ctx context.Context, keyHash string) (*APIKey, error)
	EnsureAPIKey(ctx context.Context, key *APIKey) error
	IsTenantMember(ctx context.Context, principal, tenantID string) (bool, error)
	AddTenantMember(ctx context.Context, principal, tenantID string) error
	TenantExists(ctx context.Context, tenantID string) (bool, error)
	EnsureTenant(ctx context.Context, tenantID string) error

	// Health and counters
	Stats(ctx context.Context, tenantID string) (*TenantStats, error)
	Ping(ctx context.Context) error
	Close() error
}
