// Package memory defines the tenant-scoped durable state of the hub: the
// knowledge graph, agent inboxes, agent identities, individual memory, and
// session/handoff records. Every row belongs to exactly one tenant and every
// store operation is scoped by tenant id.
package memory

import "time"

// Entity is a human-meaningful node in the knowledge graph. Name is unique
// within (tenant, type); creating a duplicate returns the existing entity.
type Entity struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Observation is an append-only textual fact about an entity. Observations
// are never mutated after insert.
type Observation struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	EntityID  string    `json:"entityId" db:"entity_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Relation is a directed typed edge between two entities of the same tenant.
// (from, to, type) is unique within a tenant.
type Relation struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"-" db:"tenant_id"`
	FromEntityID string    `json:"fromEntityId" db:"from_entity_id"`
	ToEntityID   string    `json:"toEntityId" db:"to_entity_id"`
	RelationType string    `json:"relationType" db:"relation_type"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// AgentStatus enumerates the lifecycle states of a registered agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
)

// Agent is a named participant within a tenant. Capabilities are free-form
// tags used by the router for capability-based delivery.
type Agent struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"-"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities"`
	Status       AgentStatus       `json:"status"`
	LastSeen     time.Time         `json:"lastSeen"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// HasCapabilities reports whether the agent declares every tag in want
// (AND semantics).
func (a *Agent) HasCapabilities(want []string) bool {
	if len(want) == 0 {
		return false
	}
	have := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = true
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

// Message is an addressed note between two agents. Only ReadAt may change
// after insert.
type Message struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"-"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	Priority  string     `json:"priority"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// Learning is a durable agent-private note used to seed later context
// bundles. Confidence is in [0,1].
type Learning struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"-"`
	AgentID    string    `json:"agentId"`
	Context    string    `json:"context"`
	Lesson     string    `json:"lesson"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Preference is an agent-private key/value with last-writer-wins semantics.
type Preference struct {
	TenantID  string    `json:"-"`
	AgentID   string    `json:"agentId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session marks an agent working on a project. At most one session per
// (tenant, agent, project) is open at once.
type Session struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"-"`
	ProjectID string     `json:"projectId"`
	AgentID   string     `json:"agentId"`
	Summary   string     `json:"summary,omitempty"`
	OpenedAt  time.Time  `json:"openedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Handoff is a note written by end_session and consumed at most once by the
// next begin_session for the same project.
type Handoff struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"-"`
	ProjectID        string     `json:"projectId"`
	AuthoringAgentID string     `json:"authoringAgentId"`
	Summary          string     `json:"summary"`
	OpenItems        []string   `json:"openItems"`
	CreatedAt        time.Time  `json:"createdAt"`
	ConsumedAt       *time.Time `json:"consumedAt,omitempty"`
}

// APIKey is a stored credential mapping a key hash to a tenant.
type APIKey struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	UserID    string    `json:"userId,omitempty"`
	Scopes    []string  `json:"scopes"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// EntityInput describes one entity for an upsert, optionally with initial
// observations.
type EntityInput struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Observations []string `json:"observations,omitempty"`
}

// RelationInput names a directed edge by entity names.
type RelationInput struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"relationType"`
}

// UpsertResult distinguishes newly created entities from pre-existing ones.
type UpsertResult struct {
	CreatedIDs  []string `json:"createdIds"`
	ExistingIDs []string `json:"existingIds"`
}

// EntityNode is an entity together with its observation contents, as
// returned by read_graph and search.
type EntityNode struct {
	Entity
	Observations []string `json:"observations"`
}

// GraphStats carries coarse counters for a tenant's graph.
type GraphStats struct {
	Entities     int `json:"entities"`
	Relations    int `json:"relations"`
	Observations int `json:"observations"`
}

// Graph is the full tenant-scoped knowledge graph snapshot.
type Graph struct {
	Entities  []EntityNode `json:"entities"`
	Relations []Relation   `json:"relations"`
	Stats     GraphStats   `json:"stats"`
}

// SearchMode selects the retrieval strategy for searchEntities.
type SearchMode string

const (
	SearchExact    SearchMode = "exact"
	SearchSemantic SearchMode = "semantic"
	SearchGraph    SearchMode = "graph"
	SearchHybrid   SearchMode = "hybrid"
)

// SearchQuery parameterizes a tenant-scoped entity search.
type SearchQuery struct {
	Query string     `json:"query"`
	Mode  SearchMode `json:"mode"`
	Limit int        `json:"limit"`
}

// SearchMatch is one scored search result.
type SearchMatch struct {
	Entity       Entity   `json:"entity"`
	Score        float64  `json:"score"`
	Observations []string `json:"observations,omitempty"`
}

// SearchResults carries matches plus the mode that actually produced them.
// ModeUsed is "none" when semantic search was requested but unavailable.
type SearchResults struct {
	Results  []SearchMatch `json:"results"`
	ModeUsed string        `json:"mode_used"`
}

// ListMessagesOptions filters an inbox read. CallerAgentID gates
// MarkAsRead: it is only honored when the caller is the recipient.
type ListMessagesOptions struct {
	UnreadOnly    bool
	SinceID       string
	Limit         int
	MarkAsRead    bool
	CallerAgentID string
}

// MessagesPage is an inbox read result.
type MessagesPage struct {
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
	Unread   int        `json:"unread"`
}

// IndividualMemory bundles an agent's private learnings and preferences.
type IndividualMemory struct {
	AgentID     string            `json:"agentId"`
	Learnings   []*Learning       `json:"learnings"`
	Preferences map[string]string `json:"preferences"`
}

// TenantStats carries coarse per-tenant counters for /system/status.
type TenantStats struct {
	Agents   int `json:"agents"`
	Messages int `json:"messages"`
	Unread   int `json:"unread"`
	Entities int `json:"entities"`
	Sessions int `json:"sessions"`
}
