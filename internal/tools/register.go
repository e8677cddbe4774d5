package tools

import "github.com/mark3labs/mcp-go/mcp"

// registerAll declares the full tool surface. Order here is the tools/list
// order.
func (d *Dispatcher) registerAll() error {
	type entry struct {
		tool    mcp.Tool
		scope   string
		handler handlerFunc
	}
	entries := []entry{
		// Knowledge graph
		{
			mcp.NewTool("create_entities",
				mcp.WithDescription("Create entities in the shared knowledge graph. Idempotent: an entity with the same name and type is returned, not duplicated."),
				mcp.WithArray("entities",
					mcp.Required(),
					mcp.Description("Entities to create, each {name, type, observations?}"),
					mcp.Items(map[string]any{
						"type":     "object",
						"required": []string{"name", "type"},
						"properties": map[string]any{
							"name":         map[string]any{"type": "string", "minLength": 1},
							"type":         map[string]any{"type": "string", "minLength": 1},
							"observations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
					}),
				),
			),
			ScopeWrite, d.handleCreateEntities,
		},
		{
			mcp.NewTool("add_observations",
				mcp.WithDescription("Append observations to an existing entity by name."),
				mcp.WithString("entityName", mcp.Required(), mcp.Description("Name of the target entity")),
				mcp.WithArray("observations",
					mcp.Required(),
					mcp.Description("Textual facts to append"),
					mcp.Items(map[string]any{"type": "string"}),
				),
			),
			ScopeWrite, d.handleAddObservations,
		},
		{
			mcp.NewTool("create_relations",
				mcp.WithDescription("Create directed typed relations between entities, by name. Idempotent per (from, to, relationType)."),
				mcp.WithArray("relations",
					mcp.Required(),
					mcp.Description("Relations to create, each {from, to, relationType}"),
					mcp.Items(map[string]any{
						"type":     "object",
						"required": []string{"from", "to", "relationType"},
						"properties": map[string]any{
							"from":         map[string]any{"type": "string", "minLength": 1},
							"to":           map[string]any{"type": "string", "minLength": 1},
							"relationType": map[string]any{"type": "string", "minLength": 1},
						},
					}),
				),
			),
			ScopeWrite, d.handleCreateRelations,
		},
		{
			mcp.NewTool("read_graph",
				mcp.WithDescription("Read the tenant's full knowledge graph: entities, observations, relations, and counters."),
			),
			ScopeRead, d.handleReadGraph,
		},
		{
			mcp.NewTool("search_entities",
				mcp.WithDescription("Search entities. Modes: exact (substring), semantic (vector, degrades to none when unavailable), graph (relation walk), hybrid (exact + semantic)."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
				mcp.WithString("mode", mcp.Description("exact | semantic | graph | hybrid (default exact)"),
					mcp.Enum("exact", "semantic", "graph", "hybrid")),
				mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
			),
			ScopeRead, d.handleSearchEntities,
		},

		// Messaging
		{
			mcp.NewTool("send_ai_message",
				mcp.WithDescription("Send a message to one agent (to), to all agents carrying every listed capability (toCapabilities), or to everyone (broadcast or to=\"*\"). Exactly one selector applies. A direct send to an agent id that was never registered fails with NoRecipient; register the recipient first."),
				mcp.WithString("to", mcp.Description("Recipient agent id, or \"*\" for broadcast (legacy alias: agentId)")),
				mcp.WithArray("toCapabilities",
					mcp.Description("Capability tags; recipients must carry all of them (legacy alias: capabilities)"),
					mcp.Items(map[string]any{"type": "string"}),
				),
				mcp.WithBoolean("broadcast", mcp.Description("Send to every registered agent")),
				mcp.WithBoolean("excludeSelf", mcp.Description("Drop the sender from broadcast and capability fan-outs (default true)")),
				mcp.WithString("content", mcp.Required(), mcp.Description("Message body (legacy alias: message)")),
				mcp.WithString("from", mcp.Description("Sender agent id; defaults to the connection's agent")),
				mcp.WithString("type", mcp.Description("Message type (default message)")),
				mcp.WithString("priority", mcp.Description("Priority (default normal)")),
			),
			ScopeWrite, d.handleSendMessage,
		},
		{
			mcp.NewTool("get_ai_messages",
				mcp.WithDescription("Read an agent's inbox, oldest first. markAsRead stamps exactly the returned rows and only when the caller is the recipient."),
				mcp.WithString("agentId", mcp.Required(), mcp.Description("Inbox owner")),
				mcp.WithBoolean("unreadOnly", mcp.Description("Return only unread messages")),
				mcp.WithBoolean("markAsRead", mcp.Description("Stamp returned rows as read (recipient only)")),
				mcp.WithString("sinceId", mcp.Description("Return messages after this message id")),
				mcp.WithNumber("limit", mcp.Description("Maximum messages (default 100)")),
			),
			ScopeRead, d.handleGetMessages,
		},

		// Agents
		{
			mcp.NewTool("register_agent",
				mcp.WithDescription("Register the calling agent with its capabilities. Re-registration replaces the capability set."),
				mcp.WithString("agentId", mcp.Description("Agent id; defaults to the connection's agent")),
				mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable agent name")),
				mcp.WithArray("capabilities",
					mcp.Description("Capability tags used for routing"),
					mcp.Items(map[string]any{"type": "string"}),
				),
				mcp.WithObject("metadata", mcp.Description("Free-form string metadata")),
			),
			ScopeWrite, d.handleRegisterAgent,
		},
		{
			mcp.NewTool("set_agent_identity",
				mcp.WithDescription("Update the agent's name, capabilities, or metadata. Omitted fields keep their current value."),
				mcp.WithString("agentId", mcp.Description("Agent id; defaults to the connection's agent")),
				mcp.WithString("name", mcp.Description("New name")),
				mcp.WithArray("capabilities",
					mcp.Description("Replacement capability tags"),
					mcp.Items(map[string]any{"type": "string"}),
				),
				mcp.WithObject("metadata", mcp.Description("Replacement metadata")),
			),
			ScopeWrite, d.handleSetAgentIdentity,
		},
		{
			mcp.NewTool("get_agent_status",
				mcp.WithDescription("Get one agent's registration and status, or all agents of the tenant when agentId is omitted."),
				mcp.WithString("agentId", mcp.Description("Agent id; omit for the full list")),
			),
			ScopeRead, d.handleGetAgentStatus,
		},

		// Individual memory
		{
			mcp.NewTool("record_learning",
				mcp.WithDescription("Record a durable agent-private learning used to seed later context bundles."),
				mcp.WithString("agentId", mcp.Description("Owner; defaults to the connection's agent")),
				mcp.WithString("context", mcp.Description("Situation the lesson applies to")),
				mcp.WithString("lesson", mcp.Required(), mcp.Description("The lesson learned")),
				mcp.WithNumber("confidence", mcp.Description("Confidence in [0,1], default 0.5")),
			),
			ScopeWrite, d.handleRecordLearning,
		},
		{
			mcp.NewTool("set_preferences",
				mcp.WithDescription("Set agent-private key/value preferences. Last writer wins per key."),
				mcp.WithString("agentId", mcp.Description("Owner; defaults to the connection's agent")),
				mcp.WithObject("preferences", mcp.Required(), mcp.Description("Key/value pairs to set")),
			),
			ScopeWrite, d.handleSetPreferences,
		},
		{
			mcp.NewTool("get_individual_memory",
				mcp.WithDescription("Read an agent's private learnings (by recency and confidence) and preferences."),
				mcp.WithString("agentId", mcp.Description("Owner; defaults to the connection's agent")),
				mcp.WithNumber("limit", mcp.Description("Maximum learnings (default 10)")),
			),
			ScopeRead, d.handleGetIndividualMemory,
		},

		// Sessions
		{
			mcp.NewTool("get_agent_context",
				mcp.WithDescription("Assemble the tiered context bundle for an agent. depth=hot|warm|cold controls how much is materialized."),
				mcp.WithString("agentId", mcp.Description("Agent; defaults to the connection's agent")),
				mcp.WithString("projectId", mcp.Description("Project for session/handoff/knowledge tiers")),
				mcp.WithString("depth", mcp.Description("hot | warm | cold (default warm)"),
					mcp.Enum("hot", "warm", "cold")),
			),
			ScopeRead, d.handleGetAgentContext,
		},
		{
			mcp.NewTool("begin_session",
				mcp.WithDescription("Open (or reuse) a session for a project, consume the latest unconsumed handoff, and return a context bundle."),
				mcp.WithString("agentId", mcp.Description("Agent; defaults to the connection's agent")),
				mcp.WithString("projectId", mcp.Required(), mcp.Description("Project being worked on")),
			),
			ScopeWrite, d.handleBeginSession,
		},
		{
			mcp.NewTool("end_session",
				mcp.WithDescription("Close the open session, write a handoff note for the next session, and optionally record learnings."),
				mcp.WithString("agentId", mcp.Description("Agent; defaults to the connection's agent")),
				mcp.WithString("projectId", mcp.Required(), mcp.Description("Project being worked on")),
				mcp.WithString("summary", mcp.Required(), mcp.Description("What was accomplished")),
				mcp.WithArray("openItems",
					mcp.Description("Unfinished items for the next session"),
					mcp.Items(map[string]any{"type": "string"}),
				),
				mcp.WithArray("learnings",
					mcp.Description("Learning hints, each {context?, lesson, confidence?}"),
					mcp.Items(map[string]any{
						"type":     "object",
						"required": []string{"lesson"},
						"properties": map[string]any{
							"context":    map[string]any{"type": "string"},
							"lesson":     map[string]any{"type": "string", "minLength": 1},
							"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						},
					}),
				),
			),
			ScopeWrite, d.handleEndSession,
		},

		// Utilities
		{
			mcp.NewTool("translate_path",
				mcp.WithDescription("Translate a filesystem path between notation styles (posix, windows, file URL) so agents on different hosts can exchange locations."),
				mcp.WithString("path", mcp.Required(), mcp.Description("The path to translate")),
				mcp.WithString("style", mcp.Description("Target style: posix | windows | fileurl; omit for all"),
					mcp.Enum("posix", "windows", "fileurl")),
			),
			ScopeRead, d.handleTranslatePath,
		},
		{
			mcp.NewTool("search_nodes",
				mcp.WithDescription("Deprecated alias of search_entities with mode=graph."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
				mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
			),
			ScopeRead, d.handleSearchNodes,
		},
	}

	for _, e := range entries {
		if err := d.register(e.tool, e.scope, e.handler); err != nil {
			return err
		}
	}
	return nil
}
