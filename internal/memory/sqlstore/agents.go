package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

type agentRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	Name         string    `db:"name"`
	Capabilities string    `db:"capabilities"`
	Status       string    `db:"status"`
	LastSeen     time.Time `db:"last_seen"`
	Metadata     string    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r agentRow) toModel() (*memory.Agent, error) {
	a := &memory.Agent{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Status:    memory.AgentStatus(r.Status),
		LastSeen:  r.LastSeen,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Capabilities), &a.Capabilities); err != nil {
		return nil, apperrors.Storage("failed to decode agent capabilities", err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &a.Metadata); err != nil {
		return nil, apperrors.Storage("failed to decode agent metadata", err)
	}
	if a.Capabilities == nil {
		a.Capabilities = []string{}
	}
	return a, nil
}

// UpsertAgent registers an agent or refreshes its registration. Re-registering
// replaces name, capabilities and metadata and brings the agent online.
func (s *Store) UpsertAgent(ctx context.Context, tenantID string, agent *memory.Agent) (*memory.Agent, error) {
	caps := agent.Capabilities
	if caps == nil {
		caps = []string{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return nil, apperrors.Storage("failed to encode capabilities", err)
	}
	meta := agent.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, apperrors.Storage("failed to encode metadata", err)
	}
	status := agent.Status
	if status == "" {
		status = memory.AgentOnline
	}
	ts := now()

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		q := s.rebind(`UPDATE agents SET name = ?, capabilities = ?, status = ?, last_seen = ?, metadata = ?
			WHERE tenant_id = ? AND id = ?`)
		res, err := tx.ExecContext(ctx, q, agent.Name, string(capsJSON), string(status), ts, string(metaJSON), tenantID, agent.ID)
		if err != nil {
			return apperrors.Storage("failed to update agent", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Storage("failed to read update count", err)
		}
		if n > 0 {
			var createdAt time.Time
			cq := s.rebind(`SELECT created_at FROM agents WHERE tenant_id = ? AND id = ?`)
			if err := tx.GetContext(ctx, &createdAt, cq, tenantID, agent.ID); err != nil {
				return apperrors.Storage("failed to read agent", err)
			}
			agent.CreatedAt = createdAt
			return nil
		}

		q = s.rebind(`INSERT INTO agents (id, tenant_id, name, capabilities, status, last_seen, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, agent.ID, tenantID, agent.Name, string(capsJSON), string(status), ts, string(metaJSON), ts); err != nil {
			return apperrors.Storage("failed to insert agent", err)
		}
		agent.CreatedAt = ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	agent.TenantID = tenantID
	agent.Capabilities = caps
	agent.Metadata = meta
	agent.Status = status
	agent.LastSeen = ts
	return agent, nil
}

// GetAgent fetches one agent by id within the tenant.
func (s *Store) GetAgent(ctx context.Context, tenantID, agentID string) (*memory.Agent, error) {
	var row agentRow
	q := s.rebind(`SELECT id, tenant_id, name, capabilities, status, last_seen, metadata, created_at
		FROM agents WHERE tenant_id = ? AND id = ?`)
	err := s.db.DB().GetContext(ctx, &row, q, tenantID, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("agent", agentID)
	}
	if err != nil {
		return nil, apperrors.Storage("failed to read agent", err)
	}
	return row.toModel()
}

// ListAgents returns every registered agent in the tenant, oldest first.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]*memory.Agent, error) {
	var rows []agentRow
	q := s.rebind(`SELECT id, tenant_id, name, capabilities, status, last_seen, metadata, created_at
		FROM agents WHERE tenant_id = ? ORDER BY created_at, id`)
	if err := s.db.DB().SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, apperrors.Storage("failed to list agents", err)
	}
	agents := make([]*memory.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// TouchAgent refreshes last_seen and sets the status.
func (s *Store) TouchAgent(ctx context.Context, tenantID, agentID string, status memory.AgentStatus) error {
	q := s.rebind(`UPDATE agents SET last_seen = ?, status = ? WHERE tenant_id = ? AND id = ?`)
	res, err := s.db.DB().ExecContext(ctx, q, now(), string(status), tenantID, agentID)
	if err != nil {
		return apperrors.Storage("failed to touch agent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("failed to read update count", err)
	}
	if n == 0 {
		return apperrors.NotFound("agent", agentID)
	}
	return nil
}

// MarkStaleAgentsOffline flips agents not seen since cutoff to offline,
// across all tenants. Used by the registry sweeper.
func (s *Store) MarkStaleAgentsOffline(ctx context.Context, cutoff time.Time) (int, error) {
	q := s.rebind(`UPDATE agents SET status = ? WHERE status = ? AND last_seen < ?`)
	res, err := s.db.DB().ExecContext(ctx, q, string(memory.AgentOffline), string(memory.AgentOnline), cutoff)
	if err != nil {
		return 0, apperrors.Storage("failed to sweep stale agents", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Storage("failed to read update count", err)
	}
	return int(n), nil
}
