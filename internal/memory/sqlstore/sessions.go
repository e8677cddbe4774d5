package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

type sessionRow struct {
	ID        string     `db:"id"`
	TenantID  string     `db:"tenant_id"`
	ProjectID string     `db:"project_id"`
	AgentID   string     `db:"agent_id"`
	Summary   string     `db:"summary"`
	OpenedAt  time.Time  `db:"opened_at"`
	ClosedAt  *time.Time `db:"closed_at"`
}

func (r sessionRow) toModel() *memory.Session {
	return &memory.Session{
		ID:        r.ID,
		TenantID:  r.TenantID,
		ProjectID: r.ProjectID,
		AgentID:   r.AgentID,
		Summary:   r.Summary,
		OpenedAt:  r.OpenedAt,
		ClosedAt:  r.ClosedAt,
	}
}

type handoffRow struct {
	ID               string     `db:"id"`
	TenantID         string     `db:"tenant_id"`
	ProjectID        string     `db:"project_id"`
	AuthoringAgentID string     `db:"authoring_agent_id"`
	Summary          string     `db:"summary"`
	OpenItems        string     `db:"open_items"`
	CreatedAt        time.Time  `db:"created_at"`
	ConsumedAt       *time.Time `db:"consumed_at"`
}

func (r handoffRow) toModel() (*memory.Handoff, error) {
	h := &memory.Handoff{
		ID:               r.ID,
		TenantID:         r.TenantID,
		ProjectID:        r.ProjectID,
		AuthoringAgentID: r.AuthoringAgentID,
		Summary:          r.Summary,
		CreatedAt:        r.CreatedAt,
		ConsumedAt:       r.ConsumedAt,
	}
	if err := json.Unmarshal([]byte(r.OpenItems), &h.OpenItems); err != nil {
		return nil, apperrors.Storage("failed to decode handoff open items", err)
	}
	if h.OpenItems == nil {
		h.OpenItems = []string{}
	}
	return h, nil
}

// OpenSession opens a session for (agent, project), or returns the already
// open one. A partial unique index over open rows backs the single-open
// invariant, so two concurrent opens converge on one session even when both
// pass the in-transaction check: the loser's insert hits the index and we
// hand back the winner's row.
func (s *Store) OpenSession(ctx context.Context, tenantID, agentID, projectID string) (*memory.Session, bool, error) {
	var sess *memory.Session
	reused := false

	var insertErr error
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row sessionRow
		q := s.rebind(`SELECT id, tenant_id, project_id, agent_id, summary, opened_at, closed_at
			FROM sessions WHERE tenant_id = ? AND agent_id = ? AND project_id = ? AND closed_at IS NULL
			ORDER BY opened_at, id LIMIT 1`)
		err := tx.GetContext(ctx, &row, q, tenantID, agentID, projectID)
		if err == nil {
			sess = row.toModel()
			reused = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return apperrors.Storage("failed to look up open session", err)
		}

		sess = &memory.Session{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			ProjectID: projectID,
			AgentID:   agentID,
			OpenedAt:  now(),
		}
		q = s.rebind(`INSERT INTO sessions (id, tenant_id, project_id, agent_id, summary, opened_at)
			VALUES (?, ?, ?, ?, '', ?)`)
		if _, err := tx.ExecContext(ctx, q, sess.ID, tenantID, projectID, agentID, sess.OpenedAt); err != nil {
			insertErr = err
			return apperrors.Storage("failed to insert session", err)
		}
		return nil
	})
	if err != nil {
		if insertErr == nil {
			return nil, false, err
		}
		existing, ferr := s.FindOpenSession(ctx, tenantID, agentID, projectID)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing != nil {
			return existing, true, nil
		}
		// The winner closed its session before we could re-read it.
		conflict := apperrors.Conflict("session open raced a concurrent open")
		conflict.Err = insertErr
		return nil, false, conflict
	}
	return sess, reused, nil
}

// CloseSession closes the open session for (agent, project) and records the
// summary. Returns NotFound when no session is open.
func (s *Store) CloseSession(ctx context.Context, tenantID, agentID, projectID, summary string) (*memory.Session, error) {
	var sess *memory.Session
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row sessionRow
		q := s.rebind(`SELECT id, tenant_id, project_id, agent_id, summary, opened_at, closed_at
			FROM sessions WHERE tenant_id = ? AND agent_id = ? AND project_id = ? AND closed_at IS NULL
			ORDER BY opened_at, id LIMIT 1`)
		err := tx.GetContext(ctx, &row, q, tenantID, agentID, projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("session", projectID)
		}
		if err != nil {
			return apperrors.Storage("failed to look up open session", err)
		}

		ts := now()
		q = s.rebind(`UPDATE sessions SET closed_at = ?, summary = ? WHERE tenant_id = ? AND id = ? AND closed_at IS NULL`)
		res, err := tx.ExecContext(ctx, q, ts, summary, tenantID, row.ID)
		if err != nil {
			return apperrors.Storage("failed to close session", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Storage("failed to read update count", err)
		}
		if n == 0 {
			return apperrors.NotFound("session", projectID)
		}
		sess = row.toModel()
		sess.Summary = summary
		sess.ClosedAt = &ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// FindOpenSession returns the open session for (agent, project), or nil.
func (s *Store) FindOpenSession(ctx context.Context, tenantID, agentID, projectID string) (*memory.Session, error) {
	var row sessionRow
	q := s.rebind(`SELECT id, tenant_id, project_id, agent_id, summary, opened_at, closed_at
		FROM sessions WHERE tenant_id = ? AND agent_id = ? AND project_id = ? AND closed_at IS NULL
		ORDER BY opened_at, id LIMIT 1`)
	err := s.db.DB().GetContext(ctx, &row, q, tenantID, agentID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("failed to look up open session", err)
	}
	return row.toModel(), nil
}

// LastClosedSession returns the most recently closed session for the agent on
// the project, or nil.
func (s *Store) LastClosedSession(ctx context.Context, tenantID, agentID, projectID string) (*memory.Session, error) {
	var row sessionRow
	q := s.rebind(`SELECT id, tenant_id, project_id, agent_id, summary, opened_at, closed_at
		FROM sessions WHERE tenant_id = ? AND agent_id = ? AND project_id = ? AND closed_at IS NOT NULL
		ORDER BY closed_at DESC, id LIMIT 1`)
	err := s.db.DB().GetContext(ctx, &row, q, tenantID, agentID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("failed to look up closed session", err)
	}
	return row.toModel(), nil
}

// WriteHandoff stores a handoff note for the project.
func (s *Store) WriteHandoff(ctx context.Context, tenantID string, h *memory.Handoff) (*memory.Handoff, error) {
	if h.OpenItems == nil {
		h.OpenItems = []string{}
	}
	items, err := json.Marshal(h.OpenItems)
	if err != nil {
		return nil, apperrors.Storage("failed to encode handoff open items", err)
	}
	h.ID = uuid.New().String()
	h.TenantID = tenantID
	h.CreatedAt = now()

	q := s.rebind(`INSERT INTO handoffs (id, tenant_id, project_id, authoring_agent_id, summary, open_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.DB().ExecContext(ctx, q, h.ID, tenantID, h.ProjectID, h.AuthoringAgentID, h.Summary, string(items), h.CreatedAt); err != nil {
		return nil, apperrors.Storage("failed to insert handoff", err)
	}
	return h, nil
}

// ConsumeHandoff claims the most recent unconsumed handoff for the project.
// The claim is a conditional update on consumed_at IS NULL, so exactly one of
// any number of concurrent callers wins. Returns nil when nothing is
// claimable.
func (s *Store) ConsumeHandoff(ctx context.Context, tenantID, projectID string, notBefore time.Time) (*memory.Handoff, error) {
	var h *memory.Handoff
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row handoffRow
		q := s.rebind(`SELECT id, tenant_id, project_id, authoring_agent_id, summary, open_items, created_at, consumed_at
			FROM handoffs WHERE tenant_id = ? AND project_id = ? AND consumed_at IS NULL AND created_at >= ?
			ORDER BY created_at DESC, id LIMIT 1`)
		err := tx.GetContext(ctx, &row, q, tenantID, projectID, notBefore)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return apperrors.Storage("failed to look up handoff", err)
		}

		ts := now()
		q = s.rebind(`UPDATE handoffs SET consumed_at = ? WHERE tenant_id = ? AND id = ? AND consumed_at IS NULL`)
		res, err := tx.ExecContext(ctx, q, ts, tenantID, row.ID)
		if err != nil {
			return apperrors.Storage("failed to consume handoff", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Storage("failed to read update count", err)
		}
		if n == 0 {
			// Lost the race; the caller proceeds without a handoff.
			return nil
		}
		h, err = row.toModel()
		if err != nil {
			return err
		}
		h.ConsumedAt = &ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// PeekHandoff returns the handoff ConsumeHandoff would claim, without
// claiming it.
func (s *Store) PeekHandoff(ctx context.Context, tenantID, projectID string, notBefore time.Time) (*memory.Handoff, error) {
	var row handoffRow
	q := s.rebind(`SELECT id, tenant_id, project_id, authoring_agent_id, summary, open_items, created_at, consumed_at
		FROM handoffs WHERE tenant_id = ? AND project_id = ? AND consumed_at IS NULL AND created_at >= ?
		ORDER BY created_at DESC, id LIMIT 1`)
	err := s.db.DB().GetContext(ctx, &row, q, tenantID, projectID, notBefore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("failed to look up handoff", err)
	}
	return row.toModel()
}
