package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

type learningRow struct {
	ID         string    `db:"id"`
	TenantID   string    `db:"tenant_id"`
	AgentID    string    `db:"agent_id"`
	Context    string    `db:"context"`
	Lesson     string    `db:"lesson"`
	Confidence float64   `db:"confidence"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r learningRow) toModel() *memory.Learning {
	return &memory.Learning{
		ID:         r.ID,
		TenantID:   r.TenantID,
		AgentID:    r.AgentID,
		Context:    r.Context,
		Lesson:     r.Lesson,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
}

// RecordLearning appends one agent-private learning.
func (s *Store) RecordLearning(ctx context.Context, tenantID string, l *memory.Learning) (*memory.Learning, error) {
	if l.Lesson == "" {
		return nil, apperrors.InvalidArgument("lesson", "lesson is required")
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return nil, apperrors.InvalidArgument("confidence", "confidence must be in [0,1]")
	}
	l.ID = uuid.New().String()
	l.TenantID = tenantID
	l.CreatedAt = now()

	q := s.rebind(`INSERT INTO learnings (id, tenant_id, agent_id, context, lesson, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.DB().ExecContext(ctx, q, l.ID, l.TenantID, l.AgentID, l.Context, l.Lesson, l.Confidence, l.CreatedAt); err != nil {
		return nil, apperrors.Storage("failed to insert learning", err)
	}
	return l, nil
}

// SetPreferences writes agent-private key/values with last-writer-wins
// semantics per key.
func (s *Store) SetPreferences(ctx context.Context, tenantID, agentID string, prefs map[string]string) error {
	if len(prefs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		upd := s.rebind(`UPDATE preferences SET value = ?, updated_at = ?
			WHERE tenant_id = ? AND agent_id = ? AND key = ?`)
		ins := s.rebind(`INSERT INTO preferences (tenant_id, agent_id, key, value, updated_at)
			VALUES (?, ?, ?, ?, ?)`)
		for k, v := range prefs {
			res, err := tx.ExecContext(ctx, upd, v, ts, tenantID, agentID, k)
			if err != nil {
				return apperrors.Storage("failed to update preference", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return apperrors.Storage("failed to read update count", err)
			}
			if n == 0 {
				if _, err := tx.ExecContext(ctx, ins, tenantID, agentID, k, v, ts); err != nil {
					return apperrors.Storage("failed to insert preference", err)
				}
			}
		}
		return nil
	})
}

// GetIndividualMemory returns the agent's most relevant learnings plus all of
// its preferences. Learnings are ranked by recency then confidence.
func (s *Store) GetIndividualMemory(ctx context.Context, tenantID, agentID string, learningLimit int) (*memory.IndividualMemory, error) {
	if learningLimit <= 0 {
		learningLimit = 10
	}

	var rows []learningRow
	q := s.rebind(`SELECT id, tenant_id, agent_id, context, lesson, confidence, created_at
		FROM learnings WHERE tenant_id = ? AND agent_id = ?
		ORDER BY created_at DESC, confidence DESC, id LIMIT ?`)
	if err := s.db.DB().SelectContext(ctx, &rows, q, tenantID, agentID, learningLimit); err != nil {
		return nil, apperrors.Storage("failed to read learnings", err)
	}

	type prefRow struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var prefs []prefRow
	q = s.rebind(`SELECT key, value FROM preferences WHERE tenant_id = ? AND agent_id = ? ORDER BY key`)
	if err := s.db.DB().SelectContext(ctx, &prefs, q, tenantID, agentID); err != nil {
		return nil, apperrors.Storage("failed to read preferences", err)
	}

	im := &memory.IndividualMemory{
		AgentID:     agentID,
		Learnings:   make([]*memory.Learning, 0, len(rows)),
		Preferences: make(map[string]string, len(prefs)),
	}
	for _, r := range rows {
		im.Learnings = append(im.Learnings, r.toModel())
	}
	for _, p := range prefs {
		im.Preferences[p.Key] = p.Value
	}
	return im, nil
}
