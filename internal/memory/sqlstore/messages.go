package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

type messageRow struct {
	ID        string     `db:"id"`
	TenantID  string     `db:"tenant_id"`
	FromAgent string     `db:"from_agent"`
	ToAgent   string     `db:"to_agent"`
	Content   string     `db:"content"`
	Type      string     `db:"type"`
	Priority  string     `db:"priority"`
	CreatedAt time.Time  `db:"created_at"`
	ReadAt    *time.Time `db:"read_at"`
}

func (r messageRow) toModel() *memory.Message {
	return &memory.Message{
		ID:        r.ID,
		TenantID:  r.TenantID,
		From:      r.FromAgent,
		To:        r.ToAgent,
		Content:   r.Content,
		Type:      r.Type,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
		ReadAt:    r.ReadAt,
	}
}

// InsertMessages persists a fan-out batch in a single transaction. Either
// every recipient's copy is visible or none is.
func (s *Store) InsertMessages(ctx context.Context, tenantID string, msgs []*memory.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		q := s.rebind(`INSERT INTO messages (id, tenant_id, from_agent, to_agent, content, type, priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, m := range msgs {
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now()
			}
			m.TenantID = tenantID
			if _, err := tx.ExecContext(ctx, q, m.ID, tenantID, m.From, m.To, m.Content, m.Type, m.Priority, m.CreatedAt); err != nil {
				return apperrors.Storage("failed to insert message", err)
			}
		}
		return nil
	})
}

// ListMessages reads an agent's inbox ordered oldest first. MarkAsRead stamps
// exactly the returned rows, and only when the caller is the recipient.
func (s *Store) ListMessages(ctx context.Context, tenantID, agentID string, opts memory.ListMessagesOptions) (*memory.MessagesPage, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	where := []string{"tenant_id = ?", "to_agent = ?"}
	args := []interface{}{tenantID, agentID}
	if opts.UnreadOnly {
		where = append(where, "read_at IS NULL")
	}
	if opts.SinceID != "" {
		// Cursor by insertion order: rows strictly after the named message.
		where = append(where, `(created_at, id) > (SELECT created_at, id FROM messages WHERE tenant_id = ? AND id = ?)`)
		args = append(args, tenantID, opts.SinceID)
	}

	page := &memory.MessagesPage{Messages: []*memory.Message{}}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var rows []messageRow
		q := s.rebind(`SELECT id, tenant_id, from_agent, to_agent, content, type, priority, created_at, read_at
			FROM messages WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at, id LIMIT ?`)
		if err := tx.SelectContext(ctx, &rows, q, append(args, limit)...); err != nil {
			return apperrors.Storage("failed to list messages", err)
		}

		q = s.rebind(`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND to_agent = ?`)
		if err := tx.GetContext(ctx, &page.Total, q, tenantID, agentID); err != nil {
			return apperrors.Storage("failed to count messages", err)
		}
		q = s.rebind(`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND to_agent = ? AND read_at IS NULL`)
		if err := tx.GetContext(ctx, &page.Unread, q, tenantID, agentID); err != nil {
			return apperrors.Storage("failed to count unread messages", err)
		}

		stamp := opts.MarkAsRead && opts.CallerAgentID == agentID
		var ts time.Time
		if stamp {
			ts = now()
		}
		for _, r := range rows {
			m := r.toModel()
			if stamp && m.ReadAt == nil {
				read := ts
				m.ReadAt = &read
				uq := s.rebind(`UPDATE messages SET read_at = ? WHERE tenant_id = ? AND id = ? AND read_at IS NULL`)
				if _, err := tx.ExecContext(ctx, uq, ts, tenantID, m.ID); err != nil {
					return apperrors.Storage("failed to mark message read", err)
				}
				page.Unread--
			}
			page.Messages = append(page.Messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page.Unread < 0 {
		page.Unread = 0
	}
	return page, nil
}

// MarkRead stamps the named messages as read. Only the recipient may mark its
// own messages; rows addressed to other agents are ignored. Returns the
// number of rows newly stamped.
func (s *Store) MarkRead(ctx context.Context, tenantID, agentID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updated := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		q := s.rebind(`UPDATE messages SET read_at = ?
			WHERE tenant_id = ? AND to_agent = ? AND id = ? AND read_at IS NULL`)
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, q, ts, tenantID, agentID, id)
			if err != nil {
				return apperrors.Storage("failed to mark message read", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return apperrors.Storage("failed to read update count", err)
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
