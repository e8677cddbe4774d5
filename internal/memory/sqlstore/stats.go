package sqlstore

import (
	"context"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// Stats returns coarse per-tenant counters for the status endpoint.
func (s *Store) Stats(ctx context.Context, tenantID string) (*memory.TenantStats, error) {
	stats := &memory.TenantStats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM agents WHERE tenant_id = ?`, &stats.Agents},
		{`SELECT COUNT(*) FROM messages WHERE tenant_id = ?`, &stats.Messages},
		{`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND read_at IS NULL`, &stats.Unread},
		{`SELECT COUNT(*) FROM entities WHERE tenant_id = ?`, &stats.Entities},
		{`SELECT COUNT(*) FROM sessions WHERE tenant_id = ?`, &stats.Sessions},
	}
	for _, c := range counts {
		if err := s.db.DB().GetContext(ctx, c.dest, s.rebind(c.query), tenantID); err != nil {
			return nil, apperrors.Storage("failed to read tenant stats", err)
		}
	}
	return stats, nil
}
