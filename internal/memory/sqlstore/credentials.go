package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

type apiKeyRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	UserID    string    `db:"user_id"`
	Scopes    string    `db:"scopes"`
	KeyHash   string    `db:"key_hash"`
	CreatedAt time.Time `db:"created_at"`
}

func (r apiKeyRow) toModel() *memory.APIKey {
	k := &memory.APIKey{
		ID:        r.ID,
		TenantID:  r.TenantID,
		UserID:    r.UserID,
		KeyHash:   r.KeyHash,
		CreatedAt: r.CreatedAt,
		Scopes:    []string{},
	}
	if r.Scopes != "" {
		k.Scopes = strings.Split(r.Scopes, ",")
	}
	return k
}

// LookupAPIKey resolves a credential by its hash. The raw key is never
// stored; callers hash before calling.
func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (*memory.APIKey, error) {
	var row apiKeyRow
	q := s.rebind(`SELECT id, tenant_id, user_id, scopes, key_hash, created_at FROM api_keys WHERE key_hash = ?`)
	err := s.db.DB().GetContext(ctx, &row, q, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("api key", "")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to look up api key", err)
	}
	return row.toModel(), nil
}

// EnsureAPIKey provisions a credential if its hash is not already present.
// Used at startup for the bootstrap key.
func (s *Store) EnsureAPIKey(ctx context.Context, key *memory.APIKey) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		q := s.rebind(`SELECT COUNT(*) FROM api_keys WHERE key_hash = ?`)
		if err := tx.GetContext(ctx, &count, q, key.KeyHash); err != nil {
			return apperrors.Storage("failed to look up api key", err)
		}
		if count > 0 {
			return nil
		}
		if key.CreatedAt.IsZero() {
			key.CreatedAt = now()
		}
		q = s.rebind(`INSERT INTO api_keys (id, tenant_id, user_id, scopes, key_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q, key.ID, key.TenantID, key.UserID, strings.Join(key.Scopes, ","), key.KeyHash, key.CreatedAt)
		if err != nil {
			return apperrors.Storage("failed to insert api key", err)
		}
		return nil
	})
}

// IsTenantMember reports whether the principal may act within the tenant.
func (s *Store) IsTenantMember(ctx context.Context, principal, tenantID string) (bool, error) {
	var count int
	q := s.rebind(`SELECT COUNT(*) FROM tenant_members WHERE principal = ? AND tenant_id = ?`)
	if err := s.db.DB().GetContext(ctx, &count, q, principal, tenantID); err != nil {
		return false, apperrors.Storage("failed to check tenant membership", err)
	}
	return count > 0, nil
}

// AddTenantMember grants the principal access to the tenant, idempotently.
func (s *Store) AddTenantMember(ctx context.Context, principal, tenantID string) error {
	ok, err := s.IsTenantMember(ctx, principal, tenantID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	q := s.rebind(`INSERT INTO tenant_members (principal, tenant_id) VALUES (?, ?)`)
	if _, err := s.db.DB().ExecContext(ctx, q, principal, tenantID); err != nil {
		return apperrors.Storage("failed to add tenant member", err)
	}
	return nil
}
