// Package sqlstore implements memory.Store on the primary relational
// database. The same queries run on SQLite and PostgreSQL: statements use
// "?" bindvars and are rebound per driver. Every table carries a tenant_id
// column and every index leads with it.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/common/database"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/vector"
)

// Store provides relational persistence for all hub state. The vector
// capability may be nil; search degrades and writes skip indexing.
type Store struct {
	db        *database.DB
	vec       vector.Store
	indexVec  bool
	logger    *logger.Logger
}

var _ memory.Store = (*Store)(nil)

// New creates the store and initializes the schema.
func New(db *database.DB, vec vector.Store, indexWrites bool, log *logger.Logger) (*Store, error) {
	s := &Store{
		db:       db,
		vec:      vec,
		indexVec: indexWrites && vec != nil,
		logger:   log.WithFields(zap.String("component", "sqlstore")),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// rebind converts "?" bindvars to the active driver's style.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// withTx runs fn inside a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.db.WithTx(ctx, fn)
}

// now returns the canonical timestamp for writes, truncated so values round-
// trip identically through both drivers.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		scopes TEXT NOT NULL DEFAULT '',
		key_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_members (
		principal TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		PRIMARY KEY (principal, tenant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, type, name)
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		from_entity_id TEXT NOT NULL,
		to_entity_id TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, from_entity_id, to_entity_id, relation_type)
	)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		capabilities TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'online',
		last_seen TIMESTAMP NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		from_agent TEXT NOT NULL,
		to_agent TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'message',
		priority TEXT NOT NULL DEFAULT 'normal',
		created_at TIMESTAMP NOT NULL,
		read_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS learnings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		context TEXT NOT NULL,
		lesson TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		tenant_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (tenant_id, agent_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS handoffs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		authoring_agent_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		open_items TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		consumed_at TIMESTAMP
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_entities_tenant_name ON entities (tenant_id, name)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_tenant_entity ON observations (tenant_id, entity_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_tenant_from ON relations (tenant_id, from_entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_tenant_to ON messages (tenant_id, to_agent, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_learnings_tenant_agent ON learnings (tenant_id, agent_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_tenant_open ON sessions (tenant_id, agent_id, project_id) WHERE closed_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_tenant_project ON handoffs (tenant_id, project_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_agents_last_seen ON agents (status, last_seen)`,
}

// initSchema creates the tables and indexes if they don't exist.
func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.DB().Exec(stmt); err != nil {
			return err
		}
	}
	for _, stmt := range indexes {
		if _, err := s.db.DB().Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureTenant inserts the tenant row if missing.
func (s *Store) EnsureTenant(ctx context.Context, tenantID string) error {
	q := s.rebind(`INSERT INTO tenants (id, created_at) VALUES (?, ?)`)
	if _, err := s.db.DB().ExecContext(ctx, q, tenantID, now()); err != nil {
		// Already provisioned.
		exists, xerr := s.TenantExists(ctx, tenantID)
		if xerr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to ensure tenant: %w", err)
	}
	return nil
}

// TenantExists reports whether the tenant has been provisioned.
func (s *Store) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	var count int
	q := s.rebind(`SELECT COUNT(*) FROM tenants WHERE id = ?`)
	if err := s.db.DB().GetContext(ctx, &count, q, tenantID); err != nil {
		return false, err
	}
	return count > 0, nil
}
