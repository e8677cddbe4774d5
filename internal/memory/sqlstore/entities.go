package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// Knowledge graph operations.

// UpsertEntities creates entities idempotently on (type, name). Existing
// entities are reported in ExistingIDs and left untouched except for any
// initial observations, which are appended.
func (s *Store) UpsertEntities(ctx context.Context, tenantID string, inputs []memory.EntityInput) (*memory.UpsertResult, error) {
	result := &memory.UpsertResult{CreatedIDs: []string{}, ExistingIDs: []string{}}
	var indexed []*memory.Observation

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, in := range inputs {
			name := strings.TrimSpace(in.Name)
			typ := strings.TrimSpace(in.Type)
			if name == "" || typ == "" {
				return apperrors.InvalidArgument("entities", "name and type are required")
			}

			var id string
			q := s.rebind(`SELECT id FROM entities WHERE tenant_id = ? AND type = ? AND name = ?`)
			err := tx.GetContext(ctx, &id, q, tenantID, typ, name)
			switch {
			case err == nil:
				result.ExistingIDs = append(result.ExistingIDs, id)
			case errors.Is(err, sql.ErrNoRows):
				id = uuid.New().String()
				ts := now()
				q = s.rebind(`INSERT INTO entities (id, tenant_id, name, type, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?)`)
				if _, err := tx.ExecContext(ctx, q, id, tenantID, name, typ, ts, ts); err != nil {
					return apperrors.Storage("failed to insert entity", err)
				}
				result.CreatedIDs = append(result.CreatedIDs, id)
			default:
				return apperrors.Storage("failed to look up entity", err)
			}

			for _, content := range in.Observations {
				obs, err := s.insertObservation(ctx, tx, tenantID, id, content)
				if err != nil {
					return err
				}
				indexed = append(indexed, obs)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.indexObservations(ctx, tenantID, indexed)
	return result, nil
}

// AddObservations appends facts to a named entity. The entity must already
// exist in the tenant.
func (s *Store) AddObservations(ctx context.Context, tenantID, entityName string, contents []string) ([]*memory.Observation, error) {
	var added []*memory.Observation

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var entityID string
		q := s.rebind(`SELECT id FROM entities WHERE tenant_id = ? AND name = ? ORDER BY created_at, id LIMIT 1`)
		err := tx.GetContext(ctx, &entityID, q, tenantID, entityName)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("entity", entityName)
		}
		if err != nil {
			return apperrors.Storage("failed to look up entity", err)
		}

		q = s.rebind(`UPDATE entities SET updated_at = ? WHERE tenant_id = ? AND id = ?`)
		if _, err := tx.ExecContext(ctx, q, now(), tenantID, entityID); err != nil {
			return apperrors.Storage("failed to touch entity", err)
		}

		for _, content := range contents {
			obs, err := s.insertObservation(ctx, tx, tenantID, entityID, content)
			if err != nil {
				return err
			}
			added = append(added, obs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.indexObservations(ctx, tenantID, added)
	return added, nil
}

func (s *Store) insertObservation(ctx context.Context, tx *sqlx.Tx, tenantID, entityID, content string) (*memory.Observation, error) {
	obs := &memory.Observation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		EntityID:  entityID,
		Content:   content,
		CreatedAt: now(),
	}
	q := s.rebind(`INSERT INTO observations (id, tenant_id, entity_id, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, obs.ID, obs.TenantID, obs.EntityID, obs.Content, obs.CreatedAt); err != nil {
		return nil, apperrors.Storage("failed to insert observation", err)
	}
	return obs, nil
}

// indexObservations mirrors committed observations into the vector store.
// Failures are logged and dropped; the primary store stays authoritative.
func (s *Store) indexObservations(ctx context.Context, tenantID string, obs []*memory.Observation) {
	if !s.indexVec || len(obs) == 0 {
		return
	}
	for _, o := range obs {
		if err := s.vec.Upsert(ctx, tenantID, o.EntityID, o.ID, o.Content); err != nil {
			s.logger.Warn("vector index write failed",
				zap.String("tenant_id", tenantID),
				zap.String("entity_id", o.EntityID),
				zap.Error(err))
		}
	}
}

// CreateRelations creates directed typed edges by entity name, idempotent on
// (from, to, type). Both endpoints must exist in the tenant.
func (s *Store) CreateRelations(ctx context.Context, tenantID string, triples []memory.RelationInput) ([]*memory.Relation, error) {
	var created []*memory.Relation

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range triples {
			if t.From == "" || t.To == "" || t.Type == "" {
				return apperrors.InvalidArgument("relations", "from, to and relationType are required")
			}

			fromID, err := s.entityIDByName(ctx, tx, tenantID, t.From)
			if err != nil {
				return err
			}
			toID, err := s.entityIDByName(ctx, tx, tenantID, t.To)
			if err != nil {
				return err
			}

			var existing memory.Relation
			q := s.rebind(`SELECT id, tenant_id, from_entity_id, to_entity_id, relation_type, created_at
				FROM relations WHERE tenant_id = ? AND from_entity_id = ? AND to_entity_id = ? AND relation_type = ?`)
			err = tx.GetContext(ctx, &existing, q, tenantID, fromID, toID, t.Type)
			if err == nil {
				created = append(created, &existing)
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return apperrors.Storage("failed to look up relation", err)
			}

			rel := &memory.Relation{
				ID:           uuid.New().String(),
				TenantID:     tenantID,
				FromEntityID: fromID,
				ToEntityID:   toID,
				RelationType: t.Type,
				CreatedAt:    now(),
			}
			q = s.rebind(`INSERT INTO relations (id, tenant_id, from_entity_id, to_entity_id, relation_type, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`)
			if _, err := tx.ExecContext(ctx, q, rel.ID, rel.TenantID, rel.FromEntityID, rel.ToEntityID, rel.RelationType, rel.CreatedAt); err != nil {
				return apperrors.Storage("failed to insert relation", err)
			}
			created = append(created, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) entityIDByName(ctx context.Context, tx *sqlx.Tx, tenantID, name string) (string, error) {
	var id string
	q := s.rebind(`SELECT id FROM entities WHERE tenant_id = ? AND name = ? ORDER BY created_at, id LIMIT 1`)
	err := tx.GetContext(ctx, &id, q, tenantID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("entity", name)
	}
	if err != nil {
		return "", apperrors.Storage("failed to look up entity", err)
	}
	return id, nil
}

// ReadGraph returns the calling tenant's full knowledge graph, entities with
// their observations plus all relations, deterministically ordered.
func (s *Store) ReadGraph(ctx context.Context, tenantID string) (*memory.Graph, error) {
	var entities []memory.Entity
	q := s.rebind(`SELECT id, tenant_id, name, type, created_at, updated_at
		FROM entities WHERE tenant_id = ? ORDER BY created_at, id`)
	if err := s.db.DB().SelectContext(ctx, &entities, q, tenantID); err != nil {
		return nil, apperrors.Storage("failed to read entities", err)
	}

	var obs []memory.Observation
	q = s.rebind(`SELECT id, tenant_id, entity_id, content, created_at
		FROM observations WHERE tenant_id = ? ORDER BY created_at, id`)
	if err := s.db.DB().SelectContext(ctx, &obs, q, tenantID); err != nil {
		return nil, apperrors.Storage("failed to read observations", err)
	}
	byEntity := make(map[string][]string)
	for _, o := range obs {
		byEntity[o.EntityID] = append(byEntity[o.EntityID], o.Content)
	}

	var relations []memory.Relation
	q = s.rebind(`SELECT id, tenant_id, from_entity_id, to_entity_id, relation_type, created_at
		FROM relations WHERE tenant_id = ? ORDER BY created_at, id`)
	if err := s.db.DB().SelectContext(ctx, &relations, q, tenantID); err != nil {
		return nil, apperrors.Storage("failed to read relations", err)
	}

	graph := &memory.Graph{
		Entities:  make([]memory.EntityNode, 0, len(entities)),
		Relations: relations,
		Stats: memory.GraphStats{
			Entities:     len(entities),
			Relations:    len(relations),
			Observations: len(obs),
		},
	}
	for _, e := range entities {
		node := memory.EntityNode{Entity: e, Observations: byEntity[e.ID]}
		if node.Observations == nil {
			node.Observations = []string{}
		}
		graph.Entities = append(graph.Entities, node)
	}
	return graph, nil
}
