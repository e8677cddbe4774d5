package sqlstore

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	graphSearchDepth   = 2

	exactMatchScore = 1.0
	graphHopDecay   = 0.5
	hybridBoost     = 0.25
)

// SearchEntities runs a tenant-scoped entity search in the requested mode.
// Semantic retrieval degrades rather than fails: when the vector capability
// is absent, semantic mode returns empty results with ModeUsed "none" and
// hybrid mode falls back to exact.
func (s *Store) SearchEntities(ctx context.Context, tenantID string, q memory.SearchQuery) (*memory.SearchResults, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, apperrors.InvalidArgument("query", "query is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	mode := q.Mode
	if mode == "" {
		mode = memory.SearchExact
	}

	switch mode {
	case memory.SearchExact:
		matches, err := s.exactSearch(ctx, tenantID, query, limit)
		if err != nil {
			return nil, err
		}
		return s.finish(ctx, tenantID, matches, limit, string(memory.SearchExact))

	case memory.SearchSemantic:
		if s.vec == nil {
			return &memory.SearchResults{Results: []memory.SearchMatch{}, ModeUsed: "none"}, nil
		}
		matches, err := s.semanticSearch(ctx, tenantID, query, limit)
		if err != nil {
			if !apperrors.IsKind(err, apperrors.KindDegradedCapability) {
				return nil, err
			}
			s.logger.Warn("semantic search degraded", zap.Error(err))
			return &memory.SearchResults{Results: []memory.SearchMatch{}, ModeUsed: "none"}, nil
		}
		return s.finish(ctx, tenantID, matches, limit, string(memory.SearchSemantic))

	case memory.SearchGraph:
		matches, err := s.graphSearch(ctx, tenantID, query, limit)
		if err != nil {
			return nil, err
		}
		return s.finish(ctx, tenantID, matches, limit, string(memory.SearchGraph))

	case memory.SearchHybrid:
		exact, err := s.exactSearch(ctx, tenantID, query, limit)
		if err != nil {
			return nil, err
		}
		used := string(memory.SearchHybrid)
		var semantic []memory.SearchMatch
		if s.vec != nil {
			semantic, err = s.semanticSearch(ctx, tenantID, query, limit)
			if err != nil {
				if !apperrors.IsKind(err, apperrors.KindDegradedCapability) {
					return nil, err
				}
				s.logger.Warn("semantic search degraded", zap.Error(err))
				semantic = nil
				used = string(memory.SearchExact)
			}
		} else {
			used = string(memory.SearchExact)
		}
		merged := mergeHybrid(exact, semantic)
		return s.finish(ctx, tenantID, merged, limit, used)

	default:
		return nil, apperrors.InvalidArgument("mode", "mode must be one of exact, semantic, graph, hybrid")
	}
}

// exactSearch matches the query as a case-insensitive substring of entity
// name, entity type, or observation content.
func (s *Store) exactSearch(ctx context.Context, tenantID, query string, limit int) ([]memory.SearchMatch, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	var entities []memory.Entity
	q := s.rebind(`SELECT DISTINCT e.id, e.tenant_id, e.name, e.type, e.created_at, e.updated_at
		FROM entities e
		LEFT JOIN observations o ON o.tenant_id = e.tenant_id AND o.entity_id = e.id
		WHERE e.tenant_id = ?
		  AND (LOWER(e.name) LIKE ? OR LOWER(e.type) LIKE ? OR LOWER(o.content) LIKE ?)
		ORDER BY e.created_at, e.id LIMIT ?`)
	if err := s.db.DB().SelectContext(ctx, &entities, q, tenantID, pattern, pattern, pattern, limit); err != nil {
		return nil, apperrors.Storage("failed to run exact search", err)
	}

	matches := make([]memory.SearchMatch, 0, len(entities))
	for _, e := range entities {
		matches = append(matches, memory.SearchMatch{Entity: e, Score: exactMatchScore})
	}
	return matches, nil
}

// semanticSearch intersects vector matches with the tenant's own entities.
// The vector layer is advisory; entity ids that do not resolve to tenant rows
// are dropped, and a failing vector service surfaces as DegradedCapability so
// callers fall back instead of erroring out.
func (s *Store) semanticSearch(ctx context.Context, tenantID, query string, limit int) ([]memory.SearchMatch, error) {
	hits, err := s.vec.QuerySimilar(ctx, tenantID, query, limit)
	if err != nil {
		deg := apperrors.Degraded("semantic retrieval unavailable")
		deg.Err = err
		return nil, deg
	}
	matches := make([]memory.SearchMatch, 0, len(hits))
	for _, hit := range hits {
		var e memory.Entity
		q := s.rebind(`SELECT id, tenant_id, name, type, created_at, updated_at
			FROM entities WHERE tenant_id = ? AND id = ?`)
		if err := s.db.DB().GetContext(ctx, &e, q, tenantID, hit.EntityID); err != nil {
			continue
		}
		matches = append(matches, memory.SearchMatch{Entity: e, Score: hit.Score})
	}
	return matches, nil
}

// graphSearch seeds on exact name matches and follows outgoing relations up
// to a fixed depth. Score decays by half per hop.
func (s *Store) graphSearch(ctx context.Context, tenantID, query string, limit int) ([]memory.SearchMatch, error) {
	seeds, err := s.exactSearch(ctx, tenantID, query, limit)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(seeds))
	entities := make(map[string]memory.Entity, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, m := range seeds {
		scores[m.Entity.ID] = exactMatchScore
		entities[m.Entity.ID] = m.Entity
		frontier = append(frontier, m.Entity.ID)
	}

	score := exactMatchScore
	for depth := 0; depth < graphSearchDepth && len(frontier) > 0; depth++ {
		score *= graphHopDecay
		var next []string
		for _, id := range frontier {
			neighbors, err := s.neighborEntities(ctx, tenantID, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := scores[n.ID]; seen {
					continue
				}
				scores[n.ID] = score
				entities[n.ID] = n
				next = append(next, n.ID)
			}
		}
		frontier = next
	}

	matches := make([]memory.SearchMatch, 0, len(scores))
	for id, sc := range scores {
		matches = append(matches, memory.SearchMatch{Entity: entities[id], Score: sc})
	}
	return matches, nil
}

// neighborEntities returns the targets of the entity's outgoing relations.
// Traversal is directed; incoming edges do not pull their sources in.
func (s *Store) neighborEntities(ctx context.Context, tenantID, entityID string) ([]memory.Entity, error) {
	var neighbors []memory.Entity
	q := s.rebind(`SELECT e.id, e.tenant_id, e.name, e.type, e.created_at, e.updated_at
		FROM relations r
		JOIN entities e ON e.tenant_id = r.tenant_id AND e.id = r.to_entity_id
		WHERE r.tenant_id = ? AND r.from_entity_id = ?
		ORDER BY e.created_at, e.id`)
	if err := s.db.DB().SelectContext(ctx, &neighbors, q, tenantID, entityID); err != nil {
		return nil, apperrors.Storage("failed to walk relations", err)
	}
	return neighbors, nil
}

// mergeHybrid unions exact and semantic matches. Entities found by both paths
// get a boost on top of their semantic score.
func mergeHybrid(exact, semantic []memory.SearchMatch) []memory.SearchMatch {
	byID := make(map[string]memory.SearchMatch, len(exact)+len(semantic))
	for _, m := range semantic {
		byID[m.Entity.ID] = m
	}
	for _, m := range exact {
		if prev, ok := byID[m.Entity.ID]; ok {
			prev.Score += hybridBoost
			if prev.Score > 1 {
				prev.Score = 1
			}
			byID[m.Entity.ID] = prev
			continue
		}
		byID[m.Entity.ID] = m
	}
	merged := make([]memory.SearchMatch, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	return merged
}

// finish sorts, truncates, and attaches observations to the final matches.
func (s *Store) finish(ctx context.Context, tenantID string, matches []memory.SearchMatch, limit int, modeUsed string) (*memory.SearchResults, error) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].Entity.CreatedAt.Equal(matches[j].Entity.CreatedAt) {
			return matches[i].Entity.CreatedAt.Before(matches[j].Entity.CreatedAt)
		}
		return matches[i].Entity.ID < matches[j].Entity.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	for i := range matches {
		var obs []string
		q := s.rebind(`SELECT content FROM observations WHERE tenant_id = ? AND entity_id = ? ORDER BY created_at, id`)
		if err := s.db.DB().SelectContext(ctx, &obs, q, tenantID, matches[i].Entity.ID); err != nil {
			return nil, apperrors.Storage("failed to read observations", err)
		}
		matches[i].Observations = obs
	}
	return &memory.SearchResults{Results: matches, ModeUsed: modeUsed}, nil
}
