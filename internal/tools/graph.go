package tools

import (
	"context"

	"github.com/neuralhub/neuralhub/internal/auth"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

func (d *Dispatcher) handleCreateEntities(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	raw, ok := args["entities"].([]any)
	if !ok || len(raw) == 0 {
		return nil, apperrors.InvalidArgument("entities", "at least one entity is required")
	}
	inputs := make([]memory.EntityInput, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, apperrors.InvalidArgument("entities", "each entity must be an object")
		}
		inputs = append(inputs, memory.EntityInput{
			Name:         strArg(obj, "name"),
			Type:         strArg(obj, "type"),
			Observations: strSliceArg(obj, "observations"),
		})
	}

	result, err := d.store.UpsertEntities(ctx, rc.TenantID, inputs)
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return result, nil
}

func (d *Dispatcher) handleAddObservations(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	obs, err := d.store.AddObservations(ctx, rc.TenantID, strArg(args, "entityName"), strSliceArg(args, "observations"))
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return map[string]any{"added": len(obs), "observations": obs}, nil
}

func (d *Dispatcher) handleCreateRelations(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	raw, ok := args["relations"].([]any)
	if !ok || len(raw) == 0 {
		return nil, apperrors.InvalidArgument("relations", "at least one relation is required")
	}
	triples := make([]memory.RelationInput, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, apperrors.InvalidArgument("relations", "each relation must be an object")
		}
		triples = append(triples, memory.RelationInput{
			From: strArg(obj, "from"),
			To:   strArg(obj, "to"),
			Type: strArg(obj, "relationType"),
		})
	}

	relations, err := d.store.CreateRelations(ctx, rc.TenantID, triples)
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return map[string]any{"relations": relations}, nil
}

func (d *Dispatcher) handleReadGraph(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	return d.store.ReadGraph(ctx, rc.TenantID)
}

func (d *Dispatcher) handleSearchEntities(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	return d.store.SearchEntities(ctx, rc.TenantID, memory.SearchQuery{
		Query: strArg(args, "query"),
		Mode:  memory.SearchMode(strArg(args, "mode")),
		Limit: intArg(args, "limit"),
	})
}

// handleSearchNodes is the deprecated alias: graph-mode search, same result
// shape as search_entities.
func (d *Dispatcher) handleSearchNodes(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	return d.store.SearchEntities(ctx, rc.TenantID, memory.SearchQuery{
		Query: strArg(args, "query"),
		Mode:  memory.SearchGraph,
		Limit: intArg(args, "limit"),
	})
}
