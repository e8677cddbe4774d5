package tools

import (
	"context"

	"github.com/neuralhub/neuralhub/internal/auth"
	"github.com/neuralhub/neuralhub/internal/cache"
	"github.com/neuralhub/neuralhub/internal/session"
)

func (d *Dispatcher) handleGetAgentContext(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}
	projectID := strArg(args, "projectId")
	depth := session.Depth(strArg(args, "depth"))

	key := cache.Key(rc.TenantID, agentID, "context:"+projectID+":"+string(depth))
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			if bundle, ok := v.(*session.ContextBundle); ok {
				return bundle, nil
			}
		}
	}

	bundle, err := d.sessions.Bundle(ctx, rc.TenantID, agentID, projectID, depth)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Set(key, bundle)
	}
	return bundle, nil
}

func (d *Dispatcher) handleBeginSession(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	result, err := d.sessions.Begin(ctx, rc.TenantID, agentID, strArg(args, "projectId"))
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return result, nil
}

func (d *Dispatcher) handleEndSession(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	var hints []session.LearningHint
	if raw, ok := args["learnings"].([]any); ok {
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			hints = append(hints, session.LearningHint{
				Context:    strArg(obj, "context"),
				Lesson:     strArg(obj, "lesson"),
				Confidence: floatArg(obj, "confidence", defaultLearningConfidence),
			})
		}
	}

	result, err := d.sessions.End(ctx, rc.TenantID, agentID,
		strArg(args, "projectId"),
		strArg(args, "summary"),
		strSliceArg(args, "openItems"),
		hints)
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return result, nil
}
