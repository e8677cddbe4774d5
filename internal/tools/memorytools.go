package tools

import (
	"context"

	"github.com/neuralhub/neuralhub/internal/auth"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

const defaultLearningConfidence = 0.5

func (d *Dispatcher) handleRecordLearning(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	learning, err := d.store.RecordLearning(ctx, rc.TenantID, &memory.Learning{
		AgentID:    agentID,
		Context:    strArg(args, "context"),
		Lesson:     strArg(args, "lesson"),
		Confidence: floatArg(args, "confidence", defaultLearningConfidence),
	})
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return learning, nil
}

func (d *Dispatcher) handleSetPreferences(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	prefs := strMapArg(args, "preferences")
	if len(prefs) == 0 {
		return nil, apperrors.InvalidArgument("preferences", "at least one preference is required")
	}
	if err := d.store.SetPreferences(ctx, rc.TenantID, agentID, prefs); err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return map[string]any{"updated": len(prefs)}, nil
}

func (d *Dispatcher) handleGetIndividualMemory(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}
	return d.store.GetIndividualMemory(ctx, rc.TenantID, agentID, intArg(args, "limit"))
}
