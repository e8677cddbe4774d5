package tools

import (
	"context"

	"github.com/neuralhub/neuralhub/internal/auth"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// callerAgent resolves the agent a tool operates on: the explicit argument
// when present, otherwise the connection's agent id.
func callerAgent(rc *auth.RequestContext, args map[string]any) (string, error) {
	if id := strArg(args, "agentId"); id != "" {
		return id, nil
	}
	if rc.AgentID != "" {
		return rc.AgentID, nil
	}
	return "", apperrors.InvalidArgument("agentId", "agentId is required when the connection carries no agent identity")
}

func (d *Dispatcher) handleRegisterAgent(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	agent, err := d.registry.Register(ctx, rc.TenantID, &memory.Agent{
		ID:           agentID,
		Name:         strArg(args, "name"),
		Capabilities: strSliceArg(args, "capabilities"),
		Metadata:     strMapArg(args, "metadata"),
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

func (d *Dispatcher) handleSetAgentIdentity(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID, err := callerAgent(rc, args)
	if err != nil {
		return nil, err
	}

	// Partial update: fetch the current registration and overlay only the
	// provided fields.
	current, err := d.registry.Get(ctx, rc.TenantID, agentID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return nil, err
		}
		current = &memory.Agent{ID: agentID}
	}

	if name := strArg(args, "name"); name != "" {
		current.Name = name
	}
	if _, ok := args["capabilities"]; ok {
		current.Capabilities = strSliceArg(args, "capabilities")
	}
	if _, ok := args["metadata"]; ok {
		current.Metadata = strMapArg(args, "metadata")
	}
	if current.Name == "" {
		current.Name = agentID
	}

	agent, err := d.registry.Register(ctx, rc.TenantID, current)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

func (d *Dispatcher) handleGetAgentStatus(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	if agentID := strArg(args, "agentId"); agentID != "" {
		agent, err := d.registry.Get(ctx, rc.TenantID, agentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"agent":     agent,
			"connected": d.registry.IsConnected(rc.TenantID, agentID),
		}, nil
	}

	agents, err := d.registry.List(ctx, rc.TenantID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agents": agents, "count": len(agents)}, nil
}
