package tools

import (
	"context"

	"github.com/neuralhub/neuralhub/internal/auth"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/memory"
	"github.com/neuralhub/neuralhub/internal/router"
)

func (d *Dispatcher) handleSendMessage(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	from := strArg(args, "from")
	if from == "" {
		from = rc.AgentID
	}

	// excludeSelf defaults to true; only an explicit false keeps the sender.
	includeSelf := false
	if v, ok := args["excludeSelf"].(bool); ok && !v {
		includeSelf = true
	}

	result, err := d.router.Send(ctx, rc.TenantID, router.SendRequest{
		From:         from,
		To:           strArg(args, "to"),
		Capabilities: strSliceArg(args, "toCapabilities"),
		Broadcast:    boolArg(args, "broadcast"),
		IncludeSelf:  includeSelf,
		Content:      strArg(args, "content"),
		Type:         strArg(args, "type"),
		Priority:     strArg(args, "priority"),
	})
	if err != nil {
		return nil, err
	}
	d.invalidate(rc.TenantID)
	return result, nil
}

func (d *Dispatcher) handleGetMessages(ctx context.Context, rc *auth.RequestContext, args map[string]any) (any, error) {
	agentID := strArg(args, "agentId")
	if agentID == "" {
		return nil, apperrors.InvalidArgument("agentId", "agentId is required")
	}

	// markAsRead is honored only when the caller is the inbox owner. Callers
	// without a connection-level agent id are taken at their word.
	caller := rc.AgentID
	if caller == "" {
		caller = agentID
	}

	page, err := d.store.ListMessages(ctx, rc.TenantID, agentID, memory.ListMessagesOptions{
		UnreadOnly:    boolArg(args, "unreadOnly"),
		MarkAsRead:    boolArg(args, "markAsRead"),
		SinceID:       strArg(args, "sinceId"),
		Limit:         intArg(args, "limit"),
		CallerAgentID: caller,
	})
	if err != nil {
		return nil, err
	}
	if boolArg(args, "markAsRead") {
		d.invalidate(rc.TenantID)
	}
	return page, nil
}
