// Package router resolves message recipients and performs fan-out delivery.
// Persistence is the source of truth: the whole batch is stored in one
// transaction before any notification is attempted, so a recipient that never
// hears a push still finds the message in its inbox.
package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/agent/registry"
	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// SendRequest describes one send_message call. Exactly one selector applies:
// Broadcast (or To == "*"), Capabilities, or To, checked in that order.
type SendRequest struct {
	From         string
	To           string
	Capabilities []string
	Broadcast    bool
	// IncludeSelf keeps the sender in broadcast and capability fan-outs.
	IncludeSelf bool
	Content     string
	Type        string
	Priority    string
}

// SendResult reports the stored fan-out.
type SendResult struct {
	MessageIDs []string `json:"messageIds"`
	Recipients []string `json:"recipients"`
}

// Router delivers messages between agents of one tenant.
type Router struct {
	store    memory.Store
	registry *registry.Registry
	bus      bus.EventBus
	logger   *logger.Logger
}

// New creates a router.
func New(store memory.Store, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger) *Router {
	return &Router{
		store:    store,
		registry: reg,
		bus:      eventBus,
		logger:   log.WithFields(zap.String("component", "router")),
	}
}

// Send resolves recipients, stores one message copy per recipient in a single
// transaction, then announces each copy on the bus. Returns NoRecipient when
// the selector matches nobody.
func (r *Router) Send(ctx context.Context, tenantID string, req SendRequest) (*SendResult, error) {
	if req.Content == "" {
		return nil, apperrors.InvalidArgument("content", "content is required")
	}
	if req.From == "" {
		return nil, apperrors.InvalidArgument("from", "sender agent id is required")
	}
	if req.Type == "" {
		req.Type = "message"
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}

	recipients, err := r.resolve(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apperrors.NoRecipient("no agents matched the recipient selector")
	}

	msgs := make([]*memory.Message, 0, len(recipients))
	for _, to := range recipients {
		msgs = append(msgs, &memory.Message{
			ID:       uuid.New().String(),
			From:     req.From,
			To:       to,
			Content:  req.Content,
			Type:     req.Type,
			Priority: req.Priority,
		})
	}
	if err := r.store.InsertMessages(ctx, tenantID, msgs); err != nil {
		return nil, err
	}

	result := &SendResult{
		MessageIDs: make([]string, 0, len(msgs)),
		Recipients: recipients,
	}
	for _, m := range msgs {
		result.MessageIDs = append(result.MessageIDs, m.ID)
		r.announce(ctx, tenantID, m)
	}
	return result, nil
}

// resolve turns the selector into a recipient list. Broadcast and capability
// selection exclude the sender unless IncludeSelf is set; direct sends
// require a registered recipient.
func (r *Router) resolve(ctx context.Context, tenantID string, req SendRequest) ([]string, error) {
	switch {
	case req.Broadcast || req.To == "*":
		agents, err := r.registry.List(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, a := range agents {
			if a.ID == req.From && !req.IncludeSelf {
				continue
			}
			out = append(out, a.ID)
		}
		return out, nil

	case len(req.Capabilities) > 0:
		agents, err := r.registry.List(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, a := range agents {
			if a.ID == req.From && !req.IncludeSelf {
				continue
			}
			if a.HasCapabilities(req.Capabilities) {
				out = append(out, a.ID)
			}
		}
		return out, nil

	case req.To != "":
		if _, err := r.registry.Get(ctx, tenantID, req.To); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NoRecipient(fmt.Sprintf("agent '%s' is not registered", req.To))
			}
			return nil, err
		}
		return []string{req.To}, nil

	default:
		return nil, apperrors.InvalidArgument("to", "a recipient, capability list, or broadcast flag is required")
	}
}

// announce publishes a stored message on the bus. Delivery failures are
// logged, never surfaced: the message is already durable.
func (r *Router) announce(ctx context.Context, tenantID string, m *memory.Message) {
	subject := fmt.Sprintf("%s.%s.%s", bus.SubjectMessageCreated, tenantID, m.To)
	event := bus.NewEvent("message.created", "router", map[string]any{
		"tenantId":  tenantID,
		"messageId": m.ID,
		"from":      m.From,
		"to":        m.To,
		"type":      m.Type,
		"priority":  m.Priority,
		"content":   m.Content,
		"createdAt": m.CreatedAt,
	})
	if err := r.bus.Publish(ctx, subject, event); err != nil {
		r.logger.Warn("failed to announce message",
			zap.String("tenant_id", tenantID),
			zap.String("message_id", m.ID),
			zap.Error(err))
	}
}
