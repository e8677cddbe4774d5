// Package session implements the session lifecycle and the tiered context
// bundles that let an agent resume a project where the previous session
// stopped.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/neuralhub/neuralhub/internal/common/errors"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
	"github.com/neuralhub/neuralhub/internal/memory"
)

// Depth selects how many bundle tiers are materialized.
type Depth string

const (
	DepthHot  Depth = "hot"
	DepthWarm Depth = "warm"
	DepthCold Depth = "cold"
)

// BundleMeta carries sizing hints for the caller's budget.
type BundleMeta struct {
	Depth         Depth `json:"depth"`
	TokenEstimate int   `json:"tokenEstimate"`
}

// ContextBundle is the tiered context returned by get_agent_context and
// begin_session. Warm and cold fields stay empty at shallower depths. Given
// identical store state, the same inputs yield byte-identical bundles.
type ContextBundle struct {
	AgentID   string    `json:"agentId"`
	ProjectID string    `json:"projectId,omitempty"`

	// HOT tier
	Identity       *memory.Agent     `json:"identity,omitempty"`
	UnreadMessages []*memory.Message `json:"unreadMessages"`
	OpenSession    *memory.Session   `json:"openSession,omitempty"`
	PendingHandoff *memory.Handoff   `json:"pendingHandoff,omitempty"`

	// WARM tier
	Learnings          []*memory.Learning `json:"learnings,omitempty"`
	Preferences        map[string]string  `json:"preferences,omitempty"`
	LastSessionSummary string             `json:"lastSessionSummary,omitempty"`

	// COLD tier
	RelevantEntities []memory.SearchMatch `json:"relevantEntities,omitempty"`

	Meta BundleMeta `json:"meta"`
}

// BeginResult is the begin_session response.
type BeginResult struct {
	SessionID     string          `json:"sessionId"`
	Reused        bool            `json:"reused"`
	Handoff       *memory.Handoff `json:"handoff,omitempty"`
	ContextBundle *ContextBundle  `json:"contextBundle"`
}

// EndResult is the end_session response.
type EndResult struct {
	HandoffID string `json:"handoffId"`
	SessionID string `json:"sessionId,omitempty"`
}

// LearningHint is an optional learning recorded alongside end_session.
type LearningHint struct {
	Context    string  `json:"context"`
	Lesson     string  `json:"lesson"`
	Confidence float64 `json:"confidence"`
}

// Manager owns session open/close, handoff exchange, and bundle assembly.
type Manager struct {
	store            memory.Store
	bus              bus.EventBus
	logger           *logger.Logger
	handoffRetention time.Duration
	learningLimit    int
	entityLimit      int
}

// New creates a session manager.
func New(store memory.Store, eventBus bus.EventBus, handoffRetention time.Duration, learningLimit, entityLimit int, log *logger.Logger) *Manager {
	if learningLimit <= 0 {
		learningLimit = 10
	}
	if entityLimit <= 0 {
		entityLimit = 20
	}
	return &Manager{
		store:            store,
		bus:              eventBus,
		logger:           log.WithFields(zap.String("component", "session")),
		handoffRetention: handoffRetention,
		learningLimit:    learningLimit,
		entityLimit:      entityLimit,
	}
}

// Begin opens or reuses a session, claims the latest unconsumed handoff for
// the project, and assembles a warm context bundle. When two calls race for
// the same handoff, exactly one receives it.
func (m *Manager) Begin(ctx context.Context, tenantID, agentID, projectID string) (*BeginResult, error) {
	if agentID == "" {
		return nil, apperrors.InvalidArgument("agentId", "agentId is required")
	}
	if projectID == "" {
		return nil, apperrors.InvalidArgument("projectId", "projectId is required")
	}

	sess, reused, err := m.store.OpenSession(ctx, tenantID, agentID, projectID)
	if err != nil {
		return nil, err
	}

	handoff, err := m.store.ConsumeHandoff(ctx, tenantID, projectID, m.retentionCutoff())
	if err != nil {
		return nil, err
	}

	bundle, err := m.Bundle(ctx, tenantID, agentID, projectID, DepthWarm)
	if err != nil {
		return nil, err
	}
	// The handoff was just claimed by this call; it is no longer pending.
	bundle.PendingHandoff = nil

	return &BeginResult{
		SessionID:     sess.ID,
		Reused:        reused,
		Handoff:       handoff,
		ContextBundle: bundle,
	}, nil
}

// End closes the open session if one exists, writes a handoff note for the
// next session, records any learning hints, and announces the end on the bus.
func (m *Manager) End(ctx context.Context, tenantID, agentID, projectID, summary string, openItems []string, hints []LearningHint) (*EndResult, error) {
	if agentID == "" {
		return nil, apperrors.InvalidArgument("agentId", "agentId is required")
	}
	if projectID == "" {
		return nil, apperrors.InvalidArgument("projectId", "projectId is required")
	}
	if summary == "" {
		return nil, apperrors.InvalidArgument("summary", "summary is required")
	}

	result := &EndResult{}
	closed, err := m.store.CloseSession(ctx, tenantID, agentID, projectID, summary)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	if closed != nil {
		result.SessionID = closed.ID
	}

	handoff, err := m.store.WriteHandoff(ctx, tenantID, &memory.Handoff{
		ProjectID:        projectID,
		AuthoringAgentID: agentID,
		Summary:          summary,
		OpenItems:        openItems,
	})
	if err != nil {
		return nil, err
	}
	result.HandoffID = handoff.ID

	for _, h := range hints {
		if _, err := m.store.RecordLearning(ctx, tenantID, &memory.Learning{
			AgentID:    agentID,
			Context:    h.Context,
			Lesson:     h.Lesson,
			Confidence: h.Confidence,
		}); err != nil {
			// A bad hint never blocks the handoff that is already durable.
			m.logger.Warn("failed to record learning hint",
				zap.String("tenant_id", tenantID),
				zap.String("agent_id", agentID),
				zap.Error(err))
		}
	}

	subject := fmt.Sprintf("%s.%s", bus.SubjectSessionEnded, tenantID)
	event := bus.NewEvent("session.ended", "session", map[string]any{
		"tenantId":  tenantID,
		"agentId":   agentID,
		"projectId": projectID,
		"summary":   summary,
		"handoffId": handoff.ID,
	})
	if err := m.bus.Publish(ctx, subject, event); err != nil {
		m.logger.Warn("failed to announce session end", zap.Error(err))
	}

	return result, nil
}

// Bundle assembles the tiered context for (agent, project) at the requested
// depth. The pending handoff is peeked, never consumed.
func (m *Manager) Bundle(ctx context.Context, tenantID, agentID, projectID string, depth Depth) (*ContextBundle, error) {
	switch depth {
	case DepthHot, DepthWarm, DepthCold:
	case "":
		depth = DepthWarm
	default:
		return nil, apperrors.InvalidArgument("depth", "depth must be one of hot, warm, cold")
	}

	bundle := &ContextBundle{
		AgentID:        agentID,
		ProjectID:      projectID,
		UnreadMessages: []*memory.Message{},
		Meta:           BundleMeta{Depth: depth},
	}

	// HOT: identity, unread inbox, open session, pending handoff.
	identity, err := m.store.GetAgent(ctx, tenantID, agentID)
	if err == nil {
		bundle.Identity = identity
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	page, err := m.store.ListMessages(ctx, tenantID, agentID, memory.ListMessagesOptions{UnreadOnly: true})
	if err != nil {
		return nil, err
	}
	bundle.UnreadMessages = page.Messages

	if projectID != "" {
		open, err := m.store.FindOpenSession(ctx, tenantID, agentID, projectID)
		if err != nil {
			return nil, err
		}
		bundle.OpenSession = open

		pending, err := m.store.PeekHandoff(ctx, tenantID, projectID, m.retentionCutoff())
		if err != nil {
			return nil, err
		}
		bundle.PendingHandoff = pending
	}

	if depth == DepthWarm || depth == DepthCold {
		im, err := m.store.GetIndividualMemory(ctx, tenantID, agentID, m.learningLimit)
		if err != nil {
			return nil, err
		}
		bundle.Learnings = im.Learnings
		if len(im.Preferences) > 0 {
			bundle.Preferences = im.Preferences
		}

		if projectID != "" {
			last, err := m.store.LastClosedSession(ctx, tenantID, agentID, projectID)
			if err != nil {
				return nil, err
			}
			if last != nil {
				bundle.LastSessionSummary = last.Summary
			}
		}
	}

	if depth == DepthCold && projectID != "" {
		res, err := m.store.SearchEntities(ctx, tenantID, memory.SearchQuery{
			Query: projectID,
			Mode:  memory.SearchHybrid,
			Limit: m.entityLimit,
		})
		if err != nil {
			return nil, err
		}
		bundle.RelevantEntities = res.Results
	}

	bundle.Meta.TokenEstimate = estimateTokens(bundle)
	return bundle, nil
}

func (m *Manager) retentionCutoff() time.Time {
	return time.Now().UTC().Add(-m.handoffRetention)
}

// estimateTokens approximates the bundle's token cost as encoded bytes over
// four, rounded up. Meta is zeroed first so the estimate covers content only.
func estimateTokens(b *ContextBundle) int {
	clone := *b
	clone.Meta = BundleMeta{}
	data, err := json.Marshal(&clone)
	if err != nil {
		return 0
	}
	return (len(data) + 3) / 4
}
