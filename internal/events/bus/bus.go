// Package bus provides the event bus carrying hub-internal notifications
// (message fan-out, agent registration, session lifecycle) from writers to
// the WebSocket hub and external notifiers. Storage stays authoritative;
// everything on the bus is best-effort.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the hub. Tenant and agent ids are appended as NATS
// subject tokens so subscribers can filter with wildcards.
const (
	SubjectMessageCreated  = "hub.message.created"  // + .<tenant>.<agent>
	SubjectAgentRegistered = "hub.agent.registered" // + .<tenant>
	SubjectSessionEnded    = "hub.session.ended"    // + .<tenant>
)

// Event represents a message on the event bus.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"` // Component that produced the event
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(eventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus interface for event bus operations.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern. Patterns use
	// NATS semantics: "*" matches one token, ">" matches the rest.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close closes the connection.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
