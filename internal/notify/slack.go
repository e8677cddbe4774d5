// Package notify forwards hub events to external channels. Delivery is best
// effort; a failed notification is logged and dropped, never retried against
// the caller's request.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/neuralhub/neuralhub/internal/common/config"
	"github.com/neuralhub/neuralhub/internal/common/logger"
	"github.com/neuralhub/neuralhub/internal/events/bus"
)

const sendTimeout = 10 * time.Second

// SlackNotifier posts a short summary to a Slack incoming webhook whenever an
// agent ends a session.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *logger.Logger
	sub        bus.Subscription
}

// NewSlackNotifier returns nil when no webhook URL is configured; callers
// treat a nil notifier as disabled.
func NewSlackNotifier(cfg config.SlackConfig, log *logger.Logger) *SlackNotifier {
	if cfg.WebhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: sendTimeout},
		logger:     log.WithFields(zap.String("component", "slack_notifier")),
	}
}

// Start subscribes to session-ended events for all tenants.
func (n *SlackNotifier) Start(eventBus bus.EventBus) error {
	sub, err := eventBus.Subscribe(bus.SubjectSessionEnded+".*", n.onSessionEnded)
	if err != nil {
		return err
	}
	n.sub = sub
	return nil
}

// Stop drops the bus subscription.
func (n *SlackNotifier) Stop() {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
}

func (n *SlackNotifier) onSessionEnded(ctx context.Context, event *bus.Event) error {
	tenantID, _ := event.Data["tenantId"].(string)
	agentID, _ := event.Data["agentId"].(string)
	projectID, _ := event.Data["projectId"].(string)
	summary, _ := event.Data["summary"].(string)

	text := fmt.Sprintf("Agent *%s* ended a session on *%s* (tenant %s)", agentID, projectID, tenantID)
	if summary != "" {
		text += "\n> " + summary
	}

	if err := n.post(ctx, text); err != nil {
		n.logger.Warn("slack notification failed",
			zap.String("tenant_id", tenantID),
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
	return nil
}

func (n *SlackNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
