package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	// Build Slack Block Kit message.
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": n.Title,
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Kind:* %s | *Period:* %s | %s\n%s", n.Kind, n.Period, summary(n), n.Body),
			},
		},
	}

	if len(n.FailedKeys) > 0 {
		keys := n.FailedKeys
		if len(keys) > 5 {
			keys = keys[:5]
		}
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": []map[string]any{{
				"type": "mrkdwn",
				"text": "Failed keys: `" + strings.Join(keys, "`, `") + "`",
			}},
		})
	}

	blocks = append(blocks, map[string]any{
		"type":     "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": "run " + n.RunID,
		}},
	})

	body, err := json.Marshal(map[string]any{"blocks": blocks})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := postJSON(ctx, s.client, s.webhookURL, body, nil); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
