package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var lines []string
	for i, key := range n.FailedKeys {
		if i == 5 {
			lines = append(lines, fmt.Sprintf("• and %d more", len(n.FailedKeys)-i))
			break
		}
		lines = append(lines, "• `"+key+"`")
	}

	ts := n.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	embed := map[string]any{
		"title":       n.Title,
		"description": fmt.Sprintf("**%s / %s** | %s\n\n%s\n\n%s", n.Kind, n.Period, summary(n), n.Body, strings.Join(lines, "\n")),
		"color":       0xE01E5A,
		"footer":      map[string]any{"text": "run " + n.RunID},
		"timestamp":   ts.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	if err := postJSON(ctx, d.client, d.webhookURL, body, nil); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
