package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Channel delivers an alert to one external notification target. Each channel
// owns its payload shape.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// PagerChannel posts to a paging/issue-tracking events API (PagerDuty shape).
type PagerChannel struct {
	URL        string
	RoutingKey string
	Client     *http.Client
}

func (c *PagerChannel) Name() string { return "pager" }

func (c *PagerChannel) Send(ctx context.Context, a Alert) error {
	payload := map[string]any{
		"routing_key":  c.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    a.DedupKey,
		"payload": map[string]any{
			"summary":        a.Title + ": " + a.Message,
			"source":         a.Source,
			"severity":       string(a.Severity),
			"timestamp":      a.Timestamp.UTC().Format(time.RFC3339),
			"custom_details": a.Metadata,
		},
	}
	return postJSON(ctx, c.Client, c.URL, payload)
}

// ChatChannel posts to a chat incoming-webhook (Slack shape).
type ChatChannel struct {
	WebhookURL string
	Client     *http.Client
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Send(ctx context.Context, a Alert) error {
	payload := map[string]any{
		"text": fmt.Sprintf("[%s] %s", a.Severity, a.Title),
		"attachments": []map[string]any{
			{
				"color":  chatColor(a.Severity),
				"text":   a.Message,
				"footer": a.Source,
				"ts":     a.Timestamp.Unix(),
				"fields": chatFields(a.Metadata),
			},
		},
	}
	return postJSON(ctx, c.Client, c.WebhookURL, payload)
}

func chatColor(s Severity) string {
	switch s {
	case SeverityCritical, SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	}
	return "good"
}

func chatFields(metadata map[string]any) []map[string]any {
	fields := make([]map[string]any, 0, len(metadata))
	for k, v := range metadata {
		fields = append(fields, map[string]any{
			"title": k,
			"value": fmt.Sprint(v),
			"short": true,
		})
	}
	return fields
}

// WebhookChannel posts the alert as-is to a generic JSON endpoint.
type WebhookChannel struct {
	URL    string
	Client *http.Client
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, a Alert) error {
	return postJSON(ctx, c.Client, c.URL, a)
}
