// Package slack announces high-urgency emission detections to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

const (
	maxNotesLen = 1500
	httpTimeout = 10 * time.Second
)

// Notifier posts event views to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts one event to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, v *emission.EventView) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(v))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "event_id", v.ID, "bucket", v.TriageBucket)
	return nil
}

func buildMessage(v *emission.EventView) map[string]any {
	blocks := []map[string]any{
		headerBlock(v),
		{"type": "divider"},
		fieldsBlock(v),
	}
	if nb := notesBlock(v); nb != nil {
		blocks = append(blocks, map[string]any{"type": "divider"}, nb)
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(v))
	return map[string]any{"blocks": blocks}
}

func headerBlock(v *emission.EventView) map[string]any {
	site := v.Asset.SiteName
	if site == "" {
		site = v.SiteID
	}
	text := fmt.Sprintf("%s %s methane detection: %s", bucketEmoji(v.TriageBucket), v.TriageBucket, site)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(v *emission.EventView) map[string]any {
	field := func(format string, args ...any) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": fmt.Sprintf(format, args...)}
	}
	operator := v.Asset.Operator
	if operator == "" {
		operator = "unknown"
	}

	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			field("*Triage score:* %.2f", v.TriageScore),
			field("*Rate:* %.0f kg/h", v.RateKgph),
			field("*Method:* %s", v.Type),
			field("*Confidence:* %.0f%%", v.Confidence*100),
			field("*Operator:* %s", operator),
			field("*Investigate SLA:* %s", emission.BreachLabel(v.InvestigateRemaining)),
		},
	}
}

// notesBlock renders detection notes, or nil when there are none.
func notesBlock(v *emission.EventView) map[string]any {
	if len(v.Notes) == 0 {
		return nil
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(v.Notes)) {
		fmt.Fprintf(&b, "• *%s:* %s\n", k, v.Notes[k])
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": "*Notes*\n\n" + truncate(strings.TrimSuffix(b.String(), "\n"), maxNotesLen),
		},
	}
}

func contextBlock(v *emission.EventView) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("ventwatch • event %s • detected %s", v.ID, v.DetectedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func bucketEmoji(b emission.Bucket) string {
	switch b {
	case emission.BucketHigh:
		return "\U0001f534" // red circle
	case emission.BucketMed:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
