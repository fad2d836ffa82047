// Package alerting posts recalculation job failures to a chat or generic
// webhook.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	TypeSlack   = "slack"
	TypeDiscord = "discord"
	TypeGeneric = "generic"
)

// maxListed caps how many failed plans are spelled out in one message.
const maxListed = 10

type Config struct {
	WebhookURL string
	// WebhookType selects the payload format. Empty means detect from the URL.
	WebhookType string
	// MinFailures is the number of failed plans needed before a partial
	// failure is reported. A job error is always reported.
	MinFailures int
	Timeout     time.Duration
}

// DetectType guesses the payload format from the webhook host.
func DetectType(url string) string {
	switch {
	case strings.Contains(url, "hooks.slack.com"), strings.Contains(url, "slack.com"):
		return TypeSlack
	case strings.Contains(url, "discord.com"), strings.Contains(url, "discordapp.com"):
		return TypeDiscord
	default:
		return TypeGeneric
	}
}

type Alerter struct {
	cfg    Config
	client *http.Client
}

func NewAlerter(cfg Config) *Alerter {
	if cfg.WebhookType == "" {
		cfg.WebhookType = DetectType(cfg.WebhookURL)
	}
	if cfg.MinFailures <= 0 {
		cfg.MinFailures = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (a *Alerter) Enabled() bool { return a != nil && a.cfg.WebhookURL != "" }

// JobAlert describes one finished recalculation pass.
type JobAlert struct {
	JobName   string
	Total     int
	Changed   int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
	// Error is set when the pass itself aborted.
	Error    string
	Failures []PlanFailure
}

type PlanFailure struct {
	PlanID string `json:"plan_id"`
	Error  string `json:"error"`
}

// ShouldSend reports whether alert crosses the configured threshold.
func (a *Alerter) ShouldSend(alert JobAlert) bool {
	if !a.Enabled() {
		return false
	}
	return alert.Error != "" || alert.Failed >= a.cfg.MinFailures
}

// Send posts alert to the webhook. Alerts under the threshold, or with no
// webhook configured, are dropped without error.
func (a *Alerter) Send(ctx context.Context, alert JobAlert) error {
	logger := zerolog.Ctx(ctx)
	if !a.ShouldSend(alert) {
		logger.Debug().Int("failed", alert.Failed).Msg("job alert skipped")
		return nil
	}

	var payload any
	switch a.cfg.WebhookType {
	case TypeSlack:
		payload = slackPayload(alert)
	case TypeDiscord:
		payload = discordPayload(alert)
	default:
		payload = genericPayload(alert)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	logger.Info().
		Str("job", alert.JobName).
		Str("webhook_type", a.cfg.WebhookType).
		Int("failed", alert.Failed).
		Msg("job alert sent")
	return nil
}

func headline(alert JobAlert) string {
	if alert.Error != "" {
		return fmt.Sprintf("%s aborted: %s", alert.JobName, alert.Error)
	}
	return fmt.Sprintf("%s: %d of %d plans failed to recalculate", alert.JobName, alert.Failed, alert.Total)
}

func failureLines(alert JobAlert, bold string) string {
	var b strings.Builder
	for i, f := range alert.Failures {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(alert.Failures)-maxListed)
			break
		}
		fmt.Fprintf(&b, "- %s%s%s: %s\n", bold, f.PlanID, bold, f.Error)
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

func slackPayload(alert JobAlert) map[string][]slackBlock {
	icon := ":warning:"
	if alert.Error != "" || (alert.Total > 0 && alert.Failed == alert.Total) {
		icon = ":x:"
	}
	return map[string][]slackBlock{
		"blocks": {
			{Type: "header", Text: &slackText{Type: "plain_text", Text: icon + " " + headline(alert)}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Plans:*\n%d", alert.Total)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Changed:*\n%d", alert.Changed)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
			}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*Failed plans:*\n" + failureLines(alert, "*")}},
		},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Timestamp   string         `json:"timestamp"`
}

const (
	discordYellow = 0xFFFF00
	discordRed    = 0xFF0000
)

func discordPayload(alert JobAlert) map[string][]discordEmbed {
	color := discordYellow
	if alert.Error != "" || (alert.Total > 0 && alert.Failed == alert.Total) {
		color = discordRed
	}
	return map[string][]discordEmbed{
		"embeds": {{
			Title:       "Recalculation alert: " + alert.JobName,
			Description: headline(alert),
			Color:       color,
			Fields: []discordField{
				{Name: "Changed", Value: fmt.Sprint(alert.Changed), Inline: true},
				{Name: "Failed", Value: fmt.Sprint(alert.Failed), Inline: true},
				{Name: "Duration", Value: alert.Duration.Round(time.Millisecond).String(), Inline: true},
				{Name: "Failed plans", Value: failureLines(alert, "**")},
			},
			Timestamp: alert.Timestamp.Format(time.RFC3339),
		}},
	}
}

type genericAlert struct {
	AlertType   string        `json:"alert_type"`
	JobName     string        `json:"job_name"`
	Total       int           `json:"total_count"`
	Changed     int           `json:"changed_count"`
	Failed      int           `json:"failed_count"`
	DurationMs  int64         `json:"duration_ms"`
	Timestamp   string        `json:"timestamp"`
	Error       string        `json:"error,omitempty"`
	FailedPlans []PlanFailure `json:"failed_plans"`
}

func genericPayload(alert JobAlert) genericAlert {
	failures := alert.Failures
	if failures == nil {
		failures = []PlanFailure{}
	}
	return genericAlert{
		AlertType:   "recalculation_failure",
		JobName:     alert.JobName,
		Total:       alert.Total,
		Changed:     alert.Changed,
		Failed:      alert.Failed,
		DurationMs:  alert.Duration.Milliseconds(),
		Timestamp:   alert.Timestamp.Format(time.RFC3339),
		Error:       alert.Error,
		FailedPlans: failures,
	}
}
