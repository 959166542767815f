package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"prudad/internal/store"
)

const (
	colorIssued       = 0x0078D4
	colorActivated    = 0x107C10
	colorRenewed      = 0x8764B8
	colorRevoked      = 0xD13438
	colorExpired      = 0x797775
	colorExpiringSoon = 0xFFB900

	webhookTimeout = 10 * time.Second
)

// DiscordSink posts lifecycle events to the configured Discord webhook.
// The config row is re-read per event so dashboard changes take effect
// without a restart. Delivery is fire-and-forget: a failed POST is
// logged and the event is not retried.
type DiscordSink struct {
	config *store.DiscordStore
	client *http.Client
	logger *slog.Logger
}

func NewDiscordSink(config *store.DiscordStore, logger *slog.Logger) *DiscordSink {
	return &DiscordSink{
		config: config,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger.With(slog.String("component", "events.discord")),
	}
}

type webhookEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Fields      []embedField  `json:"fields,omitempty"`
	Footer      webhookFooter `json:"footer"`
	Timestamp   string        `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

func (s *DiscordSink) Consume(ctx context.Context, ev Event) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "read integration config", slog.String("error", err.Error()))
		return
	}
	if !cfg.IsEnabled || cfg.WebhookURL == "" {
		return
	}

	embed := webhookEmbed{
		Title:       embedTitle(ev.Kind),
		Description: embedDescription(ev),
		Color:       embedColor(ev.Kind),
		Footer:      webhookFooter{Text: "Pruda License Authority"},
		Timestamp:   ev.At.Format(time.RFC3339),
	}
	embed.Fields = append(embed.Fields, embedField{Name: "Key", Value: ev.Key, Inline: true})
	if ev.DiscordUsername != "" {
		embed.Fields = append(embed.Fields, embedField{Name: "User", Value: ev.DiscordUsername, Inline: true})
	}
	if ev.ExpiresAt != nil {
		embed.Fields = append(embed.Fields, embedField{
			Name: "Expires", Value: ev.ExpiresAt.Format("2006-01-02 15:04 MST"), Inline: true,
		})
	}

	if err := s.post(ctx, cfg.WebhookURL, webhookPayload{Embeds: []webhookEmbed{embed}}); err != nil {
		s.logger.WarnContext(ctx, "webhook delivery failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()))
	}
}

// SendTest posts a test embed so the dashboard can confirm the webhook.
func (s *DiscordSink) SendTest(ctx context.Context) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.WebhookURL == "" {
		return fmt.Errorf("no webhook URL configured")
	}
	return s.post(ctx, cfg.WebhookURL, webhookPayload{Embeds: []webhookEmbed{{
		Title:       "Pruda License Authority",
		Description: "This is a test message from the license authority.",
		Color:       colorIssued,
		Footer:      webhookFooter{Text: "Pruda License Authority"},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}}})
}

func (s *DiscordSink) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func embedTitle(kind Kind) string {
	switch kind {
	case KindIssued:
		return "License Issued"
	case KindActivated:
		return "License Activated"
	case KindRenewed:
		return "License Renewed"
	case KindRevoked:
		return "License Revoked"
	case KindExpired:
		return "License Expired"
	case KindExpiringSoon:
		return "License Expiring Soon"
	default:
		return "License Event"
	}
}

func embedDescription(ev Event) string {
	switch ev.Kind {
	case KindIssued:
		return "A new license key was generated."
	case KindActivated:
		return "A license was activated on a device."
	case KindRenewed:
		return "A license validity period was extended."
	case KindRevoked:
		return "A license was revoked by an administrator."
	case KindExpired:
		return "A license passed its expiry time."
	case KindExpiringSoon:
		return "A license expires within the notification window."
	default:
		return string(ev.Kind)
	}
}

func embedColor(kind Kind) int {
	switch kind {
	case KindActivated:
		return colorActivated
	case KindRenewed:
		return colorRenewed
	case KindRevoked:
		return colorRevoked
	case KindExpired:
		return colorExpired
	case KindExpiringSoon:
		return colorExpiringSoon
	default:
		return colorIssued
	}
}
