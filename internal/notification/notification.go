// Package notification delivers critical alert notifications to external
// channels. Delivery is best effort: the dispatcher logs failures but never
// rolls back a persisted alert because a channel was down.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// Channel defines the interface for alert notification delivery.
type Channel interface {
	Send(ctx context.Context, alert *models.Alert, threat *models.ThreatEvent) error
	Type() string
}

// WebhookChannel sends alert notifications via HTTP POST.
type WebhookChannel struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

// NewWebhookChannel creates a webhook notification channel.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		URL:     url,
		Timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookChannel) Type() string {
	return "webhook"
}

func (w *WebhookChannel) Send(ctx context.Context, alert *models.Alert, threat *models.ThreatEvent) error {
	payload := map[string]interface{}{
		"alert_id":  alert.ID,
		"title":     alert.Title,
		"message":   alert.Message,
		"severity":  string(alert.Severity),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if threat != nil {
		payload["threat_id"] = threat.ID
		payload["threat_type"] = threat.ThreatType
		payload["signature"] = threat.SignatureName
		payload["confidence"] = threat.Confidence
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sentrix/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// LogChannel writes alert notifications to logs (for testing/debugging).
type LogChannel struct {
	logger func(format string, v ...interface{})
}

// NewLogChannel creates a log-based notification channel.
func NewLogChannel(logger func(format string, v ...interface{})) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Type() string {
	return "log"
}

func (l *LogChannel) Send(ctx context.Context, alert *models.Alert, threat *models.ThreatEvent) error {
	l.logger("CRITICAL ALERT: %s (id=%s, severity=%s)", alert.Title, alert.ID, alert.Severity)
	return nil
}

// MultiChannel sends notifications to multiple channels.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel creates a notification channel that fans out to multiple channels.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	return &MultiChannel{channels: channels}
}

func (m *MultiChannel) Type() string {
	return "multi"
}

func (m *MultiChannel) Send(ctx context.Context, alert *models.Alert, threat *models.ThreatEvent) error {
	var lastErr error
	successCount := 0

	for _, ch := range m.channels {
		if err := ch.Send(ctx, alert, threat); err != nil {
			lastErr = fmt.Errorf("%s channel failed: %w", ch.Type(), err)
		} else {
			successCount++
		}
	}

	if successCount == 0 && len(m.channels) > 0 {
		return fmt.Errorf("all notification channels failed: %w", lastErr)
	}

	return nil
}

// NoopChannel discards notifications. Used when no channel is configured.
type NoopChannel struct{}

func (NoopChannel) Type() string { return "noop" }

func (NoopChannel) Send(ctx context.Context, alert *models.Alert, threat *models.ThreatEvent) error {
	return nil
}
