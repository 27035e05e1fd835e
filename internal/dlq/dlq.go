// Package dlq provides dead letter sinks for raw events that exhausted
// their processing attempts.
package dlq

import (
	"context"
	"time"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// Writer records a permanently failed raw event.
type Writer interface {
	Write(ctx context.Context, event *models.RawEvent, cause error) error
	Close() error
}

// Entry is the serialized form of a dead-lettered event.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	Event     *models.RawEvent `json:"event"`
	Error     string           `json:"error"`
	Attempts  int              `json:"attempts"`
}

// NoopWriter discards entries. Used when the DLQ is disabled.
type NoopWriter struct{}

func (NoopWriter) Write(ctx context.Context, event *models.RawEvent, cause error) error {
	return nil
}

func (NoopWriter) Close() error { return nil }
