package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sentrix-systems/sentrix/internal/models"
)

const (
	// StreamName is the JetStream stream holding dead-lettered events.
	StreamName = "SENTRIX_DLQ"

	dlqSubject = "sentrix.dlq.events"
)

// JetStreamWriter publishes dead-lettered events to NATS JetStream.
// Safe for use across multiple instances sharing one stream.
type JetStreamWriter struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewJetStreamWriter connects to NATS and ensures the DLQ stream exists.
func NewJetStreamWriter(ctx context.Context, url string) (*JetStreamWriter, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"sentrix.dlq.>"},
		MaxAge:    7 * 24 * time.Hour,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamWriter{conn: conn, js: js}, nil
}

func (w *JetStreamWriter) Write(ctx context.Context, event *models.RawEvent, cause error) error {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Error:     cause.Error(),
		Attempts:  event.FailureCount,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := w.js.Publish(ctx, dlqSubject, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	return nil
}

func (w *JetStreamWriter) Close() error {
	w.conn.Close()
	return nil
}
