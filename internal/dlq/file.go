package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// FileWriter appends dead-lettered events to a local JSON-lines file.
// Suitable for single-instance deployments without a message broker.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter opens (or creates) the DLQ file in append mode.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dlq file: %w", err)
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

func (w *FileWriter) Write(ctx context.Context, event *models.RawEvent, cause error) error {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Error:     cause.Error(),
		Attempts:  event.FailureCount,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	return nil
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
