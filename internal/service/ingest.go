package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
)

// DefaultMaxBatchSize caps the number of payloads accepted per request.
const DefaultMaxBatchSize = 100

// ErrPayloadTooLarge is returned when a single request exceeds the batch
// cap. Nothing from the request is persisted.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum batch size")

// IngestService is the raw event sink: it persists accepted payloads as
// unprocessed raw events before any normalization runs, so downstream
// failures delay processing instead of losing data.
type IngestService struct {
	repo         repository.Repository
	maxBatchSize int
	now          func() time.Time
}

// NewIngestService creates the sink. maxBatchSize <= 0 selects the default.
func NewIngestService(repo repository.Repository, maxBatchSize int) *IngestService {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &IngestService{
		repo:         repo,
		maxBatchSize: maxBatchSize,
		now:          time.Now,
	}
}

// Accept persists the payloads for an authenticated source and returns the
// number of raw events created.
func (s *IngestService) Accept(ctx context.Context, src *models.EventSource, payloads []map[string]any) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	if len(payloads) > s.maxBatchSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payloads), s.maxBatchSize)
	}

	receivedAt := s.now().UTC()
	events := make([]*models.RawEvent, 0, len(payloads))
	for _, payload := range payloads {
		id, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("generate event id: %w", err)
		}
		events = append(events, &models.RawEvent{
			ID:         id.String(),
			SourceID:   src.ID,
			UserID:     src.UserID,
			RawData:    payload,
			ReceivedAt: receivedAt,
		})
	}

	if err := s.repo.CreateRawEvents(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// MaxBatchSize exposes the configured cap for boundary error messages.
func (s *IngestService) MaxBatchSize() int {
	return s.maxBatchSize
}
