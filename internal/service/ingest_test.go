package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
)

func testSource() *models.EventSource {
	return &models.EventSource{ID: "src-1", UserID: "user-1"}
}

func TestAcceptPersistsRawEvents(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	svc := NewIngestService(repo, 0)

	payloads := []map[string]any{
		{"event_type": "login"},
		{"event_type": "dns_query"},
	}

	count, err := svc.Accept(context.Background(), testSource(), payloads)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pulled, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	assert.Equal(t, "src-1", pulled[0].SourceID)
	assert.Equal(t, "user-1", pulled[0].UserID)
	assert.False(t, pulled[0].Processed)
	assert.Equal(t, "login", pulled[0].RawData["event_type"])
}

func TestAcceptEmptyBatch(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	svc := NewIngestService(repo, 0)

	count, err := svc.Accept(context.Background(), testSource(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAcceptRejectsOversizedBatch(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	svc := NewIngestService(repo, 3)

	payloads := make([]map[string]any, 4)
	for i := range payloads {
		payloads[i] = map[string]any{"n": i}
	}

	_, err := svc.Accept(context.Background(), testSource(), payloads)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	// Nothing from the rejected batch was persisted.
	pulled, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pulled)
}

func TestAcceptBatchAtCap(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	svc := NewIngestService(repo, 3)

	payloads := make([]map[string]any, 3)
	for i := range payloads {
		payloads[i] = map[string]any{"n": i}
	}

	count, err := svc.Accept(context.Background(), testSource(), payloads)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDefaultMaxBatchSize(t *testing.T) {
	svc := NewIngestService(repository.NewInMemoryRepository(), 0)
	assert.Equal(t, DefaultMaxBatchSize, svc.MaxBatchSize())
}
