package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/dispatch"
	"github.com/sentrix-systems/sentrix/internal/dlq"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/normalizer"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/signatures"
)

// failingRepo wrecks normalized-event writes for selected raw events so
// tests can exercise per-event failure isolation.
type failingRepo struct {
	*repository.InMemoryRepository
	failRawIDs map[string]bool
}

func (r *failingRepo) CreateNormalizedEvent(ctx context.Context, ev *models.NormalizedEvent) error {
	if r.failRawIDs[ev.RawEventID] {
		return errors.New("storage unavailable")
	}
	return r.InMemoryRepository.CreateNormalizedEvent(ctx, ev)
}

type recordingDLQ struct {
	entries []string
}

func (d *recordingDLQ) Write(ctx context.Context, event *models.RawEvent, cause error) error {
	d.entries = append(d.entries, event.ID)
	return nil
}

func (d *recordingDLQ) Close() error { return nil }

func seedRawEvents(t *testing.T, repo repository.Repository, payloads ...map[string]any) []*models.RawEvent {
	t.Helper()
	events := make([]*models.RawEvent, 0, len(payloads))
	for i, p := range payloads {
		events = append(events, &models.RawEvent{
			ID:       "raw-" + string(rune('a'+i)),
			SourceID: "src-1",
			UserID:   "user-1",
			RawData:  p,
		})
	}
	require.NoError(t, repo.CreateRawEvents(context.Background(), events))
	return events
}

func newTestRunner(repo repository.Repository, deadLetter dlq.Writer, maxAttempts int) *Runner {
	sigs, _ := signatures.LoadDefault()
	engine := signatures.NewEngine(sigs)
	logger := logging.Default()
	dispatcher := dispatch.New(repo, nil, logger)
	return NewRunner(repo, normalizer.New(), nil, engine, dispatcher, deadLetter, logger,
		Config{BatchSize: 10, Workers: 2, MaxAttempts: maxAttempts})
}

func TestRunCycleProcessesBatch(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	seedRawEvents(t, repo,
		map[string]any{"event_type": "login", "message": "ok"},
		map[string]any{"event_type": "web_request", "url": "https://malicious-domain-example.com/x"},
	)

	runner := newTestRunner(repo, nil, 0)
	stats, err := runner.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Pulled)
	assert.Equal(t, 2, stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 1, stats.Threats)

	// Everything consumed.
	remaining, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The malicious event produced a threat and an alert.
	_, total, err := repo.ListThreats(context.Background(), models.ListThreatsRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, total, err = repo.ListAlerts(context.Background(), models.ListAlertsRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRunCycleEmptyQueue(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	runner := newTestRunner(repo, nil, 0)

	stats, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pulled)
}

func TestRunCycleIsolatesFailingEvent(t *testing.T) {
	mem := repository.NewInMemoryRepository()
	events := seedRawEvents(t, mem,
		map[string]any{"event_type": "good-1"},
		map[string]any{"event_type": "bad"},
		map[string]any{"event_type": "good-2"},
	)
	repo := &failingRepo{
		InMemoryRepository: mem,
		failRawIDs:         map[string]bool{events[1].ID: true},
	}

	runner := newTestRunner(repo, nil, 0)
	stats, err := runner.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Pulled)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)

	// Only the failing event stays queued for retry.
	remaining, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, events[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].FailureCount)
}

func TestRunCycleRetriesUntilDeadLetter(t *testing.T) {
	mem := repository.NewInMemoryRepository()
	events := seedRawEvents(t, mem, map[string]any{"event_type": "bad"})
	repo := &failingRepo{
		InMemoryRepository: mem,
		failRawIDs:         map[string]bool{events[0].ID: true},
	}

	deadLetter := &recordingDLQ{}
	runner := newTestRunner(repo, deadLetter, 2)

	// First attempt fails, event stays queued.
	stats, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.DeadLettered)

	// Second attempt reaches max_attempts: dead-lettered and retired.
	stats, err = runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.DeadLettered)
	assert.Equal(t, []string{events[0].ID}, deadLetter.entries)

	remaining, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunCycleWithoutDLQRetriesForever(t *testing.T) {
	mem := repository.NewInMemoryRepository()
	events := seedRawEvents(t, mem, map[string]any{"event_type": "bad"})
	repo := &failingRepo{
		InMemoryRepository: mem,
		failRawIDs:         map[string]bool{events[0].ID: true},
	}

	runner := newTestRunner(repo, nil, 0)
	for i := 0; i < 3; i++ {
		stats, err := runner.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)
		assert.Zero(t, stats.DeadLettered)
	}

	remaining, err := repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 3, remaining[0].FailureCount)
}

func TestRunCycleReprocessingIsIdempotent(t *testing.T) {
	// markFailingRepo fails MarkRawEventProcessed once, so the event is
	// fully handled but re-delivered on the next cycle.
	mem := repository.NewInMemoryRepository()
	seedRawEvents(t, mem, map[string]any{"url": "https://malicious-domain-example.com/x"})
	repo := &markFailingRepo{InMemoryRepository: mem, failures: 1}

	runner := newTestRunner(repo, nil, 0)

	stats, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	stats, err = runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	// The replay did not duplicate the threat or the alert.
	_, total, err := repo.ListThreats(context.Background(), models.ListThreatsRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, total, err = repo.ListAlerts(context.Background(), models.ListAlertsRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

type markFailingRepo struct {
	*repository.InMemoryRepository
	failures int
}

func (r *markFailingRepo) MarkRawEventProcessed(ctx context.Context, id string) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("storage glitch")
	}
	return r.InMemoryRepository.MarkRawEventProcessed(ctx, id)
}
