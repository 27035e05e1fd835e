package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrix-systems/sentrix/internal/models"
)

func newSource(id, userID string) *models.EventSource {
	return &models.EventSource{
		ID:             id,
		UserID:         userID,
		Name:           "source-" + id,
		SourceType:     "generic",
		PrimaryKeyHash: "hash-" + id,
		VersionID:      "v1",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestSourceCRUD(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	src := newSource("s1", "u1")
	require.NoError(t, repo.CreateSource(ctx, src))
	assert.ErrorIs(t, repo.CreateSource(ctx, src), ErrSourceExists)

	got, err := repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "source-s1", got.Name)

	_, err = repo.GetSource(ctx, "missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	byHash, err := repo.GetSourceByKeyHash(ctx, "hash-s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", byHash.ID)
}

func TestGetSourceByKeyHashMatchesSecondary(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	secondary := "old-hash"
	src := newSource("s1", "u1")
	src.SecondaryKeyHash = &secondary
	require.NoError(t, repo.CreateSource(ctx, src))

	got, err := repo.GetSourceByKeyHash(ctx, "old-hash")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestUpdateSourceKeysVersionCheck(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	src := newSource("s1", "u1")
	require.NoError(t, repo.CreateSource(ctx, src))

	src.PrimaryKeyHash = "new-hash"
	src.VersionID = "v2"
	require.NoError(t, repo.UpdateSourceKeys(ctx, src, "v1"))

	// Stale expected version loses.
	src.PrimaryKeyHash = "raced-hash"
	src.VersionID = "v3"
	assert.ErrorIs(t, repo.UpdateSourceKeys(ctx, src, "v1"), ErrVersionConflict)

	got, err := repo.GetSource(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PrimaryKeyHash)
}

func TestPullUnprocessedFIFOAndLimit(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	events := []*models.RawEvent{
		{ID: "r1", SourceID: "s1"},
		{ID: "r2", SourceID: "s1"},
		{ID: "r3", SourceID: "s1"},
	}
	require.NoError(t, repo.CreateRawEvents(ctx, events))

	pulled, err := repo.PullUnprocessed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	assert.Equal(t, "r1", pulled[0].ID)
	assert.Equal(t, "r2", pulled[1].ID)

	require.NoError(t, repo.MarkRawEventProcessed(ctx, "r1"))
	pulled, err = repo.PullUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pulled, 2)
	assert.Equal(t, "r2", pulled[0].ID)
}

func TestIncrementRawEventFailure(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateRawEvents(ctx, []*models.RawEvent{{ID: "r1"}}))

	n, err := repo.IncrementRawEventFailure(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.IncrementRawEventFailure(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.IncrementRawEventFailure(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateNormalizedEventDeduplicatesByRawID(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := &models.NormalizedEvent{ID: "n1", RawEventID: "r1", UserID: "u1"}
	require.NoError(t, repo.CreateNormalizedEvent(ctx, first))

	// A retry with a fresh ID converges on the stored row.
	retry := &models.NormalizedEvent{ID: "n2", RawEventID: "r1", UserID: "u1"}
	require.NoError(t, repo.CreateNormalizedEvent(ctx, retry))
	assert.Equal(t, "n1", retry.ID)

	_, total, err := repo.ListNormalizedEvents(ctx, models.ListEventsRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestFlagEventAsThreatFlipsOnce(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateNormalizedEvent(ctx, &models.NormalizedEvent{ID: "n1", RawEventID: "r1"}))

	flipped, err := repo.FlagEventAsThreat(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.FlagEventAsThreat(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, flipped)

	_, err = repo.FlagEventAsThreat(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateThreatEventDeduplicatesByEventID(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := &models.ThreatEvent{ID: "t1", NormalizedEventID: "n1", UserID: "u1"}
	require.NoError(t, repo.CreateThreatEvent(ctx, first))

	retry := &models.ThreatEvent{ID: "t2", NormalizedEventID: "n1", UserID: "u1"}
	require.NoError(t, repo.CreateThreatEvent(ctx, retry))
	assert.Equal(t, "t1", retry.ID)

	got, err := repo.GetThreatByEventID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestAlertLifecycle(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateAlert(ctx, &models.Alert{ID: "a1", UserID: "u1", Title: "Threat detected", Severity: models.SeverityHigh}))
	require.NoError(t, repo.CreateAlert(ctx, &models.Alert{ID: "a2", UserID: "u1", Title: "Another", Severity: models.SeverityLow}))
	require.NoError(t, repo.CreateAlert(ctx, &models.Alert{ID: "a3", UserID: "u2", Title: "Other user", Severity: models.SeverityLow}))

	_, total, err := repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.NoError(t, repo.MarkAlertRead(ctx, "a1", "u1"))
	assert.ErrorIs(t, repo.MarkAlertRead(ctx, "a1", "u2"), ErrAlertNotFound)
	assert.ErrorIs(t, repo.MarkAlertRead(ctx, "missing", "u1"), ErrAlertNotFound)

	unread := false
	read := true
	_, total, err = repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Read: &read})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, total, err = repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Read: &unread})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	cleared, err := repo.ClearAlerts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	// The other user's alerts survive.
	_, total, err = repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListAlertsSearchAndSeverity(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateAlert(ctx, &models.Alert{ID: "a1", UserID: "u1", Title: "Threat detected: Known Malware Domain", Severity: models.SeverityCritical}))
	require.NoError(t, repo.CreateAlert(ctx, &models.Alert{ID: "a2", UserID: "u1", Title: "Port scan", Severity: models.SeverityMedium}))

	alerts, total, err := repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Search: "malware"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)

	_, total, err = repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Severity: models.SeverityMedium})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestPaginate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateAlert(ctx, &models.Alert{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	alerts, total, err := repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, alerts, 2)

	// Page past the end is empty, not an error.
	alerts, _, err = repo.ListAlerts(ctx, models.ListAlertsRequest{UserID: "u1", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
