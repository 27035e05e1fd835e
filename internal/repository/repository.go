// Package repository defines persistence for sources, events, threats and
// alerts, with in-memory and PostgreSQL implementations.
package repository

import (
	"context"
	"errors"

	"github.com/sentrix-systems/sentrix/internal/models"
)

var (
	ErrSourceNotFound = errors.New("event source not found")
	ErrSourceExists   = errors.New("event source already exists")
	// ErrVersionConflict signals an optimistic concurrency failure on a
	// source update, e.g. two rotations racing. The loser must not win by
	// overwriting.
	ErrVersionConflict = errors.New("source version conflict")
	ErrEventNotFound   = errors.New("event not found")
	ErrThreatNotFound  = errors.New("threat event not found")
	ErrAlertNotFound   = errors.New("alert not found")
)

// Repository is the persistence contract for the pipeline core.
type Repository interface {
	// Event sources.
	CreateSource(ctx context.Context, src *models.EventSource) error
	GetSource(ctx context.Context, id string) (*models.EventSource, error)
	// GetSourceByKeyHash locates a source whose primary or secondary hash
	// equals the given digest. Callers re-verify with a constant-time
	// comparison and the grace-window rules.
	GetSourceByKeyHash(ctx context.Context, hash string) (*models.EventSource, error)
	// UpdateSourceKeys persists new key material. expectedVersion must match
	// the stored VersionID or ErrVersionConflict is returned.
	UpdateSourceKeys(ctx context.Context, src *models.EventSource, expectedVersion string) error
	SetSourceDisabled(ctx context.Context, id string, disabled bool) error
	ListSources(ctx context.Context, userID string) ([]*models.EventSource, error)

	// Raw events.
	CreateRawEvents(ctx context.Context, events []*models.RawEvent) error
	// PullUnprocessed returns up to limit raw events with processed=false,
	// oldest first.
	PullUnprocessed(ctx context.Context, limit int) ([]*models.RawEvent, error)
	MarkRawEventProcessed(ctx context.Context, id string) error
	// IncrementRawEventFailure bumps the failure counter and returns the new
	// count. The event stays unprocessed.
	IncrementRawEventFailure(ctx context.Context, id string) (int, error)

	// Normalized events.
	CreateNormalizedEvent(ctx context.Context, ev *models.NormalizedEvent) error
	GetNormalizedEvent(ctx context.Context, id string) (*models.NormalizedEvent, error)
	GetNormalizedEventByRawID(ctx context.Context, rawEventID string) (*models.NormalizedEvent, error)
	// FlagEventAsThreat sets flagged_as_threat=true and reports whether this
	// call performed the false->true transition.
	FlagEventAsThreat(ctx context.Context, id string) (bool, error)
	ListNormalizedEvents(ctx context.Context, req models.ListEventsRequest) ([]*models.NormalizedEvent, int, error)

	// Threat events.
	CreateThreatEvent(ctx context.Context, t *models.ThreatEvent) error
	GetThreatByEventID(ctx context.Context, normalizedEventID string) (*models.ThreatEvent, error)
	ListThreats(ctx context.Context, req models.ListThreatsRequest) ([]*models.ThreatEvent, int, error)

	// Alerts.
	CreateAlert(ctx context.Context, a *models.Alert) error
	MarkAlertRead(ctx context.Context, id, userID string) error
	ClearAlerts(ctx context.Context, userID string) (int, error)
	ListAlerts(ctx context.Context, req models.ListAlertsRequest) ([]*models.Alert, int, error)

	Close()
}
