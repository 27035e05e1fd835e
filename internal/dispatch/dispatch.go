// Package dispatch turns a signature match into the persisted threat record
// and its user-facing alert. Dispatch is idempotent per normalized event:
// replays after a partial failure converge on one threat and one alert.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/metrics"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/notification"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/signatures"
)

// Dispatcher persists threats and alerts for matched events.
type Dispatcher struct {
	repo     repository.Repository
	notifier notification.Channel
	logger   *logging.Logger
	now      func() time.Time
}

// New creates a Dispatcher. A nil notifier disables notifications.
func New(repo repository.Repository, notifier notification.Channel, logger *logging.Logger) *Dispatcher {
	if notifier == nil {
		notifier = notification.NoopChannel{}
	}
	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch flags the event, records the threat and creates the alert.
//
// The flag flip is the idempotency gate: only the caller that actually flips
// flagged_as_threat creates the alert, so retries and concurrent duplicates
// produce exactly one alert. A retry that finds the event already flagged
// but the threat missing (a crash between the two writes) still completes
// the threat record.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *models.NormalizedEvent, sig *signatures.Signature) (*models.ThreatEvent, error) {
	flipped, err := d.repo.FlagEventAsThreat(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("flag event as threat: %w", err)
	}
	ev.FlaggedAsThreat = true

	if !flipped {
		existing, err := d.repo.GetThreatByEventID(ctx, ev.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrThreatNotFound) {
			return nil, fmt.Errorf("check existing threat: %w", err)
		}
		// Flagged but no threat recorded: an earlier attempt died between
		// writes. Fall through and finish the job, without a second alert.
		threat, err := d.createThreat(ctx, ev, sig)
		if err != nil {
			return nil, err
		}
		return threat, nil
	}

	threat, err := d.createThreat(ctx, ev, sig)
	if err != nil {
		return nil, err
	}

	alert, err := d.createAlert(ctx, ev, threat, sig)
	if err != nil {
		return nil, err
	}

	if threat.Severity == models.SeverityCritical {
		if err := d.notifier.Send(ctx, alert, threat); err != nil {
			// Notification is best effort. The alert is already persisted.
			metrics.NotificationFailures.Inc()
			d.logger.WarnContext(ctx, "critical alert notification failed",
				logging.Error(err), logging.UserID(ev.UserID))
		}
	}

	metrics.ThreatsDetected.WithLabelValues(string(threat.Severity), threat.ThreatType).Inc()
	return threat, nil
}

func (d *Dispatcher) createThreat(ctx context.Context, ev *models.NormalizedEvent, sig *signatures.Signature) (*models.ThreatEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate threat id: %w", err)
	}

	threat := &models.ThreatEvent{
		ID:                id.String(),
		NormalizedEventID: ev.ID,
		UserID:            ev.UserID,
		ThreatType:        sig.Type,
		SignatureName:     sig.Name,
		Severity:          sig.Severity,
		Confidence:        sig.Confidence,
		CreatedAt:         d.now().UTC(),
	}
	if err := d.repo.CreateThreatEvent(ctx, threat); err != nil {
		return nil, fmt.Errorf("create threat event: %w", err)
	}
	return threat, nil
}

func (d *Dispatcher) createAlert(ctx context.Context, ev *models.NormalizedEvent, threat *models.ThreatEvent, sig *signatures.Signature) (*models.Alert, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate alert id: %w", err)
	}

	alert := &models.Alert{
		ID:       id.String(),
		UserID:   ev.UserID,
		Title:    fmt.Sprintf("Threat detected: %s", sig.Name),
		Message:  fmt.Sprintf("%s signature matched event %q with %d%% confidence", sig.Type, ev.EventType, sig.Confidence),
		Severity: threat.Severity,
		ThreatID: &threat.ID,

		Timestamp: d.now().UTC(),
	}
	if err := d.repo.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return alert, nil
}
