// Package pipeline pulls unprocessed raw events and drives each one through
// normalization, enrichment, signature matching and dispatch.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/dispatch"
	"github.com/sentrix-systems/sentrix/internal/dlq"
	"github.com/sentrix-systems/sentrix/internal/enrichment"
	"github.com/sentrix-systems/sentrix/internal/metrics"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/normalizer"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/signatures"
)

// Config tunes a Runner.
type Config struct {
	// BatchSize is the maximum events pulled per cycle.
	BatchSize int

	// Workers bounds concurrent event processing within a cycle.
	Workers int

	// MaxAttempts is the failure count at which an event is dead-lettered
	// and marked processed. Zero means retry forever.
	MaxAttempts int
}

// Runner executes processing cycles. At-least-once: an event is marked
// processed only after every stage for it succeeded, so a crash mid-cycle
// re-delivers the remainder on the next cycle.
type Runner struct {
	repo       repository.Repository
	normalizer *normalizer.Normalizer
	geo        enrichment.Provider
	engine     *signatures.Engine
	dispatcher *dispatch.Dispatcher
	deadLetter dlq.Writer
	logger     *logging.Logger
	cfg        Config

	// runMu serializes cycles. Overlapping cycles would pull the same
	// unprocessed rows and double-process them.
	runMu sync.Mutex
}

// NewRunner creates a Runner with defaults applied to zero-valued config.
func NewRunner(
	repo repository.Repository,
	norm *normalizer.Normalizer,
	geo enrichment.Provider,
	engine *signatures.Engine,
	dispatcher *dispatch.Dispatcher,
	deadLetter dlq.Writer,
	logger *logging.Logger,
	cfg Config,
) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if geo == nil {
		geo = enrichment.NoopProvider{}
	}
	if deadLetter == nil {
		deadLetter = dlq.NoopWriter{}
	}
	return &Runner{
		repo:       repo,
		normalizer: norm,
		geo:        geo,
		engine:     engine,
		dispatcher: dispatcher,
		deadLetter: deadLetter,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunCycle pulls one batch and processes it. Per-event failures are isolated:
// a failing event stays unprocessed (with its failure count bumped) while the
// rest of the batch completes.
func (r *Runner) RunCycle(ctx context.Context) (models.CycleStats, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	metrics.PipelineCycles.Inc()

	events, err := r.repo.PullUnprocessed(ctx, r.cfg.BatchSize)
	if err != nil {
		return models.CycleStats{}, fmt.Errorf("pull unprocessed events: %w", err)
	}

	stats := models.CycleStats{Pulled: len(events)}
	if len(events) == 0 {
		return stats, nil
	}

	var processed, failed, threats, deadLettered atomic.Int64

	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ev *models.RawEvent) {
			defer wg.Done()
			defer func() { <-sem }()

			matched, err := r.processOne(ctx, ev)
			if err != nil {
				failed.Add(1)
				metrics.EventsFailed.Inc()
				if r.handleFailure(ctx, ev, err) {
					deadLettered.Add(1)
					metrics.EventsDeadLettered.Inc()
				}
				return
			}
			processed.Add(1)
			metrics.EventsProcessed.Inc()
			if matched {
				threats.Add(1)
			}
		}(ev)
	}
	wg.Wait()

	stats.Processed = int(processed.Load())
	stats.Failed = int(failed.Load())
	stats.Threats = int(threats.Load())
	stats.DeadLettered = int(deadLettered.Load())

	r.logger.InfoContext(ctx, "processing cycle complete",
		"pulled", stats.Pulled,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"threats", stats.Threats,
		"dead_lettered", stats.DeadLettered)

	return stats, nil
}

// processOne runs every stage for a single event and marks it processed on
// success. Returns whether a signature matched. Panics in any stage are
// converted to errors so one bad payload cannot take down the cycle.
func (r *Runner) processOne(ctx context.Context, raw *models.RawEvent) (matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing event %s: %v", raw.ID, rec)
		}
	}()

	start := time.Now()
	ev, err := r.normalizer.Normalize(raw)
	if err != nil {
		return false, fmt.Errorf("normalize: %w", err)
	}
	metrics.NormalizationDuration.Observe(time.Since(start).Seconds())

	r.enrich(ctx, ev)

	if err := r.repo.CreateNormalizedEvent(ctx, ev); err != nil {
		return false, fmt.Errorf("store normalized event: %w", err)
	}

	sig := r.engine.Match(ev)
	if sig != nil {
		if _, err := r.dispatcher.Dispatch(ctx, ev, sig); err != nil {
			return false, fmt.Errorf("dispatch threat: %w", err)
		}
	}

	if err := r.repo.MarkRawEventProcessed(ctx, raw.ID); err != nil {
		return sig != nil, fmt.Errorf("mark processed: %w", err)
	}
	return sig != nil, nil
}

// enrich attaches geolocation for the source IP, falling back to the
// destination IP. Failures leave the event without geo fields.
func (r *Runner) enrich(ctx context.Context, ev *models.NormalizedEvent) {
	ip := ev.SourceIP
	if ip == "" {
		ip = ev.DestinationIP
	}
	if ip == "" {
		return
	}

	geo := r.geo.Resolve(ctx, ip)
	if geo == nil {
		metrics.EnrichmentFailures.Inc()
		return
	}
	ev.GeoCountry = geo.Country
	ev.GeoCity = geo.City
	lat, lon := geo.Lat, geo.Lon
	ev.GeoLat = &lat
	ev.GeoLon = &lon
}

// handleFailure bumps the failure count and, once MaxAttempts is reached,
// routes the event to the dead letter sink and marks it processed so it
// stops blocking the queue. Returns whether the event was dead-lettered.
func (r *Runner) handleFailure(ctx context.Context, raw *models.RawEvent, cause error) bool {
	count, err := r.repo.IncrementRawEventFailure(ctx, raw.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to record event failure",
			logging.EventID(raw.ID), logging.Error(err))
		return false
	}
	raw.FailureCount = count

	r.logger.WarnContext(ctx, "event processing failed",
		logging.EventID(raw.ID), "attempt", count, logging.Error(cause))

	if r.cfg.MaxAttempts <= 0 || count < r.cfg.MaxAttempts {
		return false
	}

	if err := r.deadLetter.Write(ctx, raw, cause); err != nil {
		// Keep the event in the queue rather than lose it.
		r.logger.ErrorContext(ctx, "dead letter write failed",
			logging.EventID(raw.ID), logging.Error(err))
		return false
	}
	if err := r.repo.MarkRawEventProcessed(ctx, raw.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to retire dead-lettered event",
			logging.EventID(raw.ID), logging.Error(err))
	}
	return true
}
