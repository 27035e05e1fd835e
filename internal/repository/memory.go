package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sentrix-systems/sentrix/internal/keys"
	"github.com/sentrix-systems/sentrix/internal/models"
)

// InMemoryRepository is a thread-safe map-backed Repository used for
// development and tests.
type InMemoryRepository struct {
	mu sync.RWMutex

	sources     map[string]*models.EventSource
	rawEvents   map[string]*models.RawEvent
	rawOrder    []string
	events      map[string]*models.NormalizedEvent
	eventsByRaw map[string]*models.NormalizedEvent
	threats     map[string]*models.ThreatEvent
	threatsByEv map[string]*models.ThreatEvent
	alerts      map[string]*models.Alert
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sources:     make(map[string]*models.EventSource),
		rawEvents:   make(map[string]*models.RawEvent),
		events:      make(map[string]*models.NormalizedEvent),
		eventsByRaw: make(map[string]*models.NormalizedEvent),
		threats:     make(map[string]*models.ThreatEvent),
		threatsByEv: make(map[string]*models.ThreatEvent),
		alerts:      make(map[string]*models.Alert),
	}
}

func (r *InMemoryRepository) CreateSource(ctx context.Context, src *models.EventSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[src.ID]; exists {
		return ErrSourceExists
	}
	cp := *src
	r.sources[src.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetSource(ctx context.Context, id string) (*models.EventSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, exists := r.sources[id]
	if !exists {
		return nil, ErrSourceNotFound
	}
	cp := *src
	return &cp, nil
}

func (r *InMemoryRepository) GetSourceByKeyHash(ctx context.Context, hash string) (*models.EventSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, src := range r.sources {
		if keys.Equal(hash, src.PrimaryKeyHash) {
			cp := *src
			return &cp, nil
		}
		if src.SecondaryKeyHash != nil && keys.Equal(hash, *src.SecondaryKeyHash) {
			cp := *src
			return &cp, nil
		}
	}
	return nil, ErrSourceNotFound
}

func (r *InMemoryRepository) UpdateSourceKeys(ctx context.Context, src *models.EventSource, expectedVersion string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sources[src.ID]
	if !exists {
		return ErrSourceNotFound
	}
	if stored.VersionID != expectedVersion {
		return ErrVersionConflict
	}
	cp := *src
	r.sources[src.ID] = &cp
	return nil
}

func (r *InMemoryRepository) SetSourceDisabled(ctx context.Context, id string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, exists := r.sources[id]
	if !exists {
		return ErrSourceNotFound
	}
	src.Disabled = disabled
	return nil
}

func (r *InMemoryRepository) ListSources(ctx context.Context, userID string) ([]*models.EventSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.EventSource{}
	for _, src := range r.sources {
		if userID != "" && src.UserID != userID {
			continue
		}
		cp := *src
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) CreateRawEvents(ctx context.Context, events []*models.RawEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		cp := *ev
		r.rawEvents[ev.ID] = &cp
		r.rawOrder = append(r.rawOrder, ev.ID)
	}
	return nil
}

func (r *InMemoryRepository) PullUnprocessed(ctx context.Context, limit int) ([]*models.RawEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.RawEvent{}
	for _, id := range r.rawOrder {
		if len(out) >= limit {
			break
		}
		ev := r.rawEvents[id]
		if ev.Processed {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) MarkRawEventProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, exists := r.rawEvents[id]
	if !exists {
		return ErrEventNotFound
	}
	ev.Processed = true
	return nil
}

func (r *InMemoryRepository) IncrementRawEventFailure(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, exists := r.rawEvents[id]
	if !exists {
		return 0, ErrEventNotFound
	}
	ev.FailureCount++
	return ev.FailureCount, nil
}

func (r *InMemoryRepository) CreateNormalizedEvent(ctx context.Context, ev *models.NormalizedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One normalized event per raw event; a retry after a partial failure
	// reuses the existing row instead of duplicating it.
	if existing, ok := r.eventsByRaw[ev.RawEventID]; ok {
		*ev = *existing
		return nil
	}
	cp := *ev
	r.events[ev.ID] = &cp
	r.eventsByRaw[ev.RawEventID] = &cp
	return nil
}

func (r *InMemoryRepository) GetNormalizedEvent(ctx context.Context, id string) (*models.NormalizedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, exists := r.events[id]
	if !exists {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *InMemoryRepository) GetNormalizedEventByRawID(ctx context.Context, rawEventID string) (*models.NormalizedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, exists := r.eventsByRaw[rawEventID]
	if !exists {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *InMemoryRepository) FlagEventAsThreat(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, exists := r.events[id]
	if !exists {
		return false, ErrEventNotFound
	}
	if ev.FlaggedAsThreat {
		return false, nil
	}
	ev.FlaggedAsThreat = true
	return true, nil
}

func (r *InMemoryRepository) ListNormalizedEvents(ctx context.Context, req models.ListEventsRequest) ([]*models.NormalizedEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req = req.Defaults()
	matched := []*models.NormalizedEvent{}
	for _, ev := range r.events {
		if req.UserID != "" && ev.UserID != req.UserID {
			continue
		}
		if req.SourceID != "" && ev.SourceID != req.SourceID {
			continue
		}
		if req.Severity != "" && ev.Severity != req.Severity {
			continue
		}
		if req.Flagged != nil && ev.FlaggedAsThreat != *req.Flagged {
			continue
		}
		if req.Search != "" && !containsFold(ev.Message, req.Search) && !containsFold(ev.SourceURL, req.Search) {
			continue
		}
		cp := *ev
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	total := len(matched)
	return paginate(matched, req.Page, req.Limit), total, nil
}

func (r *InMemoryRepository) CreateThreatEvent(ctx context.Context, t *models.ThreatEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.threatsByEv[t.NormalizedEventID]; ok {
		*t = *existing
		return nil
	}
	cp := *t
	r.threats[t.ID] = &cp
	r.threatsByEv[t.NormalizedEventID] = &cp
	return nil
}

func (r *InMemoryRepository) GetThreatByEventID(ctx context.Context, normalizedEventID string) (*models.ThreatEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.threatsByEv[normalizedEventID]
	if !exists {
		return nil, ErrThreatNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryRepository) ListThreats(ctx context.Context, req models.ListThreatsRequest) ([]*models.ThreatEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req = req.Defaults()
	matched := []*models.ThreatEvent{}
	for _, t := range r.threats {
		if req.UserID != "" && t.UserID != req.UserID {
			continue
		}
		if req.Severity != "" && t.Severity != req.Severity {
			continue
		}
		cp := *t
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	return paginate(matched, req.Page, req.Limit), total, nil
}

func (r *InMemoryRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *a
	r.alerts[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) MarkAlertRead(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.alerts[id]
	if !exists || (userID != "" && a.UserID != userID) {
		return ErrAlertNotFound
	}
	a.Read = true
	return nil
}

func (r *InMemoryRepository) ClearAlerts(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, a := range r.alerts {
		if userID == "" || a.UserID == userID {
			delete(r.alerts, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) ListAlerts(ctx context.Context, req models.ListAlertsRequest) ([]*models.Alert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req = req.Defaults()
	matched := []*models.Alert{}
	for _, a := range r.alerts {
		if req.UserID != "" && a.UserID != req.UserID {
			continue
		}
		if req.Severity != "" && a.Severity != req.Severity {
			continue
		}
		if req.Read != nil && a.Read != *req.Read {
			continue
		}
		if req.Search != "" && !containsFold(a.Title, req.Search) && !containsFold(a.Message, req.Search) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	total := len(matched)
	return paginate(matched, req.Page, req.Limit), total, nil
}

func (r *InMemoryRepository) Close() {}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
