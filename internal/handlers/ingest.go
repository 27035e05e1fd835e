package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/metrics"
	"github.com/sentrix-systems/sentrix/internal/ratelimit"
	"github.com/sentrix-systems/sentrix/internal/service"
)

const maxBodyBytes = 4 << 20 // 4MB

// IngestHandler accepts authenticated telemetry batches.
type IngestHandler struct {
	sources *service.SourceService
	ingest  *service.IngestService
	limiter ratelimit.RateLimiter
	logger  *logging.Logger
}

// NewIngestHandler creates the ingestion endpoint handler.
func NewIngestHandler(sources *service.SourceService, ingest *service.IngestService,
	limiter ratelimit.RateLimiter, logger *logging.Logger) *IngestHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &IngestHandler{
		sources: sources,
		ingest:  ingest,
		limiter: limiter,
		logger:  logger,
	}
}

// HandleIngest is POST /api/v1/events. The body may be a single JSON object,
// a JSON array of objects, or {"events": [...]}.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	key := extractAPIKey(r)
	if key == "" {
		metrics.IngestRejected.WithLabelValues("missing_key").Inc()
		writeError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	src, err := h.sources.Authenticate(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKey):
			metrics.IngestRejected.WithLabelValues("invalid_key").Inc()
			writeError(w, http.StatusUnauthorized, "invalid api key")
		case errors.Is(err, service.ErrSourceDisabled):
			metrics.IngestRejected.WithLabelValues("source_disabled").Inc()
			writeError(w, http.StatusForbidden, "event source disabled")
		default:
			h.logger.ErrorContext(r.Context(), "authentication failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), src.ID)
	if err != nil {
		// A broken limiter must not block ingestion.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
			logging.SourceID(src.ID), logging.Error(err))
	} else if !allowed {
		metrics.IngestRejected.WithLabelValues("rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	payloads, err := parsePayloads(body)
	if err != nil {
		metrics.IngestRejected.WithLabelValues("malformed_body").Inc()
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	accepted, err := h.ingest.Accept(r.Context(), src, payloads)
	if err != nil {
		if errors.Is(err, service.ErrPayloadTooLarge) {
			metrics.IngestRejected.WithLabelValues("batch_too_large").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "event persistence failed",
			logging.SourceID(src.ID), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}

	metrics.EventsIngested.WithLabelValues(src.SourceType).Add(float64(accepted))
	h.logger.DebugContext(r.Context(), "events accepted",
		logging.SourceID(src.ID), "count", accepted, "client_ip", getClientIP(r))

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

// parsePayloads accepts a single object, an array, or an envelope with an
// "events" array.
func parsePayloads(body []byte) ([]map[string]any, error) {
	var single map[string]any
	if err := json.Unmarshal(body, &single); err == nil {
		if raw, ok := single["events"]; ok {
			if arr, ok := raw.([]any); ok {
				payloads := make([]map[string]any, 0, len(arr))
				for _, item := range arr {
					obj, ok := item.(map[string]any)
					if !ok {
						return nil, errors.New("events array must contain objects")
					}
					payloads = append(payloads, obj)
				}
				return payloads, nil
			}
			return nil, errors.New("events field must be an array")
		}
		return []map[string]any{single}, nil
	}

	var batch []map[string]any
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}
