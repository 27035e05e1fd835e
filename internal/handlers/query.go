package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
)

// QueryHandler serves read access to alerts, normalized events and threats.
type QueryHandler struct {
	repo   repository.Repository
	logger *logging.Logger
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(repo repository.Repository, logger *logging.Logger) *QueryHandler {
	return &QueryHandler{repo: repo, logger: logger}
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func boolParam(r *http.Request, name string) *bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// HandleAlerts is GET /api/v1/alerts.
func (h *QueryHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	req := models.ListAlertsRequest{
		UserID: q.Get("user_id"),
		Search: q.Get("search"),
		Read:   boolParam(r, "read"),
	}
	if sev := q.Get("severity"); sev != "" {
		req.Severity = models.ParseSeverity(sev)
	}
	req.Page, req.Limit = pageParams(r)

	alerts, total, err := h.repo.ListAlerts(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  total,
	})
}

// HandleAlertAction routes POST /api/v1/alerts/{id}/read and
// POST /api/v1/alerts/clear.
func (h *QueryHandler) HandleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")

	if rest == "clear" {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		cleared, err := h.repo.ClearAlerts(r.Context(), userID)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "clear alerts failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	alertID := parts[0]
	userID := r.URL.Query().Get("user_id")
	if err := h.repo.MarkAlertRead(r.Context(), alertID, userID); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "mark alert read failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

// HandleEvents is GET /api/v1/events/normalized.
func (h *QueryHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	req := models.ListEventsRequest{
		UserID:   q.Get("user_id"),
		SourceID: q.Get("source_id"),
		Search:   q.Get("search"),
		Flagged:  boolParam(r, "flagged"),
	}
	if sev := q.Get("severity"); sev != "" {
		req.Severity = models.ParseSeverity(sev)
	}
	req.Page, req.Limit = pageParams(r)

	events, total, err := h.repo.ListNormalizedEvents(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// HandleThreats is GET /api/v1/threats.
func (h *QueryHandler) HandleThreats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	req := models.ListThreatsRequest{
		UserID: q.Get("user_id"),
	}
	if sev := q.Get("severity"); sev != "" {
		req.Severity = models.ParseSeverity(sev)
	}
	req.Page, req.Limit = pageParams(r)

	threats, total, err := h.repo.ListThreats(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list threats failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threats": threats,
		"total":   total,
	})
}
