package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/metrics"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/service"
)

// SourceHandler manages event source registration and key lifecycle.
type SourceHandler struct {
	sources      *service.SourceService
	defaultGrace time.Duration
	logger       *logging.Logger
}

// NewSourceHandler creates the source management handler.
func NewSourceHandler(sources *service.SourceService, defaultGrace time.Duration, logger *logging.Logger) *SourceHandler {
	if defaultGrace <= 0 {
		defaultGrace = 24 * time.Hour
	}
	return &SourceHandler{
		sources:      sources,
		defaultGrace: defaultGrace,
		logger:       logger,
	}
}

// HandleSources is POST (register) and GET (list) on /api/v1/sources.
func (h *SourceHandler) HandleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.register(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *SourceHandler) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.sources.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrSourceExists) {
			writeError(w, http.StatusConflict, "source already exists")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "event source registered",
		logging.SourceID(result.Source.ID), logging.UserID(result.Source.UserID))

	// The plaintext key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"source":  result.Source,
		"api_key": result.APIKey,
	})
}

func (h *SourceHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sources, err := h.sources.List(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list sources failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// HandleSourceAction routes /api/v1/sources/{id}/{action} where action is
// rotate, expire-rotation, disable or enable.
func (h *SourceHandler) HandleSourceAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sources/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sourceID, action := parts[0], parts[1]

	switch action {
	case "rotate":
		h.rotate(w, r, sourceID)
	case "expire-rotation":
		h.expireRotation(w, r, sourceID)
	case "disable":
		h.setDisabled(w, r, sourceID, true)
	case "enable":
		h.setDisabled(w, r, sourceID, false)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (h *SourceHandler) rotate(w http.ResponseWriter, r *http.Request, sourceID string) {
	grace := h.defaultGrace
	if r.Body != nil {
		var req models.RotateKeyRequest
		// An empty body keeps the default grace window.
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.GraceSeconds > 0 {
			grace = time.Duration(req.GraceSeconds) * time.Second
		}
	}

	result, err := h.sources.Rotate(r.Context(), sourceID, grace)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "source not found")
		case errors.Is(err, service.ErrRotationConflict):
			writeError(w, http.StatusConflict, "concurrent rotation, retry")
		default:
			h.logger.ErrorContext(r.Context(), "key rotation failed",
				logging.SourceID(sourceID), logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	metrics.KeyRotations.Inc()
	h.logger.InfoContext(r.Context(), "api key rotated",
		logging.SourceID(sourceID), "grace_expires_at", result.ExpiresAt)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_key":             result.APIKey,
		"rotation_expires_at": result.ExpiresAt,
	})
}

func (h *SourceHandler) expireRotation(w http.ResponseWriter, r *http.Request, sourceID string) {
	err := h.sources.ExpireRotation(r.Context(), sourceID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSourceNotFound):
			writeError(w, http.StatusNotFound, "source not found")
		case errors.Is(err, service.ErrNoRotation):
			writeError(w, http.StatusConflict, "no active rotation")
		case errors.Is(err, service.ErrRotationConflict):
			writeError(w, http.StatusConflict, "concurrent rotation, retry")
		default:
			h.logger.ErrorContext(r.Context(), "expire rotation failed",
				logging.SourceID(sourceID), logging.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rotation expired"})
}

func (h *SourceHandler) setDisabled(w http.ResponseWriter, r *http.Request, sourceID string, disabled bool) {
	var err error
	if disabled {
		err = h.sources.Disable(r.Context(), sourceID)
	} else {
		err = h.sources.Enable(r.Context(), sourceID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "source state change failed",
			logging.SourceID(sourceID), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": disabled})
}
