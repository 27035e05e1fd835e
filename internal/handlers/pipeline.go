package handlers

import (
	"net/http"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/pipeline"
)

// PipelineHandler exposes manual pipeline control and health probes.
type PipelineHandler struct {
	runner *pipeline.Runner
	logger *logging.Logger
}

// NewPipelineHandler creates the pipeline control handler.
func NewPipelineHandler(runner *pipeline.Runner, logger *logging.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// HandleRun is POST /api/v1/pipeline/run. It triggers one processing cycle
// synchronously and returns its stats. Useful for operators and tests; the
// scheduler covers normal operation.
func (h *PipelineHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.runner.RunCycle(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual cycle failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health is GET /health.
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready is GET /ready.
func (h *PipelineHandler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
