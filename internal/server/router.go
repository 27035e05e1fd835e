package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentrix-systems/sentrix/common/middleware"
	"github.com/sentrix-systems/sentrix/internal/handlers"
)

// NewRouter constructs a ServeMux with all API routes registered.
func NewRouter(ingest *handlers.IngestHandler, sources *handlers.SourceHandler,
	query *handlers.QueryHandler, pipe *handlers.PipelineHandler) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("/api/v1/events", ingest.HandleIngest)

	// Source management
	mux.HandleFunc("/api/v1/sources", sources.HandleSources)
	mux.HandleFunc("/api/v1/sources/", sources.HandleSourceAction)

	// Queries
	mux.HandleFunc("/api/v1/events/normalized", query.HandleEvents)
	mux.HandleFunc("/api/v1/threats", query.HandleThreats)
	mux.HandleFunc("/api/v1/alerts", query.HandleAlerts)
	mux.HandleFunc("/api/v1/alerts/", query.HandleAlertAction)

	// Pipeline control
	mux.HandleFunc("/api/v1/pipeline/run", pipe.HandleRun)

	// Health endpoints
	mux.HandleFunc("/healthz", pipe.Health)
	mux.HandleFunc("/readyz", pipe.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
