package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrix-systems/sentrix/common/logging"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
	"github.com/sentrix-systems/sentrix/internal/service"
)

type testEnv struct {
	repo    *repository.InMemoryRepository
	sources *service.SourceService
	ingest  *IngestHandler
	source  *SourceHandler
}

func newTestEnv(t *testing.T, maxBatch int) *testEnv {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	sourceSvc := service.NewSourceService(repo)
	ingestSvc := service.NewIngestService(repo, maxBatch)
	logger := logging.Default()
	return &testEnv{
		repo:    repo,
		sources: sourceSvc,
		ingest:  NewIngestHandler(sourceSvc, ingestSvc, nil, logger),
		source:  NewSourceHandler(sourceSvc, 0, logger),
	}
}

func (e *testEnv) registerSource(t *testing.T) (sourceID, apiKey string) {
	t.Helper()
	body := `{"user_id":"user-1","name":"fleet"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sources", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	e.source.HandleSources(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Source *models.EventSource `json:"source"`
		APIKey string              `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.APIKey)
	return resp.Source.ID, resp.APIKey
}

func (e *testEnv) postEvents(key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	e.ingest.HandleIngest(rec, req)
	return rec
}

func TestIngestSingleObject(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, `{"event_type":"login","source_ip":"10.0.0.1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["accepted"])
}

func TestIngestArray(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, `[{"a":1},{"b":2},{"c":3}]`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["accepted"])
}

func TestIngestEnvelope(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, `{"events":[{"a":1},{"b":2}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["accepted"])
}

func TestIngestXAPIKeyHeader(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(`{"a":1}`))
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	env.ingest.HandleIngest(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIngestMissingKey(t *testing.T) {
	env := newTestEnv(t, 0)
	env.registerSource(t)

	rec := env.postEvents("", `{"a":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestInvalidKey(t *testing.T) {
	env := newTestEnv(t, 0)
	env.registerSource(t)

	rec := env.postEvents("sk_wrong", `{"a":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestDisabledSource(t *testing.T) {
	env := newTestEnv(t, 0)
	sourceID, key := env.registerSource(t)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/sources/%s/disable", sourceID), nil)
	rec := httptest.NewRecorder()
	env.source.HandleSourceAction(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec2 := env.postEvents(key, `{"a":1}`)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}

func TestIngestBatchOverCap(t *testing.T) {
	env := newTestEnv(t, 2)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, `[{"a":1},{"b":2},{"c":3}]`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// The rejected batch persisted nothing.
	pulled, err := env.repo.PullUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pulled)
}

func TestIngestMalformedBody(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, `not json at all`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestEmptyBody(t *testing.T) {
	env := newTestEnv(t, 0)
	_, key := env.registerSource(t)

	rec := env.postEvents(key, ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	env.ingest.HandleIngest(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
