// Package client is a thin HTTP client for the Sentrix API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// Client talks to a Sentrix server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Message string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// RegisterSourceResponse carries the one-time plaintext key.
type RegisterSourceResponse struct {
	Source *models.EventSource `json:"source"`
	APIKey string              `json:"api_key"`
}

func (c *Client) RegisterSource(ctx context.Context, req *models.RegisterSourceRequest) (*RegisterSourceResponse, error) {
	var out RegisterSourceResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sources", req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListSources(ctx context.Context, userID string) ([]*models.EventSource, error) {
	var out struct {
		Sources []*models.EventSource `json:"sources"`
	}
	path := "/api/v1/sources?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Sources, nil
}

// RotateKeyResponse carries the new one-time plaintext key.
type RotateKeyResponse struct {
	APIKey            string    `json:"api_key"`
	RotationExpiresAt time.Time `json:"rotation_expires_at"`
}

func (c *Client) RotateKey(ctx context.Context, sourceID string, graceSeconds int) (*RotateKeyResponse, error) {
	var out RotateKeyResponse
	req := models.RotateKeyRequest{GraceSeconds: graceSeconds}
	path := fmt.Sprintf("/api/v1/sources/%s/rotate", url.PathEscape(sourceID))
	if err := c.do(ctx, http.MethodPost, path, req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExpireRotation(ctx context.Context, sourceID string) error {
	path := fmt.Sprintf("/api/v1/sources/%s/expire-rotation", url.PathEscape(sourceID))
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (c *Client) SetSourceDisabled(ctx context.Context, sourceID string, disabled bool) error {
	action := "enable"
	if disabled {
		action = "disable"
	}
	path := fmt.Sprintf("/api/v1/sources/%s/%s", url.PathEscape(sourceID), action)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// Ingest posts a batch of raw payloads using the source API key.
func (c *Client) Ingest(ctx context.Context, apiKey string, payloads []map[string]any) (int, error) {
	var out struct {
		Accepted int `json:"accepted"`
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", payloads, &out, headers); err != nil {
		return 0, err
	}
	return out.Accepted, nil
}

// RunPipeline triggers one processing cycle and returns its stats.
func (c *Client) RunPipeline(ctx context.Context) (*models.CycleStats, error) {
	var out models.CycleStats
	if err := c.do(ctx, http.MethodPost, "/api/v1/pipeline/run", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAlerts(ctx context.Context, userID string) ([]*models.Alert, int, error) {
	var out struct {
		Alerts []*models.Alert `json:"alerts"`
		Total  int             `json:"total"`
	}
	path := "/api/v1/alerts?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, 0, err
	}
	return out.Alerts, out.Total, nil
}

func (c *Client) MarkAlertRead(ctx context.Context, alertID, userID string) error {
	path := fmt.Sprintf("/api/v1/alerts/%s/read?user_id=%s", url.PathEscape(alertID), url.QueryEscape(userID))
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (c *Client) ClearAlerts(ctx context.Context, userID string) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	path := "/api/v1/alerts/clear?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out, nil); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

func (c *Client) ListThreats(ctx context.Context, userID string) ([]*models.ThreatEvent, int, error) {
	var out struct {
		Threats []*models.ThreatEvent `json:"threats"`
		Total   int                   `json:"total"`
	}
	path := "/api/v1/threats?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, 0, err
	}
	return out.Threats, out.Total, nil
}
