// Package enrichment resolves IP addresses to geolocation data on a
// best-effort basis. Lookup failures never fail the pipeline: callers get
// nil and proceed without geo fields.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// Provider resolves an IP to a geolocation, or nil when unknown.
type Provider interface {
	Resolve(ctx context.Context, ip string) *models.Geolocation
}

// Config holds HTTP geolocation provider settings.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// HTTPProvider queries an ip-api style JSON endpoint
// (GET {base}/{ip} -> {"country": ..., "city": ..., "lat": ..., "lon": ...}).
// Results, including misses, are cached in memory.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	cache   *geoCache
}

// NewHTTPProvider creates a provider with sane defaults for missing config.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   newGeoCache(cfg.CacheTTL),
	}
}

type geoResponse struct {
	Status  string  `json:"status"`
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Resolve looks up an IP. Any transport error, non-2xx response or
// malformed body yields nil. There is no retry here; the batch-level retry
// covers transient failures.
func (p *HTTPProvider) Resolve(ctx context.Context, ip string) *models.Geolocation {
	if ip == "" {
		return nil
	}

	if geo, found := p.cache.get(ip); found {
		return geo
	}

	geo := p.lookup(ctx, ip)
	p.cache.set(ip, geo)
	return geo
}

func (p *HTTPProvider) lookup(ctx context.Context, ip string) *models.Geolocation {
	reqURL := fmt.Sprintf("%s/%s", p.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil
	}

	var parsed geoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	if parsed.Status == "fail" || parsed.Country == "" {
		return nil
	}

	return &models.Geolocation{
		Country: parsed.Country,
		City:    parsed.City,
		Lat:     parsed.Lat,
		Lon:     parsed.Lon,
	}
}

// NoopProvider never resolves anything. Used when enrichment is disabled.
type NoopProvider struct{}

func (NoopProvider) Resolve(ctx context.Context, ip string) *models.Geolocation {
	return nil
}

// geoCache is a thread-safe TTL cache. Negative results are cached too, so
// a dead provider is not hammered once per event.
type geoCache struct {
	mu      sync.RWMutex
	entries map[string]geoCacheEntry
	ttl     time.Duration
}

type geoCacheEntry struct {
	geo       *models.Geolocation
	expiresAt time.Time
}

func newGeoCache(ttl time.Duration) *geoCache {
	return &geoCache{
		entries: make(map[string]geoCacheEntry),
		ttl:     ttl,
	}
}

func (c *geoCache) get(ip string) (*models.Geolocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[ip]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.geo, true
}

func (c *geoCache) set(ip string, geo *models.Geolocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ip] = geoCacheEntry{
		geo:       geo,
		expiresAt: time.Now().Add(c.ttl),
	}
}
