package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8", r.URL.Path)
		w.Write([]byte(`{"status":"success","country":"United States","city":"Mountain View","lat":37.4,"lon":-122.07}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL})
	geo := p.Resolve(context.Background(), "8.8.8.8")

	require.NotNil(t, geo)
	assert.Equal(t, "United States", geo.Country)
	assert.Equal(t, "Mountain View", geo.City)
	assert.InDelta(t, 37.4, geo.Lat, 0.001)
	assert.InDelta(t, -122.07, geo.Lon, 0.001)
}

func TestResolveProviderFailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL})
	assert.Nil(t, p.Resolve(context.Background(), "10.0.0.1"))
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL})
	assert.Nil(t, p.Resolve(context.Background(), "8.8.8.8"))
}

func TestResolveMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL})
	assert.Nil(t, p.Resolve(context.Background(), "8.8.8.8"))
}

func TestResolveEmptyIP(t *testing.T) {
	p := NewHTTPProvider(Config{BaseURL: "http://unused"})
	assert.Nil(t, p.Resolve(context.Background(), ""))
}

func TestResolveCachesResults(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin","lat":52.5,"lon":13.4}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL, CacheTTL: time.Hour})
	for i := 0; i < 3; i++ {
		geo := p.Resolve(context.Background(), "1.2.3.4")
		require.NotNil(t, geo)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolveCachesNegativeResults(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{BaseURL: srv.URL, CacheTTL: time.Hour})
	for i := 0; i < 3; i++ {
		assert.Nil(t, p.Resolve(context.Background(), "1.2.3.4"))
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestNoopProvider(t *testing.T) {
	assert.Nil(t, NoopProvider{}.Resolve(context.Background(), "8.8.8.8"))
}
