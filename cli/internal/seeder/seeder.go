// Package seeder generates realistic telemetry for development and demos.
package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/sentrix-systems/sentrix/cli/internal/client"
)

// Config controls a seeding run.
type Config struct {
	// Count is the number of benign events to generate.
	Count int

	// Malicious is the number of events crafted to trip signatures.
	Malicious int

	// BatchSize bounds events per ingest request.
	BatchSize int
}

// Seeder pushes generated events through the real ingestion endpoint, so
// seeded data exercises the same path as production traffic.
type Seeder struct {
	client *client.Client
	apiKey string
	cfg    Config
}

// New creates a Seeder posting with the given source API key.
func New(c *client.Client, apiKey string, cfg Config) *Seeder {
	if cfg.Count <= 0 {
		cfg.Count = 50
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 50
	}
	return &Seeder{client: c, apiKey: apiKey, cfg: cfg}
}

// Run generates and ingests all events, returning the accepted count.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	events := make([]map[string]any, 0, s.cfg.Count+s.cfg.Malicious)
	for i := 0; i < s.cfg.Count; i++ {
		events = append(events, benignEvent())
	}
	for i := 0; i < s.cfg.Malicious; i++ {
		events = append(events, maliciousEvent(i))
	}

	accepted := 0
	for start := 0; start < len(events); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(events) {
			end = len(events)
		}
		n, err := s.client.Ingest(ctx, s.apiKey, events[start:end])
		if err != nil {
			return accepted, fmt.Errorf("ingest batch starting at %d: %w", start, err)
		}
		accepted += n
	}
	return accepted, nil
}

var eventTypes = []string{"web_request", "login", "dns_query", "file_access", "network_flow"}

func benignEvent() map[string]any {
	return map[string]any{
		"event_type":  gofakeit.RandomString(eventTypes),
		"severity":    gofakeit.RandomString([]string{"low", "medium"}),
		"message":     gofakeit.HackerPhrase(),
		"source_ip":   gofakeit.IPv4Address(),
		"device_name": gofakeit.AppName(),
		"url":         "https://" + gofakeit.DomainName() + "/" + gofakeit.Word(),
		"timestamp":   time.Now().Add(-time.Duration(gofakeit.Number(0, 3600)) * time.Second).UTC().Format(time.RFC3339),
	}
}

// maliciousEvent cycles through payload shapes that the default signature
// rules flag, so a fresh install has threats and alerts to look at.
func maliciousEvent(i int) map[string]any {
	ev := benignEvent()
	switch i % 3 {
	case 0:
		ev["url"] = "https://malicious-domain-example.com/payload"
		ev["event_type"] = "web_request"
	case 1:
		ev["url"] = "http://" + gofakeit.DomainName() + "/update.exe"
	default:
		ev["message"] = "Please verify your account immediately"
	}
	return ev
}
