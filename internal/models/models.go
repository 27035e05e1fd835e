package models

import "time"

// Severity classifies events, threats and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a raw severity string to a Severity, defaulting to low
// for unknown or missing values. Producers drift; the normalizer must not.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// EventSource is a registered telemetry producer identified by an API key.
// Key material is stored hashed only; the plaintext key is returned exactly
// once, at registration or rotation.
type EventSource struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	SourceType string `json:"source_type"`

	PrimaryKeyHash string `json:"-"`
	// SecondaryKeyHash holds the previous primary hash during a rotation
	// grace window. It is set together with RotationExpiresAt or not at all.
	SecondaryKeyHash  *string    `json:"-"`
	RotationExpiresAt *time.Time `json:"rotation_expires_at,omitempty"`

	Disabled  bool      `json:"disabled"`
	VersionID string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RotationActive reports whether the source is inside a rotation grace
// window at the given instant.
func (s *EventSource) RotationActive(now time.Time) bool {
	return s.SecondaryKeyHash != nil && s.RotationExpiresAt != nil && now.Before(*s.RotationExpiresAt)
}

// RawEvent is the immutable as-received envelope around a source payload.
// Processed flips exactly once, from false to true.
type RawEvent struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	UserID     string         `json:"user_id"`
	RawData    map[string]any `json:"raw_data"`
	Processed  bool           `json:"processed"`
	FailureCount int          `json:"-"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NormalizedEvent is the canonical, strictly-typed projection of a RawEvent.
type NormalizedEvent struct {
	ID         string   `json:"id"`
	RawEventID string   `json:"raw_event_id"`
	SourceID   string   `json:"source_id"`
	UserID     string   `json:"user_id"`
	EventType  string   `json:"event_type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`

	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	SourceURL    string `json:"source_url,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
	ThreatVector string `json:"threat_vector,omitempty"`

	SourceIP      string `json:"source_ip,omitempty"`
	DestinationIP string `json:"destination_ip,omitempty"`

	GeoCountry string   `json:"geo_country,omitempty"`
	GeoCity    string   `json:"geo_city,omitempty"`
	GeoLat     *float64 `json:"geo_lat,omitempty"`
	GeoLon     *float64 `json:"geo_lon,omitempty"`

	// FlaggedAsThreat transitions false -> true at most once, set by the
	// dispatcher when a signature matches.
	FlaggedAsThreat bool      `json:"flagged_as_threat"`
	CreatedAt       time.Time `json:"created_at"`
}

// Geolocation is a best-effort IP resolution result.
type Geolocation struct {
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// ThreatEvent is derived from a NormalizedEvent that matched a signature.
// Immutable once created; at most one per normalized event.
type ThreatEvent struct {
	ID                string    `json:"id"`
	NormalizedEventID string    `json:"normalized_event_id"`
	UserID            string    `json:"user_id"`
	ThreatType        string    `json:"threat_type"`
	SignatureName     string    `json:"signature_name"`
	Severity          Severity  `json:"severity"`
	Confidence        int       `json:"confidence"`
	CreatedAt         time.Time `json:"created_at"`
}

// Alert is the user-facing notification derived from a threat.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	ThreatID  *string   `json:"threat_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CycleStats summarizes one batch-runner cycle.
type CycleStats struct {
	Pulled       int `json:"pulled"`
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	Threats      int `json:"threats"`
	DeadLettered int `json:"dead_lettered"`
}
