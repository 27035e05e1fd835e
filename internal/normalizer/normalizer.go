// Package normalizer maps loosely-typed raw payloads into the canonical
// NormalizedEvent shape. All tolerance for producer drift lives here:
// downstream stages only ever see the strict type.
package normalizer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// PlaceholderMessage is used when a payload carries no message field.
const PlaceholderMessage = "no message provided"

// Normalizer converts raw events into normalized events with defaulting.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize produces the canonical projection of a raw event. Malformed or
// missing optional fields degrade to defaults; this function never fails
// the batch.
//
// Field names are matched case-insensitively with snake_case and camelCase
// variants treated as equivalent, e.g. "source_ip" and "sourceIp".
func (n *Normalizer) Normalize(raw *models.RawEvent) (*models.NormalizedEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	fields := foldKeys(raw.RawData)

	ev := &models.NormalizedEvent{
		ID:         id.String(),
		RawEventID: raw.ID,
		SourceID:   raw.SourceID,
		UserID:     raw.UserID,
		EventType:  stringField(fields, "unknown", "eventtype", "type"),
		Severity:   models.ParseSeverity(stringField(fields, "", "severity")),
		Message:    stringField(fields, PlaceholderMessage, "message", "description"),
		Timestamp:  n.timestampField(fields, raw.ReceivedAt),
		Metadata:   raw.RawData,

		SourceURL:    stringField(fields, "", "sourceurl", "url", "fullurl", "domain"),
		DeviceName:   stringField(fields, "", "devicename", "device", "host", "hostname"),
		ThreatVector: stringField(fields, "", "threatvector", "vector"),

		SourceIP:      stringField(fields, "", "sourceip", "srcip", "ipaddress"),
		DestinationIP: stringField(fields, "", "destinationip", "dstip", "destip"),

		CreatedAt: n.now().UTC(),
	}

	return ev, nil
}

// foldKeys lowercases keys and strips underscores so snake_case and
// camelCase producers resolve to the same canonical key.
func foldKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		folded := strings.ReplaceAll(strings.ToLower(k), "_", "")
		if _, exists := out[folded]; !exists {
			out[folded] = v
		}
	}
	return out
}

// stringField returns the first non-empty string value among the candidate
// keys, or def when none is present or coercible.
func stringField(fields map[string]any, def string, candidates ...string) string {
	for _, key := range candidates {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// timestampField parses a timestamp from the payload, accepting RFC 3339
// strings and epoch seconds (integer or fractional). Anything else falls
// back to the ingestion time.
func (n *Normalizer) timestampField(fields map[string]any, receivedAt time.Time) time.Time {
	v, ok := fields["timestamp"]
	if !ok {
		v, ok = fields["time"]
	}
	if !ok {
		return fallbackTime(receivedAt, n.now)
	}

	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case float64:
		if t > 0 {
			sec := int64(t)
			nsec := int64((t - float64(sec)) * 1e9)
			return time.Unix(sec, nsec).UTC()
		}
	case int64:
		if t > 0 {
			return time.Unix(t, 0).UTC()
		}
	}
	return fallbackTime(receivedAt, n.now)
}

func fallbackTime(receivedAt time.Time, now func() time.Time) time.Time {
	if !receivedAt.IsZero() {
		return receivedAt
	}
	return now().UTC()
}
