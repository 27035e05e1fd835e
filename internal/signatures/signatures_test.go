package signatures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrix-systems/sentrix/internal/models"
)

func TestLoadDefaultRules(t *testing.T) {
	sigs, err := LoadDefault()
	require.NoError(t, err)
	require.NotEmpty(t, sigs)

	// The bundled rule set leads with the malware domain blocklist.
	assert.Equal(t, "Known Malware Domain", sigs[0].Name)
	assert.Equal(t, "malware", sigs[0].Type)
	assert.Equal(t, models.SeverityCritical, sigs[0].Severity)
	assert.Equal(t, 100, sigs[0].Confidence)
}

func TestMatchKnownMalwareDomain(t *testing.T) {
	sigs, err := LoadDefault()
	require.NoError(t, err)
	engine := NewEngine(sigs)

	ev := &models.NormalizedEvent{
		EventType: "web_request",
		SourceURL: "https://malicious-domain-example.com/path?q=1",
	}

	sig := engine.Match(ev)
	require.NotNil(t, sig)
	assert.Equal(t, "Known Malware Domain", sig.Name)
	assert.Equal(t, models.SeverityCritical, sig.Severity)
}

func TestMatchSubdomainOfBlockedDomain(t *testing.T) {
	sigs, err := LoadDefault()
	require.NoError(t, err)
	engine := NewEngine(sigs)

	ev := &models.NormalizedEvent{SourceURL: "http://cdn.malicious-domain-example.com/x"}
	sig := engine.Match(ev)
	require.NotNil(t, sig)
	assert.Equal(t, "Known Malware Domain", sig.Name)
}

func TestMatchNoSignature(t *testing.T) {
	sigs, err := LoadDefault()
	require.NoError(t, err)
	engine := NewEngine(sigs)

	ev := &models.NormalizedEvent{
		EventType: "web_request",
		SourceURL: "https://example.com/index.html",
		Message:   "routine traffic",
	}
	assert.Nil(t, engine.Match(ev))
}

func TestMatchFirstMatchWins(t *testing.T) {
	first := Signature{
		Name: "first", Type: "a", Severity: models.SeverityLow, Confidence: 10,
		Match: func(ev *models.NormalizedEvent) bool { return true },
	}
	second := Signature{
		Name: "second", Type: "b", Severity: models.SeverityCritical, Confidence: 90,
		Match: func(ev *models.NormalizedEvent) bool { return true },
	}
	engine := NewEngine([]Signature{first, second})

	sig := engine.Match(&models.NormalizedEvent{})
	require.NotNil(t, sig)
	assert.Equal(t, "first", sig.Name)
}

func TestMatchPanickingPredicateSkipped(t *testing.T) {
	panicky := Signature{
		Name: "panicky", Type: "a", Severity: models.SeverityLow, Confidence: 10,
		Match: func(ev *models.NormalizedEvent) bool { panic("boom") },
	}
	sane := Signature{
		Name: "sane", Type: "b", Severity: models.SeverityMedium, Confidence: 50,
		Match: func(ev *models.NormalizedEvent) bool { return true },
	}
	engine := NewEngine([]Signature{panicky, sane})

	sig := engine.Match(&models.NormalizedEvent{})
	require.NotNil(t, sig)
	assert.Equal(t, "sane", sig.Name)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	doc := []byte(`
signatures:
  - name: bad
    type: x
    severity: low
    confidence: 10
    match:
      kind: regex
`)
	_, err := Load(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown match kind")
}

func TestLoadRejectsConfidenceOutOfRange(t *testing.T) {
	doc := []byte(`
signatures:
  - name: bad
    type: x
    severity: low
    confidence: 150
    match:
      kind: keyword
      keywords: [test]
`)
	_, err := Load(doc)
	require.Error(t, err)
}

func TestMetadataEqualsPredicate(t *testing.T) {
	doc := []byte(`
signatures:
  - name: tor
    type: anonymization
    severity: medium
    confidence: 60
    match:
      kind: metadata_equals
      key: network
      value: tor
`)
	sigs, err := Load(doc)
	require.NoError(t, err)
	engine := NewEngine(sigs)

	assert.NotNil(t, engine.Match(&models.NormalizedEvent{
		Metadata: map[string]any{"network": "TOR"},
	}))
	assert.Nil(t, engine.Match(&models.NormalizedEvent{
		Metadata: map[string]any{"network": "vpn"},
	}))
	assert.Nil(t, engine.Match(&models.NormalizedEvent{
		Metadata: map[string]any{"network": 42},
	}))
	assert.Nil(t, engine.Match(&models.NormalizedEvent{}))
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.com/path", "example.com"},
		{"example.com", "example.com"},
		{"http://example.com:8080/x", "example.com"},
		{"example.com?q=1", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostOf(tt.in), "input %q", tt.in)
	}
}
