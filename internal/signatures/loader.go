package signatures

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentrix-systems/sentrix/internal/models"
)

//go:embed rules.yaml
var defaultRules []byte

type ruleFile struct {
	Signatures []ruleSpec `yaml:"signatures"`
}

type ruleSpec struct {
	Name       string    `yaml:"name"`
	Type       string    `yaml:"type"`
	Severity   string    `yaml:"severity"`
	Confidence int       `yaml:"confidence"`
	Match      matchSpec `yaml:"match"`
}

type matchSpec struct {
	Kind     string   `yaml:"kind"`
	Domains  []string `yaml:"domains,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
	Suffixes []string `yaml:"suffixes,omitempty"`
	Key      string   `yaml:"key,omitempty"`
	Value    string   `yaml:"value,omitempty"`
}

// LoadDefault parses the embedded rule document. Called once at start-up;
// the resulting slice is never mutated afterwards.
func LoadDefault() ([]Signature, error) {
	return Load(defaultRules)
}

// Load parses a YAML rule document into an ordered signature list.
func Load(doc []byte) ([]Signature, error) {
	var file ruleFile
	if err := yaml.Unmarshal(doc, &file); err != nil {
		return nil, fmt.Errorf("parse signature rules: %w", err)
	}
	if len(file.Signatures) == 0 {
		return nil, fmt.Errorf("signature rules: empty rule set")
	}

	sigs := make([]Signature, 0, len(file.Signatures))
	for i, spec := range file.Signatures {
		pred, err := compileMatch(spec.Match)
		if err != nil {
			return nil, fmt.Errorf("signature %q (index %d): %w", spec.Name, i, err)
		}
		if spec.Confidence < 0 || spec.Confidence > 100 {
			return nil, fmt.Errorf("signature %q: confidence %d out of range", spec.Name, spec.Confidence)
		}
		sigs = append(sigs, Signature{
			Name:       spec.Name,
			Type:       spec.Type,
			Severity:   models.ParseSeverity(spec.Severity),
			Confidence: spec.Confidence,
			Match:      pred,
		})
	}
	return sigs, nil
}

func compileMatch(spec matchSpec) (Predicate, error) {
	switch spec.Kind {
	case "domain_blocklist":
		if len(spec.Domains) == 0 {
			return nil, fmt.Errorf("domain_blocklist requires domains")
		}
		domains := lowerAll(spec.Domains)
		return func(ev *models.NormalizedEvent) bool {
			host := hostOf(ev.SourceURL)
			if host == "" {
				return false
			}
			for _, d := range domains {
				if host == d || strings.HasSuffix(host, "."+d) {
					return true
				}
			}
			return false
		}, nil

	case "keyword":
		if len(spec.Keywords) == 0 {
			return nil, fmt.Errorf("keyword requires keywords")
		}
		kws := lowerAll(spec.Keywords)
		return func(ev *models.NormalizedEvent) bool {
			haystack := strings.ToLower(ev.Message + " " + ev.SourceURL)
			for _, kw := range kws {
				if strings.Contains(haystack, kw) {
					return true
				}
			}
			return false
		}, nil

	case "url_suffix":
		if len(spec.Suffixes) == 0 {
			return nil, fmt.Errorf("url_suffix requires suffixes")
		}
		suffixes := lowerAll(spec.Suffixes)
		return func(ev *models.NormalizedEvent) bool {
			u := strings.ToLower(ev.SourceURL)
			if u == "" {
				return false
			}
			for _, suffix := range suffixes {
				if strings.HasSuffix(u, suffix) {
					return true
				}
			}
			return false
		}, nil

	case "metadata_equals":
		if spec.Key == "" {
			return nil, fmt.Errorf("metadata_equals requires key")
		}
		key, want := spec.Key, spec.Value
		return func(ev *models.NormalizedEvent) bool {
			v, ok := ev.Metadata[key]
			if !ok {
				return false
			}
			s, ok := v.(string)
			return ok && strings.EqualFold(s, want)
		}, nil

	default:
		return nil, fmt.Errorf("unknown match kind %q", spec.Kind)
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
