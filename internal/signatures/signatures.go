// Package signatures evaluates normalized events against an ordered threat
// rule set. The rule list is immutable after load; ordering is the
// precedence policy (first match wins), so operators place more specific or
// severe rules earlier in the file.
package signatures

import (
	"log/slog"
	"strings"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// Predicate is a pure function of a normalized event. Predicates must not
// mutate the event.
type Predicate func(*models.NormalizedEvent) bool

// Signature classifies an event characteristic as a threat.
type Signature struct {
	Name       string
	Type       string
	Severity   models.Severity
	Confidence int
	Match      Predicate
}

// Engine holds the ordered signature list.
type Engine struct {
	sigs []Signature
}

// NewEngine creates an engine over the given ordered signatures.
func NewEngine(sigs []Signature) *Engine {
	return &Engine{sigs: sigs}
}

// Len returns the number of loaded signatures.
func (e *Engine) Len() int {
	return len(e.sigs)
}

// Match returns the first signature whose predicate is true, or nil. A
// panicking predicate counts as no-match for that signature only; the rest
// of the list is still evaluated.
func (e *Engine) Match(ev *models.NormalizedEvent) *Signature {
	for i := range e.sigs {
		if e.evaluate(&e.sigs[i], ev) {
			return &e.sigs[i]
		}
	}
	return nil
}

func (e *Engine) evaluate(sig *Signature, ev *models.NormalizedEvent) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("signature predicate panicked, treating as no match",
				slog.String("signature", sig.Name), slog.Any("panic", r))
			matched = false
		}
	}()
	return sig.Match(ev)
}

// hostOf extracts the lowercased host portion of a URL-ish value; bare
// domains pass through unchanged.
func hostOf(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}
