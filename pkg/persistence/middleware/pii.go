package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
)

// Mask replaces every redacted value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.Repository[domain.RunState]
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of keys
// matching any of the patterns in the request, response and journal results
// of finished runs. Runs still in flight are stored untouched so they can be
// resumed with their original request.
func NewPIIMiddleware(patternStrings []string) (Decorator[domain.RunState], error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.Repository[domain.RunState]) ports.Repository[domain.RunState] {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, id string, state domain.RunState) error {
	if !state.Status.IsTerminal() || len(m.patterns) == 0 {
		return m.next.Save(ctx, id, state)
	}

	// Only whole fields are replaced, so the caller's run is never modified.
	masked := state
	var err error
	if masked.Request, err = m.maskRaw(state.Request); err != nil {
		return fmt.Errorf("mask request: %w", err)
	}
	if masked.Response, err = m.maskRaw(state.Response); err != nil {
		return fmt.Errorf("mask response: %w", err)
	}
	copied := false
	for i, entry := range state.Journal {
		result, err := m.maskRaw(entry.Result)
		if err != nil {
			return fmt.Errorf("mask journal entry %d: %w", entry.Seq, err)
		}
		if bytes.Equal(result, entry.Result) {
			continue
		}
		if !copied {
			masked.Journal = append([]domain.JournalEntry(nil), state.Journal...)
			copied = true
		}
		masked.Journal[i].Result = result
	}
	return m.next.Save(ctx, id, masked)
}

func (m *piiMiddleware) Get(ctx context.Context, id string) (*domain.RunState, error) {
	return m.next.Get(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]domain.RunState, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) (bool, error) {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) GenerateID() string {
	return m.next.GenerateID()
}

func (m *piiMiddleware) maskRaw(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if !m.mask(v) {
		return raw, nil
	}
	// Re-encoding drops the original formatting of the document.
	return json.Marshal(v)
}

// mask redacts v in place and reports whether anything changed.
func (m *piiMiddleware) mask(v any) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, sub := range t {
			if m.matches(k) {
				t[k] = Mask
				changed = true
				continue
			}
			if m.mask(sub) {
				changed = true
			}
		}
	case []any:
		for _, sub := range t {
			if m.mask(sub) {
				changed = true
			}
		}
	}
	return changed
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
