package crm

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the subscription target kind.
type Kind string

const (
	KindForm     Kind = "form"
	KindTag      Kind = "tag"
	KindSequence Kind = "sequence"
)

// Target is a form, tag or sequence a customer can be subscribed to. Two targets are
// equal when Kind and ID match; Legacy only selects the API operation for forms.
type Target struct {
	Kind   Kind
	ID     int64
	Legacy bool
}

// ParseTarget parses "form:1", "tag:5" or "sequence:9". A bare integer is read as a
// form id, which is how older settings stored the default form. An empty string
// yields the zero Target.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, nil
	}
	kind, raw, found := strings.Cut(s, ":")
	if !found {
		kind, raw = string(KindForm), s
	}
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case KindForm, KindTag, KindSequence:
	default:
		return Target{}, &ValidationError{Field: "target", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return Target{}, &ValidationError{Field: "target", Reason: fmt.Sprintf("invalid id %q", raw)}
	}
	return Target{Kind: k, ID: id}, nil
}

// IsZero reports whether the target is absent.
func (t Target) IsZero() bool { return t.Kind == "" && t.ID == 0 }

// Key identifies the target for equality and deduplication.
func (t Target) Key() string { return fmt.Sprintf("%s:%d", t.Kind, t.ID) }

// String renders the target in its settings form.
func (t Target) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Key()
}

// Equal compares targets by kind and id.
func (t Target) Equal(o Target) bool { return t.Kind == o.Kind && t.ID == o.ID }
