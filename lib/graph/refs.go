package graph

import (
	"reflect"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Reference Table
// --------------------------------------------------------------------------

// ReferenceEntry connects one reference token to the specialized codec and
// value it stands for. Entries exist only for the duration of a single dump
// operation.
type ReferenceEntry struct {
	Token string
	Codec codec.ICodec
	Value any
}

// ReferenceTable collects the sub-values intercepted during one dump pass.
// Tokens are freshly minted UUIDs: fixed-width, process-unique and free of
// the artifact name delimiter, which is what makes token-prefixed artifact
// names unambiguous to split. A table must not be shared between concurrent
// dump calls.
type ReferenceTable struct {
	entries map[string]ReferenceEntry
	order   []string
	byPtr   map[uintptr]string
}

// NewReferenceTable creates an empty reference table for one dump operation.
func NewReferenceTable() *ReferenceTable {
	return &ReferenceTable{
		entries: map[string]ReferenceEntry{},
		byPtr:   map[uintptr]string{},
	}
}

// Add records an intercepted value and returns its reference token. Two
// occurrences of the same pointer-identical value share a single token (and
// therefore a single artifact group); everything else gets a fresh token
// per occurrence.
func (t *ReferenceTable) Add(c codec.ICodec, value any) (string, error) {
	if ptr, ok := pointerIdentity(value); ok {
		if token, seen := t.byPtr[ptr]; seen {
			return token, nil
		}
	}

	token := uuid.NewString()
	if _, exists := t.entries[token]; exists {
		// unreachable given UUID uniqueness, treated as an engine bug
		return "", codec.NewErrorf(codec.RetCInvariantViolation, "reference token collision: %s", token)
	}

	t.entries[token] = ReferenceEntry{Token: token, Codec: c, Value: value}
	t.order = append(t.order, token)
	if ptr, ok := pointerIdentity(value); ok {
		t.byPtr[ptr] = token
	}
	return token, nil
}

// Len returns the number of distinct references in the table.
func (t *ReferenceTable) Len() int {
	return len(t.entries)
}

// Entries returns all reference entries in insertion order.
func (t *ReferenceTable) Entries() []ReferenceEntry {
	out := make([]ReferenceEntry, 0, len(t.order))
	for _, token := range t.order {
		out = append(out, t.entries[token])
	}
	return out
}

// pointerIdentity extracts a stable identity for values with reference
// semantics. Only pointer and map kinds have one; other kinds are dumped
// once per occurrence.
func pointerIdentity(value any) (uintptr, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map:
		return v.Pointer(), true
	default:
		return 0, false
	}
}

// --------------------------------------------------------------------------
// Load-Side Resolver
// --------------------------------------------------------------------------

// Resolver maps a reference token found in the byte stream to its
// reconstructed value. It must be total over the tokens present in the
// stream: unknown tokens are a hard error, never silently defaulted.
type Resolver func(token string) (any, error)

// MapResolver builds a Resolver from a map of reconstructed values.
func MapResolver(values map[string]any) Resolver {
	return func(token string) (any, error) {
		v, ok := values[token]
		if !ok {
			return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "reference token %s has no reconstructed value", token)
		}
		return v, nil
	}
}

// NoRefResolver is the resolver for byte streams that are known to contain
// no placeholders (the single-artifact case). Any call is an error.
func NoRefResolver() Resolver {
	return func(token string) (any, error) {
		return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "unexpected reference token %s in a single-artifact dump", token)
	}
}
