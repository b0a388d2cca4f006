package graph

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/storage"
)

// --------------------------------------------------------------------------
// Test fixtures
// --------------------------------------------------------------------------

type point struct {
	X, Y float64
}

type shape struct {
	Name     string
	Center   point
	Vertices []point
	Tags     map[string]int
	Parent   *shape
}

type allKinds struct {
	B    bool
	I    int
	I8   int8
	I64  int64
	U    uint
	U16  uint16
	F32  float32
	F64  float64
	S    string
	Raw  []byte
	List []string
	Arr  [3]int
	M    map[string]float64
	Any  any
	Ptr  *int
}

func newTestRegistry() *TypeRegistry {
	types := NewTypeRegistry()
	types.Register(point{})
	types.Register(shape{})
	types.Register(allKinds{})
	return types
}

// roundTrip encodes the value without interception and decodes it back
func roundTrip(t *testing.T, types *TypeRegistry, value any) any {
	t.Helper()

	data, table, err := NewEncoder(types).Encode(value)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Expected empty reference table without interception, got %d entries", table.Len())
	}

	out, err := NewDecoder(types, NoRefResolver()).Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

// --------------------------------------------------------------------------
// Structural round trips
// --------------------------------------------------------------------------

func TestPrimitiveRoundTrip(t *testing.T) {
	types := newTestRegistry()

	testCases := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"bool", true},
		{"int", int64(-42)},
		{"uint", uint64(42)},
		{"float", 3.25},
		{"string", "hello"},
		{"empty string", ""},
		{"bytes", []byte{1, 2, 3}},
		{"slice", []any{int64(1), "two", 3.0}},
		{"map", map[any]any{"a": int64(1), "b": int64(2)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, types, tc.value)
			if !reflect.DeepEqual(got, tc.value) {
				t.Errorf("Round trip mismatch:\nOriginal: %#v\nResult:   %#v", tc.value, got)
			}
		})
	}
}

func TestStructRoundTrip(t *testing.T) {
	types := newTestRegistry()

	original := &shape{
		Name:     "triangle",
		Center:   point{X: 1, Y: 2},
		Vertices: []point{{0, 0}, {1, 0}, {0, 1}},
		Tags:     map[string]int{"sides": 3},
	}

	got, ok := roundTrip(t, types, original).(*shape)
	if !ok {
		t.Fatalf("Expected *shape, got %T", got)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("Round trip mismatch:\nOriginal: %+v\nResult:   %+v", original, got)
	}
}

func TestAllKindsRoundTrip(t *testing.T) {
	types := newTestRegistry()

	n := 7
	original := allKinds{
		B:    true,
		I:    -1,
		I8:   -8,
		I64:  1 << 40,
		U:    1,
		U16:  65535,
		F32:  1.5,
		F64:  -2.25,
		S:    "s",
		Raw:  []byte("raw"),
		List: []string{"a", "b"},
		Arr:  [3]int{1, 2, 3},
		M:    map[string]float64{"pi": 3.14},
		Any:  "dynamic",
		Ptr:  &n,
	}

	out := roundTrip(t, types, original)
	got, ok := out.(allKinds)
	if !ok {
		t.Fatalf("Expected allKinds, got %T", out)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("Round trip mismatch:\nOriginal: %+v\nResult:   %+v", original, got)
	}
}

func TestUnregisteredStruct(t *testing.T) {
	type unregistered struct{ A int }

	types := newTestRegistry()
	if _, _, err := NewEncoder(types).Encode(unregistered{A: 1}); err == nil {
		t.Error("Expected error when encoding an unregistered struct type")
	}
}

// --------------------------------------------------------------------------
// Shared structure and cycles
// --------------------------------------------------------------------------

func TestSharedPointer(t *testing.T) {
	types := newTestRegistry()

	shared := &shape{Name: "shared"}
	original := []*shape{shared, shared}

	decoded := roundTrip(t, types, original).([]any)
	if len(decoded) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(decoded))
	}

	first, second := decoded[0].(*shape), decoded[1].(*shape)
	if first != second {
		t.Error("Expected both elements to be the same pointer after round trip")
	}
	if first.Name != "shared" {
		t.Errorf("Expected name 'shared', got %q", first.Name)
	}
}

func TestPointerCycle(t *testing.T) {
	types := newTestRegistry()

	parent := &shape{Name: "parent"}
	parent.Parent = parent // self cycle

	got := roundTrip(t, types, parent).(*shape)
	if got.Parent != got {
		t.Error("Expected self-referencing cycle to be preserved")
	}
}

// --------------------------------------------------------------------------
// Interception
// --------------------------------------------------------------------------

// fakeCodec is a minimal ICodec used to drive the interception hook
type fakeCodec struct{}

func (fakeCodec) Identity() string { return "test.fake" }
func (fakeCodec) Dump(storage.IStorage, string, any) (storage.ArtifactSet, error) {
	return nil, nil
}
func (fakeCodec) Load(storage.ArtifactSet) (any, error) { return nil, nil }

// special is the type the fake hook intercepts
type special struct {
	Payload string
}

type fakeHook struct{}

func (fakeHook) Priority() int { return 10 }
func (fakeHook) ValidTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(&special{})}
}
func (fakeHook) Analyze(value any) (codec.ICodec, bool) {
	return fakeCodec{}, true
}

type container struct {
	Label string
	Inner *special
	Twin  *special
}

func interceptingEncoder(types *TypeRegistry) *Encoder {
	registry := codec.NewRegistry()
	registry.RegisterHook(fakeHook{})
	return NewEncoder(types, WithInterception(registry.KnownTypes(), registry.Resolve))
}

func TestInterception(t *testing.T) {
	types := newTestRegistry()
	types.Register(container{})

	inner := &special{Payload: "intercept me"}
	original := &container{Label: "outer", Inner: inner}

	data, table, err := interceptingEncoder(types).Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Expected 1 reference, got %d", table.Len())
	}
	entry := table.Entries()[0]
	if entry.Codec.Identity() != "test.fake" {
		t.Errorf("Expected codec identity test.fake, got %s", entry.Codec.Identity())
	}
	if entry.Value.(*special) != inner {
		t.Error("Expected the intercepted value to be the original pointer")
	}

	// the stream must not contain the payload, only the token
	if bytes.Contains(data, []byte("intercept me")) {
		t.Error("Intercepted payload leaked into the generic byte stream")
	}

	// decode with a resolver substituting a replacement value
	replacement := &special{Payload: "resolved"}
	out, err := NewDecoder(types, MapResolver(map[string]any{entry.Token: replacement})).Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded := out.(*container)
	if decoded.Inner != replacement {
		t.Error("Expected the resolver's value to be substituted in place")
	}
	if decoded.Label != "outer" {
		t.Errorf("Expected label 'outer', got %q", decoded.Label)
	}
}

func TestInterceptionSharedValue(t *testing.T) {
	types := newTestRegistry()
	types.Register(container{})

	inner := &special{Payload: "shared"}
	original := &container{Inner: inner, Twin: inner}

	_, table, err := interceptingEncoder(types).Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// pointer-identical specialized values share one token
	if table.Len() != 1 {
		t.Errorf("Expected a single shared reference, got %d", table.Len())
	}
}

func TestInterceptionSkipsNilPointer(t *testing.T) {
	types := newTestRegistry()
	types.Register(container{})

	// Inner and Twin stay nil: a typed nil of a known type must encode
	// structurally, not mint a reference for the specialized codec
	original := &container{Label: "outer"}

	data, table, err := interceptingEncoder(types).Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Expected no references for nil sub-values, got %d", table.Len())
	}

	out, err := NewDecoder(types, NoRefResolver()).Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded := out.(*container)
	if decoded.Inner != nil || decoded.Twin != nil {
		t.Errorf("Expected nil sub-values after round trip, got %+v", decoded)
	}
	if decoded.Label != "outer" {
		t.Errorf("Expected label 'outer', got %q", decoded.Label)
	}
}

// refusingHook matches *special by type but reports "not applicable" for
// every value
type refusingHook struct{}

func (refusingHook) Priority() int { return 10 }
func (refusingHook) ValidTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(&special{})}
}
func (refusingHook) Analyze(value any) (codec.ICodec, bool) {
	return nil, false
}

func TestHookNotApplicable(t *testing.T) {
	types := newTestRegistry()
	types.Register(container{})
	types.Register(special{})

	registry := codec.NewRegistry()
	registry.RegisterHook(refusingHook{})
	enc := NewEncoder(types, WithInterception(registry.KnownTypes(), registry.Resolve))

	original := &container{Label: "outer", Inner: &special{Payload: "kept inline"}}

	data, table, err := enc.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// the hook refused, so the value must fall back to structural encoding
	if table.Len() != 0 {
		t.Fatalf("Expected no references when the hook refuses, got %d", table.Len())
	}

	out, err := NewDecoder(types, NoRefResolver()).Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	decoded := out.(*container)
	if decoded.Inner == nil || decoded.Inner.Payload != "kept inline" {
		t.Errorf("Expected structural round trip of the refused value, got %+v", decoded.Inner)
	}
}

func TestResolverUnknownToken(t *testing.T) {
	types := newTestRegistry()
	types.Register(container{})

	original := &container{Inner: &special{Payload: "x"}}
	data, _, err := interceptingEncoder(types).Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// resolver with no entries must fail, not silently default
	_, err = NewDecoder(types, MapResolver(map[string]any{})).Decode(data)
	if err == nil {
		t.Fatal("Expected error for unknown reference token")
	}
	if !codec.IsCode(err, codec.RetCCorruptArtifactSet) {
		t.Errorf("Expected RetCCorruptArtifactSet, got: %v", err)
	}
}

func TestKnownTypesFiltering(t *testing.T) {
	types := newTestRegistry()

	lookups := 0
	registry := codec.NewRegistry()
	registry.RegisterHook(fakeHook{})
	lookup := func(v any) (codec.ICodec, bool) {
		lookups++
		return registry.Resolve(v)
	}

	enc := NewEncoder(types, WithInterception(registry.KnownTypes(), lookup))

	// a graph with no known-type members must never hit the lookup
	_, table, err := enc.Encode(&shape{Name: "plain", Vertices: []point{{1, 2}}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if lookups != 0 {
		t.Errorf("Expected 0 capability lookups for unknown types, got %d", lookups)
	}
	if table.Len() != 0 {
		t.Errorf("Expected no references, got %d", table.Len())
	}
}

// --------------------------------------------------------------------------
// Invalid input
// --------------------------------------------------------------------------

func TestSelfReferentialContainer(t *testing.T) {
	types := newTestRegistry()

	t.Run("map", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = m
		if _, _, err := NewEncoder(types).Encode(m); err == nil {
			t.Error("Expected error for a map containing itself")
		}
	})

	t.Run("slice", func(t *testing.T) {
		s := make([]any, 1)
		s[0] = s
		if _, _, err := NewEncoder(types).Encode(s); err == nil {
			t.Error("Expected error for a slice containing itself")
		}
	})

	t.Run("shared map", func(t *testing.T) {
		// the same map on two non-cyclic paths is fine
		m := map[string]int{"a": 1}
		if _, _, err := NewEncoder(types).Encode([]any{m, m}); err != nil {
			t.Errorf("Expected shared non-cyclic map to encode, got: %v", err)
		}
	})
}

func TestOversizeValueGuard(t *testing.T) {
	if err := checkLen(math.MaxUint32); err != nil {
		t.Errorf("Expected lengths up to the u32 maximum to pass, got: %v", err)
	}
	if err := checkLen(math.MaxUint32 + 1); err == nil {
		t.Error("Expected error for a length exceeding the u32 prefix")
	}
}

func TestInvalidData(t *testing.T) {
	types := newTestRegistry()

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"bad magic", []byte{'X', 'X', 'X', 'X', tagNil}},
		{"truncated string", append(append([]byte{}, streamMagic...), tagString, 0, 0, 0, 10, 'a')},
		{"unknown tag", append(append([]byte{}, streamMagic...), 0xee)},
		{"trailing bytes", append(append([]byte{}, streamMagic...), tagNil, tagNil)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDecoder(types, NoRefResolver()).Decode(tc.data); err == nil {
				t.Error("Expected error for invalid data")
			}
		})
	}
}
