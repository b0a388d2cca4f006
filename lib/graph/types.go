package graph

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Type Registry
// --------------------------------------------------------------------------

// TypeRegistry maps stable names to struct types so that the decoder can
// reconstruct concrete values without any reflective import-by-name
// machinery. Like the codec registry, it is populated at process start and
// read-only afterwards.
type TypeRegistry struct {
	byName *xsync.MapOf[string, reflect.Type]
	byType *xsync.MapOf[reflect.Type, string]
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: xsync.NewMapOf[string, reflect.Type](),
		byType: xsync.NewMapOf[reflect.Type, string](),
	}
}

// Register registers the struct type of the given value under its
// package-qualified name. Pointer values are registered as their element
// type; a *T in a graph round-trips through the same registration as a T.
func (r *TypeRegistry) Register(value any) {
	t := structType(value)
	r.RegisterName(t.PkgPath()+"."+t.Name(), value)
}

// RegisterName registers the struct type of the given value under an
// explicit name. The name becomes part of the stored format and must stay
// stable across releases.
func (r *TypeRegistry) RegisterName(name string, value any) {
	t := structType(value)
	r.byName.Store(name, t)
	r.byType.Store(t, name)
}

// nameFor returns the registered name for a struct type.
func (r *TypeRegistry) nameFor(t reflect.Type) (string, bool) {
	return r.byType.Load(t)
}

// typeFor returns the registered struct type for a name.
func (r *TypeRegistry) typeFor(name string) (reflect.Type, bool) {
	return r.byName.Load(name)
}

// structType normalizes a registration value to its underlying struct type
func structType(value any) reflect.Type {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("graph: cannot register non-struct type %s", t))
	}
	return t
}
