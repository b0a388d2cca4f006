package codec

import (
	"reflect"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Codec Registry
// --------------------------------------------------------------------------

// Registry holds the registered codec factories (keyed by identity) and the
// analyzer hooks (ordered by priority). It is populated once at process
// start and treated as read-only afterwards, which makes it safe to share
// between concurrent dump and load operations.
type Registry struct {
	codecs *xsync.MapOf[string, CodecFactory]

	mu    sync.Mutex
	hooks []IAnalyzerHook
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: xsync.NewMapOf[string, CodecFactory](),
	}
}

// RegisterCodec registers a codec factory under the identity reported by a
// default-constructed instance. Registering the same identity twice
// overwrites the previous factory.
func (r *Registry) RegisterCodec(factory CodecFactory) {
	r.codecs.Store(factory().Identity(), factory)
}

// RegisterHook adds an analyzer hook. Hooks are kept sorted by descending
// priority so that more specific codecs win during resolution.
func (r *Registry) RegisterHook(hook IAnalyzerHook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, hook)
	sort.SliceStable(r.hooks, func(i, j int) bool {
		return r.hooks[i].Priority() > r.hooks[j].Priority()
	})
}

// Resolve performs the capability lookup for a runtime value. It queries
// the hooks in priority order and returns the first applicable codec. The
// boolean return value is false if no specialized codec applies - this is
// a normal outcome, not an error.
func (r *Registry) Resolve(value any) (ICodec, bool) {
	if value == nil {
		return nil, false
	}
	vt := reflect.TypeOf(value)

	r.mu.Lock()
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		if !typeMatches(vt, hook.ValidTypes()) {
			continue
		}
		if c, ok := hook.Analyze(value); ok {
			return c, true
		}
	}
	return nil, false
}

// ResolveIdentity resolves a codec identity string (as read from a
// descriptor artifact) to a fresh codec instance with default
// configuration. Unknown identities yield a RetCCodecResolution error.
func (r *Registry) ResolveIdentity(identity string) (ICodec, error) {
	factory, ok := r.codecs.Load(identity)
	if !ok {
		return nil, NewErrorf(RetCCodecResolution, "no codec registered for identity %q", identity)
	}
	return factory(), nil
}

// --------------------------------------------------------------------------
// Known-Types Set
// --------------------------------------------------------------------------

// KnownTypes is the union of all valid types declared by the registered
// hooks. The graph encoder consults it before paying for a full capability
// lookup: values whose type is not in the set can never be intercepted.
// The set is immutable once computed.
type KnownTypes struct {
	concrete   map[reflect.Type]struct{}
	interfaces []reflect.Type
}

// KnownTypes computes the known-types snapshot from the currently
// registered hooks. Call this after registration is complete, typically
// when constructing an encoder.
func (r *Registry) KnownTypes() *KnownTypes {
	kt := &KnownTypes{concrete: map[reflect.Type]struct{}{}}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hook := range r.hooks {
		for _, t := range hook.ValidTypes() {
			if t == nil {
				continue
			}
			if t.Kind() == reflect.Interface {
				kt.interfaces = append(kt.interfaces, t)
			} else {
				kt.concrete[t] = struct{}{}
			}
		}
	}
	return kt
}

// Contains reports whether the given runtime type is a member of the set.
func (k *KnownTypes) Contains(t reflect.Type) bool {
	if k == nil || t == nil {
		return false
	}
	if _, ok := k.concrete[t]; ok {
		return true
	}
	for _, it := range k.interfaces {
		if t.Implements(it) {
			return true
		}
	}
	return false
}

// typeMatches checks a runtime type against a hook's declared valid types
func typeMatches(vt reflect.Type, valid []reflect.Type) bool {
	for _, t := range valid {
		if t == nil {
			continue
		}
		if t.Kind() == reflect.Interface {
			if vt.Implements(t) {
				return true
			}
		} else if vt == t {
			return true
		}
	}
	return false
}
