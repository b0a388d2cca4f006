package graphcodec

import (
	"fmt"
	"io"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/graph"
	"github.com/ValentinKolb/graphpack/lib/storage"
	"github.com/fxamacker/cbor/v2"
)

const (
	// CodecIdentity is the stable identity of the generic graph codec.
	CodecIdentity = "graphpack.graph.v1"

	// RootArtifactName is the reserved name of the root byte stream inside
	// a namespaced dump. Reference tokens are UUIDs and can therefore never
	// collide with it.
	RootArtifactName = "graph.bin"

	// DescriptorSuffix is the artifact name suffix of codec descriptors.
	DescriptorSuffix = ".codec"

	// refDelimiter separates a reference token from the sub-artifact name.
	// Tokens never contain it, so splitting on the first occurrence is
	// unambiguous even if the remainder contains further delimiters.
	refDelimiter = "_"
)

// descriptorFormat is the version written into descriptor artifacts
const descriptorFormat = 1

// descriptor is the CBOR payload of a codec descriptor artifact. It is all
// the loader needs to reconstruct a sub-value: the capability lookup that
// chose the codec at dump time is not consulted again.
type descriptor struct {
	Identity string `cbor:"identity"`
	Format   uint32 `cbor:"format"`
}

var (
	dumpsTotal      = metrics.NewCounter("graphpack_dumps_total")
	dumpErrorsTotal = metrics.NewCounter("graphpack_dump_errors_total")
	loadsTotal      = metrics.NewCounter("graphpack_loads_total")
	loadErrorsTotal = metrics.NewCounter("graphpack_load_errors_total")
	refsTotal       = metrics.NewCounter("graphpack_references_total")
)

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

// New creates the generic graph codec. The known-types set is computed once
// here from the (already populated) registry; both it and the registry are
// treated as read-only afterwards, so one codec instance may serve
// concurrent dump and load calls.
func New(registry *codec.Registry, types *graph.TypeRegistry) codec.ICodec {
	return &codecImpl{
		registry: registry,
		types:    types,
		known:    registry.KnownTypes(),
	}
}

// Register wires the graph codec into a registry so that nested graph
// dumps (a specialized sub-value persisted with the graph codec itself)
// resolve at load time.
func Register(registry *codec.Registry, types *graph.TypeRegistry) {
	registry.RegisterCodec(func() codec.ICodec {
		return New(registry, types)
	})
}

// codecImpl implements codec.ICodec by multiplexing the generic structural
// encoding and any number of specialized codec dumps into one flat
// artifact namespace
type codecImpl struct {
	registry *codec.Registry
	types    *graph.TypeRegistry
	known    *codec.KnownTypes
}

func (c *codecImpl) Identity() string {
	return CodecIdentity
}

// resolve is the interception hook handed to the encoder. The generic
// codec resolving to itself must fall through to structural encoding,
// otherwise a dump would recurse through the reference table forever.
func (c *codecImpl) resolve(value any) (codec.ICodec, bool) {
	sub, ok := c.registry.Resolve(value)
	if !ok || sub.Identity() == CodecIdentity {
		return nil, false
	}
	return sub, true
}

// --------------------------------------------------------------------------
// Interface Methods: Dump Half
// --------------------------------------------------------------------------

func (c *codecImpl) Dump(store storage.IStorage, path string, value any) (storage.ArtifactSet, error) {
	arts, err := c.dump(store, path, value)
	if err != nil {
		dumpErrorsTotal.Inc()
		return nil, err
	}
	dumpsTotal.Inc()
	return arts, nil
}

func (c *codecImpl) dump(store storage.IStorage, path string, value any) (storage.ArtifactSet, error) {
	enc := graph.NewEncoder(c.types, graph.WithInterception(c.known, c.resolve))
	data, table, err := enc.Encode(value)
	if err != nil {
		return nil, err
	}

	// single-artifact optimization: no references means no namespace, the
	// root blob is stored directly at the target path
	if table.Len() == 0 {
		art, err := writeBlob(store, path, data)
		if err != nil {
			return nil, err
		}
		return storage.ArtifactSet{RootArtifactName: art}, nil
	}

	arts := storage.ArtifactSet{}

	rootArt, err := writeBlob(store, storage.Join(path, RootArtifactName), data)
	if err != nil {
		return nil, err
	}
	arts[RootArtifactName] = rootArt

	for _, entry := range table.Entries() {
		refsTotal.Inc()

		sub, err := entry.Codec.Dump(store, storage.Join(path, entry.Token), entry.Value)
		if err != nil {
			return nil, fmt.Errorf("dump reference %s (codec %s): %w", entry.Token, entry.Codec.Identity(), err)
		}
		for name, art := range sub {
			key := entry.Token + refDelimiter + name
			if _, exists := arts[key]; exists {
				return nil, codec.NewErrorf(codec.RetCInvariantViolation, "artifact name collision: %s", key)
			}
			arts[key] = art
		}

		desc, err := cbor.Marshal(descriptor{Identity: entry.Codec.Identity(), Format: descriptorFormat})
		if err != nil {
			return nil, fmt.Errorf("encode descriptor for %s: %w", entry.Token, err)
		}
		descName := entry.Token + DescriptorSuffix
		descArt, err := writeBlob(store, storage.Join(path, descName), desc)
		if err != nil {
			return nil, err
		}
		arts[descName] = descArt
	}

	return arts, nil
}

// --------------------------------------------------------------------------
// Interface Methods: Load Half
// --------------------------------------------------------------------------

func (c *codecImpl) Load(artifacts storage.ArtifactSet) (any, error) {
	value, err := c.load(artifacts)
	if err != nil {
		loadErrorsTotal.Inc()
		return nil, err
	}
	loadsTotal.Inc()
	return value, nil
}

func (c *codecImpl) load(artifacts storage.ArtifactSet) (any, error) {
	root, err := findRoot(artifacts)
	if err != nil {
		return nil, err
	}

	data, err := readBlob(root)
	if err != nil {
		return nil, err
	}

	// single artifact: the stream cannot contain tokens
	if len(artifacts) == 1 {
		return graph.NewDecoder(c.types, graph.NoRefResolver()).Decode(data)
	}

	descriptors, groups, err := partition(artifacts)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(descriptors))
	for token, desc := range descriptors {
		sub, err := c.registry.ResolveIdentity(desc.Identity)
		if err != nil {
			return nil, err
		}

		group := groups[token]
		if group == nil {
			// a codec may legitimately produce zero data artifacts
			group = storage.ArtifactSet{}
		}
		value, err := sub.Load(group)
		if err != nil {
			return nil, fmt.Errorf("load reference %s (codec %s): %w", token, desc.Identity, err)
		}
		values[token] = value
	}

	return graph.NewDecoder(c.types, graph.MapResolver(values)).Decode(data)
}

// --------------------------------------------------------------------------
// Artifact Set Partitioning
// --------------------------------------------------------------------------

// findRoot locates the reserved root artifact. A single-entry set is its
// own root regardless of name (the single-artifact optimization stores the
// blob directly at the target path, so a rescan may key it differently).
func findRoot(artifacts storage.ArtifactSet) (storage.Artifact, error) {
	if len(artifacts) == 0 {
		return nil, codec.NewError(codec.RetCCorruptArtifactSet, "empty artifact set")
	}
	if len(artifacts) == 1 {
		for _, art := range artifacts {
			return art, nil
		}
	}
	root, ok := artifacts[RootArtifactName]
	if !ok {
		return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "artifact set has no root artifact %q", RootArtifactName)
	}
	return root, nil
}

// partition splits the non-root artifacts of a namespaced set into parsed
// descriptors and per-token data artifact groups, and cross-checks that
// every group belongs to a descriptor.
func partition(artifacts storage.ArtifactSet) (map[string]descriptor, map[string]storage.ArtifactSet, error) {
	descriptors := map[string]descriptor{}
	groups := map[string]storage.ArtifactSet{}

	for name, art := range artifacts {
		if name == RootArtifactName {
			continue
		}

		// a descriptor name is a delimiter-free token plus the suffix; a
		// delimiter before the suffix means the artifact is re-keyed data of
		// a nested dump that itself contained a descriptor
		if token, isDesc := strings.CutSuffix(name, DescriptorSuffix); isDesc && !strings.Contains(token, refDelimiter) {
			data, err := readBlob(art)
			if err != nil {
				return nil, nil, err
			}
			var desc descriptor
			if err := cbor.Unmarshal(data, &desc); err != nil {
				return nil, nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "descriptor %s is not valid CBOR: %v", name, err)
			}
			if desc.Identity == "" {
				return nil, nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "descriptor %s has an empty codec identity", name)
			}
			descriptors[token] = desc
			continue
		}

		// data artifact: split on the first delimiter only, tokens are
		// delimiter-free
		idx := strings.Index(name, refDelimiter)
		if idx < 0 {
			return nil, nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "artifact %q belongs to no reference group", name)
		}
		token, sub := name[:idx], name[idx+1:]
		if groups[token] == nil {
			groups[token] = storage.ArtifactSet{}
		}
		groups[token][sub] = art
	}

	for token := range groups {
		if _, ok := descriptors[token]; !ok {
			return nil, nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "reference %s has data artifacts but no descriptor", token)
		}
	}

	return descriptors, groups, nil
}

// --------------------------------------------------------------------------
// Blob Helpers
// --------------------------------------------------------------------------

// writeBlob writes one blob and guarantees the sink is closed on every path
func writeBlob(store storage.IStorage, path string, data []byte) (storage.Artifact, error) {
	sink, art, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	_, werr := sink.Write(data)
	cerr := sink.Close()
	if werr != nil {
		return nil, fmt.Errorf("write artifact %s: %w", path, werr)
	}
	if cerr != nil {
		return nil, fmt.Errorf("close artifact %s: %w", path, cerr)
	}
	return art, nil
}

// readBlob reads one artifact fully and guarantees the source is closed
func readBlob(art storage.Artifact) ([]byte, error) {
	r, err := art.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", art.URI(), err)
	}
	return data, nil
}
