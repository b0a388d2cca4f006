package dataset

import (
	"reflect"
	"strings"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/codec/tensor"
	"github.com/ValentinKolb/graphpack/lib/storage"
)

// Dataset pairs a feature tensor with optional per-row labels. The first
// dimension of both tensors is the row count.
type Dataset struct {
	Features *Tensor
	Labels   *Tensor
}

// Tensor aliases the tensor package's type so callers building datasets
// need only this import.
type Tensor = tensor.Tensor

// Rows returns the number of rows in the dataset
func (d *Dataset) Rows() int64 {
	if d.Features == nil || len(d.Features.Shape) == 0 {
		return 0
	}
	return d.Features.Shape[0]
}

const (
	// CodecIdentity is the stable identity of the dataset codec.
	CodecIdentity = "graphpack.dataset.v1"

	featuresPrefix = "features"
	labelsPrefix   = "labels"
	delimiter      = "_"
)

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// New creates the dataset codec. It does not serialize anything itself:
// each member tensor is dumped by the tensor codec under its own sub-path,
// and the resulting artifact names are folded into the dataset's namespace
// by prefixing. This is the same prefix re-keying the graph codec applies
// to reference tokens, one level further down.
func New() codec.ICodec {
	return &codecImpl{tensors: tensor.New()}
}

// Register wires the dataset codec and its analyzer hook into a registry
func Register(registry *codec.Registry) {
	registry.RegisterCodec(func() codec.ICodec { return New() })
	registry.RegisterHook(&hookImpl{})
}

type codecImpl struct {
	tensors codec.ICodec
}

func (c *codecImpl) Identity() string {
	return CodecIdentity
}

func (c *codecImpl) Dump(store storage.IStorage, path string, value any) (storage.ArtifactSet, error) {
	d, ok := value.(*Dataset)
	if !ok {
		return nil, codec.NewErrorf(codec.RetCInvariantViolation, "dataset codec cannot dump %T", value)
	}
	if d.Features == nil {
		return nil, codec.NewError(codec.RetCInvariantViolation, "dataset has no feature tensor")
	}
	if d.Labels != nil && len(d.Labels.Shape) > 0 && len(d.Features.Shape) > 0 &&
		d.Labels.Shape[0] != d.Features.Shape[0] {
		return nil, codec.NewErrorf(codec.RetCInvariantViolation,
			"label rows (%d) do not match feature rows (%d)", d.Labels.Shape[0], d.Features.Shape[0])
	}

	arts := storage.ArtifactSet{}

	members := map[string]*Tensor{featuresPrefix: d.Features}
	if d.Labels != nil {
		members[labelsPrefix] = d.Labels
	}
	for prefix, member := range members {
		sub, err := c.tensors.Dump(store, storage.Join(path, prefix), member)
		if err != nil {
			return nil, err
		}
		for name, art := range sub {
			arts[prefix+delimiter+name] = art
		}
	}
	return arts, nil
}

func (c *codecImpl) Load(artifacts storage.ArtifactSet) (any, error) {
	groups := map[string]storage.ArtifactSet{}
	for name, art := range artifacts {
		idx := strings.Index(name, delimiter)
		if idx < 0 {
			return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "artifact %q belongs to no dataset member", name)
		}
		prefix, sub := name[:idx], name[idx+1:]
		if prefix != featuresPrefix && prefix != labelsPrefix {
			return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "unknown dataset member %q", prefix)
		}
		if groups[prefix] == nil {
			groups[prefix] = storage.ArtifactSet{}
		}
		groups[prefix][sub] = art
	}

	if groups[featuresPrefix] == nil {
		return nil, codec.NewError(codec.RetCCorruptArtifactSet, "dataset dump has no feature tensor")
	}

	d := &Dataset{}
	features, err := c.tensors.Load(groups[featuresPrefix])
	if err != nil {
		return nil, err
	}
	d.Features = features.(*Tensor)

	if labelArts := groups[labelsPrefix]; labelArts != nil {
		labels, err := c.tensors.Load(labelArts)
		if err != nil {
			return nil, err
		}
		d.Labels = labels.(*Tensor)
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Analyzer Hook
// --------------------------------------------------------------------------

// hookImpl claims every *Dataset for the dataset codec. It outranks the
// tensor hook so a dataset is never torn apart into two loose tensor
// references.
type hookImpl struct{}

func (h *hookImpl) Priority() int { return 60 }

func (h *hookImpl) ValidTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(&Dataset{})}
}

func (h *hookImpl) Analyze(value any) (codec.ICodec, bool) {
	if _, ok := value.(*Dataset); !ok {
		return nil, false
	}
	return New(), true
}
