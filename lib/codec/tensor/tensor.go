package tensor

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/storage"
)

// Tensor is a dense n-dimensional float64 array in row-major layout.
// Data holds exactly the product of Shape elements; a zero-dimensional
// tensor (empty Shape) is a scalar with one element.
type Tensor struct {
	Shape []int64
	Data  []float64
}

// NumElements returns the element count implied by the shape
func (t *Tensor) NumElements() int64 {
	n := int64(1)
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// At returns the element at the given row-major indices
func (t *Tensor) At(indices ...int64) float64 {
	pos := int64(0)
	for i, idx := range indices {
		pos = pos*t.Shape[i] + idx
	}
	return t.Data[pos]
}

const (
	// CodecIdentity is the stable identity of the raw tensor codec.
	CodecIdentity = "graphpack.tensor.v1"

	shapeArtifactName = "shape.bin"
	dataArtifactName  = "data.bin"
)

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// New creates the raw tensor codec. It stores a tensor as two artifacts:
// the shape as big-endian int64 values and the data as big-endian float64
// bits, both without framing. That keeps the data artifact mappable and
// exactly numElements*8 bytes long, which Load cross-checks against the
// shape.
func New() codec.ICodec {
	return &codecImpl{}
}

// Register wires the tensor codec and its analyzer hook into a registry
func Register(registry *codec.Registry) {
	registry.RegisterCodec(func() codec.ICodec { return New() })
	registry.RegisterHook(&hookImpl{})
}

type codecImpl struct{}

func (c *codecImpl) Identity() string {
	return CodecIdentity
}

func (c *codecImpl) Dump(store storage.IStorage, path string, value any) (storage.ArtifactSet, error) {
	t, ok := value.(*Tensor)
	if !ok {
		return nil, codec.NewErrorf(codec.RetCInvariantViolation, "tensor codec cannot dump %T", value)
	}
	if int64(len(t.Data)) != t.NumElements() {
		return nil, codec.NewErrorf(codec.RetCInvariantViolation,
			"tensor shape %v implies %d elements, data has %d", t.Shape, t.NumElements(), len(t.Data))
	}

	shape := make([]byte, 8*len(t.Shape))
	for i, dim := range t.Shape {
		binary.BigEndian.PutUint64(shape[8*i:], uint64(dim))
	}

	data := make([]byte, 8*len(t.Data))
	for i, v := range t.Data {
		binary.BigEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}

	arts := storage.ArtifactSet{}
	for name, payload := range map[string][]byte{shapeArtifactName: shape, dataArtifactName: data} {
		sink, art, err := store.Open(storage.Join(path, name))
		if err != nil {
			return nil, err
		}
		if _, err := sink.Write(payload); err != nil {
			sink.Close()
			return nil, err
		}
		if err := sink.Close(); err != nil {
			return nil, err
		}
		arts[name] = art
	}
	return arts, nil
}

func (c *codecImpl) Load(artifacts storage.ArtifactSet) (any, error) {
	shapeRaw, err := readArtifact(artifacts, shapeArtifactName)
	if err != nil {
		return nil, err
	}
	dataRaw, err := readArtifact(artifacts, dataArtifactName)
	if err != nil {
		return nil, err
	}

	if len(shapeRaw)%8 != 0 {
		return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "shape artifact has odd length %d", len(shapeRaw))
	}

	t := &Tensor{Shape: make([]int64, len(shapeRaw)/8)}
	for i := range t.Shape {
		t.Shape[i] = int64(binary.BigEndian.Uint64(shapeRaw[8*i:]))
		if t.Shape[i] < 0 {
			return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "negative dimension %d in shape", t.Shape[i])
		}
	}

	want := t.NumElements() * 8
	if int64(len(dataRaw)) != want {
		return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet,
			"data artifact has %d bytes, shape %v requires %d", len(dataRaw), t.Shape, want)
	}

	t.Data = make([]float64, len(dataRaw)/8)
	for i := range t.Data {
		t.Data[i] = math.Float64frombits(binary.BigEndian.Uint64(dataRaw[8*i:]))
	}
	return t, nil
}

func readArtifact(artifacts storage.ArtifactSet, name string) ([]byte, error) {
	art, ok := artifacts[name]
	if !ok {
		return nil, codec.NewErrorf(codec.RetCCorruptArtifactSet, "tensor dump is missing %s", name)
	}
	r, err := art.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --------------------------------------------------------------------------
// Analyzer Hook
// --------------------------------------------------------------------------

// hookImpl claims every *Tensor for the raw tensor codec
type hookImpl struct{}

func (h *hookImpl) Priority() int { return 50 }

func (h *hookImpl) ValidTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(&Tensor{})}
}

func (h *hookImpl) Analyze(value any) (codec.ICodec, bool) {
	if _, ok := value.(*Tensor); !ok {
		return nil, false
	}
	return New(), true
}
