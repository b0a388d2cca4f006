package dataset

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/codec/graphcodec"
	"github.com/ValentinKolb/graphpack/lib/codec/tensor"
	"github.com/ValentinKolb/graphpack/lib/graph"
	"github.com/ValentinKolb/graphpack/lib/storage/memstore"
)

func sample() *Dataset {
	return &Dataset{
		Features: &Tensor{Shape: []int64{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}},
		Labels:   &Tensor{Shape: []int64{2}, Data: []float64{0, 1}},
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	store := memstore.NewMemStorage()
	c := New()

	original := sample()
	arts, err := c.Dump(store, "data/train", original)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	// two tensors, two artifacts each
	if len(arts) != 4 {
		t.Fatalf("Expected 4 artifacts, got %v", arts.Names())
	}

	out, err := c.Load(arts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := out.(*Dataset); !reflect.DeepEqual(got, original) {
		t.Errorf("Round trip mismatch:\nOriginal: %+v\nResult:   %+v", original, got)
	}
}

func TestDatasetWithoutLabels(t *testing.T) {
	store := memstore.NewMemStorage()
	c := New()

	original := &Dataset{Features: &Tensor{Shape: []int64{1, 2}, Data: []float64{1, 2}}}
	arts, err := c.Dump(store, "data/unlabeled", original)
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("Expected 2 artifacts without labels, got %v", arts.Names())
	}

	out, err := c.Load(arts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := out.(*Dataset); got.Labels != nil {
		t.Errorf("Expected nil labels, got %+v", got.Labels)
	}
}

func TestRowMismatch(t *testing.T) {
	store := memstore.NewMemStorage()

	bad := &Dataset{
		Features: &Tensor{Shape: []int64{2, 1}, Data: []float64{1, 2}},
		Labels:   &Tensor{Shape: []int64{3}, Data: []float64{0, 1, 2}},
	}
	if _, err := New().Dump(store, "data/bad", bad); !codec.IsCode(err, codec.RetCInvariantViolation) {
		t.Errorf("Expected RetCInvariantViolation, got: %v", err)
	}
}

func TestHookPriorityOverTensor(t *testing.T) {
	registry := codec.NewRegistry()
	tensor.Register(registry)
	Register(registry)

	c, ok := registry.Resolve(sample())
	if !ok {
		t.Fatal("Expected a hook to claim *Dataset")
	}
	if c.Identity() != CodecIdentity {
		t.Errorf("Expected the dataset codec to win, got %s", c.Identity())
	}
}

// TestNestedMultiplexing dumps a graph holding a dataset through the graph
// codec: the dataset's prefixed names must survive the token prefixing and
// reassemble across both levels.
func TestNestedMultiplexing(t *testing.T) {
	registry := codec.NewRegistry()
	tensor.Register(registry)
	Register(registry)

	type experiment struct {
		Name  string
		Train *Dataset
	}

	types := graph.NewTypeRegistry()
	types.Register(experiment{})
	graphcodec.Register(registry, types)

	gc := graphcodec.New(registry, types)
	store := memstore.NewMemStorage()

	original := &experiment{Name: "exp-1", Train: sample()}
	if _, err := gc.Dump(store, "runs/exp-1", original); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	// reassemble purely from a storage rescan
	scanned, err := store.Scan("runs/exp-1")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	out, err := gc.Load(scanned)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := out.(*experiment)
	if got.Name != "exp-1" {
		t.Errorf("Expected name exp-1, got %q", got.Name)
	}
	if !reflect.DeepEqual(got.Train, original.Train) {
		t.Errorf("Nested dataset corrupted:\nOriginal: %+v\nResult:   %+v", original.Train, got.Train)
	}
}
