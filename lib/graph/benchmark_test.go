package graph

import (
	"fmt"
	"testing"
)

// benchGraph builds a synthetic value graph with the given fan-out
func benchGraph(n int) *shape {
	root := &shape{
		Name:   "root",
		Center: point{X: 0.5, Y: 0.5},
		Tags:   map[string]int{},
	}
	for i := 0; i < n; i++ {
		root.Vertices = append(root.Vertices, point{X: float64(i), Y: float64(-i)})
		root.Tags[fmt.Sprintf("tag-%d", i)] = i
	}
	return root
}

func BenchmarkEncode(b *testing.B) {
	types := newTestRegistry()

	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("fanout-%d", n), func(b *testing.B) {
			value := benchGraph(n)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := NewEncoder(types).Encode(value); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecode(b *testing.B) {
	types := newTestRegistry()

	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("fanout-%d", n), func(b *testing.B) {
			data, _, err := NewEncoder(types).Encode(benchGraph(n))
			if err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := NewDecoder(types, NoRefResolver()).Decode(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
