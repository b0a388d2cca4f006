package testing

import (
	"fmt"
	"testing"
)

// RunStorageBenchmarks runs write/read benchmarks for an IStorage implementation
func RunStorageBenchmarks(b *testing.B, name string, factory StorageFactory) {
	sizes := []int{1024, 64 * 1024, 1024 * 1024}

	for _, size := range sizes {
		content := make([]byte, size)
		for i := range content {
			content[i] = byte(i)
		}

		b.Run(fmt.Sprintf("%s/Write-%dKB", name, size/1024), func(b *testing.B) {
			store := factory(b)
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				writeArtifact(b, store, fmt.Sprintf("bench/write/%d", i), content)
			}
		})

		b.Run(fmt.Sprintf("%s/Read-%dKB", name, size/1024), func(b *testing.B) {
			store := factory(b)
			art := writeArtifact(b, store, "bench/read", content)
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				readArtifact(b, art)
			}
		})
	}
}
