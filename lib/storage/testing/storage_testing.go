package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/ValentinKolb/graphpack/lib/storage"
)

// StorageFactory is a function that creates a fresh, empty instance of an
// IStorage implementation
type StorageFactory func(t testing.TB) storage.IStorage

// RunStorageTests runs a conformance test suite for an IStorage implementation.
func RunStorageTests(t *testing.T, name string, factory StorageFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("WriteRead", func(t *testing.T) {
			testWriteRead(t, factory(t))
		})

		t.Run("ArtifactMetadata", func(t *testing.T) {
			testArtifactMetadata(t, factory(t))
		})

		t.Run("ScanSingleBlob", func(t *testing.T) {
			testScanSingleBlob(t, factory(t))
		})

		t.Run("ScanNamespace", func(t *testing.T) {
			testScanNamespace(t, factory(t))
		})

		t.Run("ScanMissing", func(t *testing.T) {
			testScanMissing(t, factory(t))
		})

		t.Run("EmptyArtifact", func(t *testing.T) {
			testEmptyArtifact(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// writeArtifact writes content at the given path and returns the finalized handle
func writeArtifact(t testing.TB, store storage.IStorage, path string, content []byte) storage.Artifact {
	t.Helper()

	sink, art, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	if _, err := sink.Write(content); err != nil {
		t.Fatalf("Write(%s) failed: %v", path, err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close(%s) failed: %v", path, err)
	}
	return art
}

// readArtifact reads an artifact back to the end and closes it
func readArtifact(t testing.TB, art storage.Artifact) []byte {
	t.Helper()

	r, err := art.Open()
	if err != nil {
		t.Fatalf("Artifact.Open() failed: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading artifact failed: %v", err)
	}
	return data
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, store storage.IStorage) {
	content := []byte("some binary artifact content")
	art := writeArtifact(t, store, "objects/model", content)

	got := readArtifact(t, art)
	if !bytes.Equal(got, content) {
		t.Errorf("Expected content %q, got %q", content, got)
	}
}

func testArtifactMetadata(t *testing.T, store storage.IStorage) {
	content := []byte("0123456789")
	art := writeArtifact(t, store, "objects/meta", content)

	if art.Size() != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), art.Size())
	}
	if art.Checksum() == "" {
		t.Error("Expected non-empty checksum after Close")
	}
	if art.URI() == "" {
		t.Error("Expected non-empty URI")
	}

	// the same content must hash to the same checksum
	art2 := writeArtifact(t, store, "objects/meta2", content)
	if art.Checksum() != art2.Checksum() {
		t.Errorf("Expected identical checksums for identical content, got %s and %s", art.Checksum(), art2.Checksum())
	}
}

func testScanSingleBlob(t *testing.T, store storage.IStorage) {
	content := []byte("single blob stored directly at the path")
	writeArtifact(t, store, "objects/single", content)

	arts, err := store.Scan("objects/single")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("Expected exactly one artifact, got %d (%v)", len(arts), arts.Names())
	}
	for _, art := range arts {
		if got := readArtifact(t, art); !bytes.Equal(got, content) {
			t.Errorf("Expected content %q, got %q", content, got)
		}
	}
}

func testScanNamespace(t *testing.T, store storage.IStorage) {
	// layout of a namespaced dump: root blob, descriptor, nested sub-dump
	files := map[string][]byte{
		"objects/ns/graph.bin":          []byte("root"),
		"objects/ns/token1.codec":       []byte("descriptor"),
		"objects/ns/token1/data.bin":    []byte("sub artifact"),
		"objects/ns/token1/inner/x.bin": []byte("nested sub artifact"),
	}
	for path, content := range files {
		writeArtifact(t, store, path, content)
	}

	arts, err := store.Scan("objects/ns")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	expected := map[string][]byte{
		"graph.bin":          []byte("root"),
		"token1.codec":       []byte("descriptor"),
		"token1_data.bin":    []byte("sub artifact"),
		"token1_inner_x.bin": []byte("nested sub artifact"),
	}

	if len(arts) != len(expected) {
		t.Fatalf("Expected %d artifacts, got %d (%v)", len(expected), len(arts), arts.Names())
	}
	for name, content := range expected {
		art, ok := arts[name]
		if !ok {
			t.Errorf("Expected artifact %q in scanned set, names: %v", name, arts.Names())
			continue
		}
		if got := readArtifact(t, art); !bytes.Equal(got, content) {
			t.Errorf("Artifact %q: expected content %q, got %q", name, content, got)
		}
	}
}

func testScanMissing(t *testing.T, store storage.IStorage) {
	if _, err := store.Scan("does/not/exist"); err == nil {
		t.Error("Expected error when scanning a path with no artifacts")
	}
}

func testEmptyArtifact(t *testing.T, store storage.IStorage) {
	art := writeArtifact(t, store, "objects/empty", nil)

	if art.Size() != 0 {
		t.Errorf("Expected size 0, got %d", art.Size())
	}
	if got := readArtifact(t, art); len(got) != 0 {
		t.Errorf("Expected empty content, got %d bytes", len(got))
	}
}
