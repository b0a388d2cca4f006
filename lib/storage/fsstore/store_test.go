package fsstore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/graphpack/lib/storage"
	storagetesting "github.com/ValentinKolb/graphpack/lib/storage/testing"
)

func Test(t *testing.T) {
	storagetesting.RunStorageTests(t, "FSStore", func(t testing.TB) storage.IStorage {
		return NewFSStorage(t.TempDir())
	})

	storagetesting.RunStorageTests(t, "FSStoreCompressed", func(t testing.TB) storage.IStorage {
		return NewFSStorage(t.TempDir(), WithCompression())
	})
}

func Benchmark(b *testing.B) {
	storagetesting.RunStorageBenchmarks(b, "FSStore", func(t testing.TB) storage.IStorage {
		return NewFSStorage(t.TempDir())
	})
}

// TestChecksumVerification checks that flipping a byte on disk is detected
// when the artifact is read back.
func TestChecksumVerification(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStorage(dir)

	sink, art, err := store.Open("obj/blob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Write([]byte("original content, long enough to corrupt")); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// corrupt the stored file
	full := filepath.Join(dir, "obj", "blob")
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatal(err)
	}
	data[10] ^= 0xff
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := art.Open()
	if err != nil {
		t.Fatalf("Open should succeed, verification happens on read: %v", err)
	}
	defer r.Close()

	if _, err := io.ReadAll(r); err == nil {
		t.Error("Expected checksum mismatch error when reading corrupted artifact")
	}
}

// TestCompressionRoundTrip checks that a compressed store produces smaller
// files for compressible content and that an uncompressed store instance can
// still read them back.
func TestCompressionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStorage(dir, WithCompression())

	content := bytes.Repeat([]byte("abcdefgh"), 8192)

	sink, art, err := store.Open("obj/compressed")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	if art.Size() != int64(len(content)) {
		t.Errorf("Size must report uncompressed bytes: expected %d, got %d", len(content), art.Size())
	}

	info, err := os.Stat(filepath.Join(dir, "obj", "compressed"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(content)) {
		t.Errorf("Expected compressed file to be smaller than %d bytes, got %d", len(content), info.Size())
	}

	// read back through a store created without compression
	plain := NewFSStorage(dir)
	arts, err := plain.Scan("obj/compressed")
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range arts {
		r, err := a.Open()
		if err != nil {
			t.Fatal(err)
		}
		got, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, content) {
			t.Error("Content mismatch after compressed round trip")
		}
	}
}
