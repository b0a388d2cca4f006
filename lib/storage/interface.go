package storage

import (
	"io"
	"path"
	"sort"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStorage is the generic interface for artifact storage backends.
// A logical path is an opaque, slash-separated string; the backend decides
// whether it maps to directories, object keys or plain map keys.
type IStorage interface {
	// Open creates a write-once binary sink at the given logical path.
	// It returns the sink and an Artifact handle for what is being written.
	// The handle's metadata (size, checksum) is only valid after the sink
	// has been closed. Closing the sink finalizes the artifact.
	Open(path string) (sink io.WriteCloser, art Artifact, err error)

	// Scan re-opens a previously written artifact namespace. It returns all
	// artifacts stored at or below the given logical path, keyed by their
	// name relative to that path. A path holding a single blob (rather than
	// a namespace) yields a one-entry set keyed by the blob's base name.
	Scan(path string) (ArtifactSet, error)
}

// Artifact is a handle to one named, immutable binary blob in durable
// storage. It can be passed between processes as long as the backing
// storage remains reachable.
type Artifact interface {
	// Open returns a reader for the artifact's content. The caller must
	// close the reader. Implementations verify the content checksum and
	// fail the read if it does not match the checksum recorded at write time.
	Open() (io.ReadCloser, error)

	// URI returns the backend-specific location of the artifact.
	URI() string

	// Size returns the size of the (uncompressed) artifact content in bytes.
	Size() int64

	// Checksum returns the hex-encoded BLAKE3 digest of the artifact content.
	Checksum() string
}

// ArtifactSet is the full collection of artifacts produced by one dump
// operation, addressed by artifact name. Names within one set are unique.
type ArtifactSet map[string]Artifact

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// Join joins logical path elements with the canonical slash separator.
// All backends use posix-style paths regardless of the host OS.
func Join(elem ...string) string {
	return path.Join(elem...)
}

// Clone returns a shallow copy of the set. The artifact handles are shared,
// only the name mapping is copied.
func (s ArtifactSet) Clone() ArtifactSet {
	clone := make(ArtifactSet, len(s))
	for name, art := range s {
		clone[name] = art
	}
	return clone
}

// Names returns the sorted artifact names of the set.
func (s ArtifactSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
