// Package storage defines the artifact storage contract used by all codecs.
// It abstracts durable binary storage behind two small interfaces: IStorage,
// which turns a logical path into a write-once sink, and Artifact, a handle
// to one named immutable blob that can be read back later, possibly in a
// different process.
//
// The package focuses on:
//   - Keeping the storage surface minimal (open for write, open for read)
//   - Content integrity via BLAKE3 checksums recorded at write time
//   - Backend-agnostic logical paths (posix-style, slash separated)
//
// Key Components:
//
//   - IStorage: Core interface all storage backends must satisfy.
//
//   - Artifact: Immutable handle with location, size and checksum metadata.
//
//   - ArtifactSet: Mapping from artifact name to Artifact, scoped to one
//     logical path. This is the durable unit produced by a dump operation
//     and consumed by a load operation.
//
// Implementations are provided by the fsstore (local filesystem, optional
// zstd compression) and memstore (in-memory, for tests and benchmarks)
// sub-packages. The testing sub-package contains a conformance suite that
// every implementation must pass.
//
// Thread Safety:
//
//	Storage implementations are safe for concurrent use on disjoint paths.
//	Writing the same path concurrently from multiple goroutines is undefined.
package storage
