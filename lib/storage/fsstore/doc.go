// Package fsstore implements artifact storage on the local filesystem.
//
// Logical paths map to files below a base directory: a namespaced dump
// becomes a directory tree, a single-blob dump becomes a plain file. Scan
// flattens a directory tree back into an artifact set by joining the path
// elements of nested files with the reference delimiter, which exactly
// reverses how the graph codec lays out token sub-dumps.
//
// Artifacts can optionally be written zstd-compressed (WithCompression).
// Compression is detected on read via the zstd frame magic, so compressed
// and uncompressed sets can be read by the same store instance. Sizes and
// BLAKE3 checksums always refer to the uncompressed content; checksums are
// verified when an artifact is read to the end.
package fsstore
