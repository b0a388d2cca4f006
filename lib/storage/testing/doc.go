// Package testing provides a shared conformance test suite and benchmarks
// for IStorage implementations. Every storage backend runs the same suite
// from its own package test file, which keeps the behavioral contract of
// the storage interface in one place.
package testing
