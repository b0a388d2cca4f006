// Package cmd implements the command-line interface for the graphpack
// object graph persistence engine. It provides a hierarchical command
// structure for inspecting, verifying and benchmarking dumps on any
// configured storage backend.
//
// The package is organized into several subpackages:
//
//   - inspect: Show the artifact layout of a dump (root stream, references,
//     codec identities)
//   - verify: Check the structural integrity of a dump without decoding it
//   - perf: Benchmark dump and load throughput against a storage backend
//   - util: Shared utilities for command-line processing and configuration
//     (internal use)
//
// See graphpack -help for a list of all commands.
package cmd
