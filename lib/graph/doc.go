// Package graph implements the generic structural serialization of
// arbitrary Go value graphs, extended with the interception hook that makes
// codec multiplexing possible.
//
// The encoder walks a value graph with reflection and produces a compact,
// self-describing binary stream: primitives, strings, byte slices, slices,
// arrays, maps, registered structs and pointers. Before any sub-value is
// structurally encoded, an optional interception hook is consulted; if a
// specialized codec claims the value, the encoder emits a lightweight
// reference token in its place and records (token, codec, value) in the
// reference table. The stream therefore never contains a fully encoded
// specialized sub-value.
//
// The decoder reverses the walk in a single pass, substituting each
// reference token with the value produced by a caller-supplied resolver at
// the exact position where the token occurs.
//
// Shared structure: pointers (and maps reached through them) are memoized
// by identity during encoding and written as back-references, so a value
// reachable via multiple paths is encoded once and reconstructed as one
// shared instance. Pointer cycles through registered structs are supported.
//
// Struct types must be registered with a TypeRegistry before encoding;
// the stream stores the registered name and the decoder reconstructs the
// concrete type through the same registry. This mirrors how codec
// identities are resolved: a static, registration-based lookup instead of
// reflective import-by-name.
//
// Key Components:
//
//   - Encoder / Decoder: One instance per operation, not reusable. The only
//     state shared between concurrent operations (type registry,
//     known-types set) is read-only.
//
//   - ReferenceTable: Per-dump mapping from freshly minted UUID tokens to
//     intercepted values and their codecs.
//
//   - Resolver: Load-side token-to-value function; total over the stream's
//     tokens, unknown tokens are a hard error.
package graph
