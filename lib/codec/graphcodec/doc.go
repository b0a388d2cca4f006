// Package graphcodec implements the generic multiplexing codec: the
// fallback that can persist any registered value graph, and the glue that
// lets specialized codecs take over individual sub-values.
//
// Dump encodes the value graph structurally (see lib/graph). Whenever the
// interception hook claims a sub-value for a specialized codec, the stream
// carries only a freshly minted reference token; the sub-value itself is
// dumped out-of-band by its codec under the token's sub-path. All resulting
// artifacts are folded into one flat namespace:
//
//	graph.bin             root byte stream
//	{token}_{name}        each artifact of the reference's own dump
//	{token}.codec         CBOR descriptor naming the reference's codec
//
// Because tokens are UUIDs they contain no "_", so the loader can split
// every artifact name on the first delimiter and reassemble each
// reference's original artifact set exactly. A dump without references
// skips the namespace entirely and stores the root stream as a single
// artifact directly at the target path.
//
// Load is the mirror image: locate the root, partition the remaining
// artifacts into descriptors and per-token groups, load every reference
// through the codec its descriptor names, then decode the root stream with
// a resolver that substitutes the loaded values at their token positions.
//
// Key Components:
//
//   - New / Register: Construct the codec over a codec.Registry and a
//     graph.TypeRegistry; Register additionally makes the codec resolvable
//     by identity for nested graph dumps.
//
//   - Verify: Structural completeness check of a dumped artifact set that
//     does not decode the value graph.
package graphcodec
