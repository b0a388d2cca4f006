// Package codec defines the codec contract of graphpack and the registry
// that connects runtime values to codecs.
//
// A codec (ICodec) is a dump/load strategy pair for one class of values:
// Dump turns a value into a set of named artifacts at a logical storage
// path, Load reconstructs the value from such a set. Specialized codecs
// (see the tensor and dataset sub-packages) provide dedicated encodings for
// particular types; the graphcodec sub-package provides the generic,
// fully structural fallback that can persist arbitrary value graphs and
// splices specialized codecs in via reference tokens.
//
// Key Components:
//
//   - ICodec: Core interface every codec implements. The uniform shape is
//     what makes multiplexing recursive: a codec never needs to know what
//     kind of codec it delegates to.
//
//   - IAnalyzerHook: Dump-time capability lookup. Hooks declare the types
//     they may apply to and decide per value whether their codec should
//     take over. "Not applicable" is a normal outcome and is never
//     surfaced as an error.
//
//   - Registry: Holds codec factories keyed by stable identity strings and
//     the prioritized hook list. Identities are written into descriptor
//     artifacts at dump time and resolved back through the registry at
//     load time - a static, registration-based replacement for resolving
//     codec classes by reflective name lookup. The registry is populated
//     at process start and read-only afterwards.
//
//   - Error/RetCode: Error taxonomy for codec-level failures (corrupt
//     artifact sets, unresolvable identities, engine invariant
//     violations). Storage failures are propagated as-is and are not part
//     of this taxonomy.
//
// Thread Safety:
//
//	A Registry is safe for concurrent reads after registration has
//	completed. Concurrent dump/load operations share only the registry and
//	the known-types snapshot, both read-only.
package codec
