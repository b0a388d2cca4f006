package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ValentinKolb/graphpack/lib/storage"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICodec is the interface all codecs must satisfy, specialized and generic
// alike. A codec turns one value into an artifact set at a logical path and
// reconstructs the value from such a set later. The shape is identical for
// every codec kind, which is what allows the multiplexing graph codec to
// recurse into specialized codecs without branching on their identity.
type ICodec interface {
	// Identity returns the stable string identity of this codec class. It is
	// written into descriptor artifacts at dump time and resolved back to a
	// codec instance through the registry at load time. Identities must stay
	// stable across releases, they are part of the stored format.
	Identity() string

	// Dump persists the value as a set of named artifacts at the given
	// logical path.
	Dump(store storage.IStorage, path string, value any) (storage.ArtifactSet, error)

	// Load reconstructs the value from a previously dumped artifact set.
	Load(artifacts storage.ArtifactSet) (any, error)
}

// CodecFactory creates a codec instance with default configuration. It is
// invoked by the registry when a descriptor identity is resolved at load time.
type CodecFactory func() ICodec

// IAnalyzerHook is the capability-lookup side of a specialized codec: it
// decides at dump time whether a given runtime value should be handled by
// that codec. Hooks are queried in descending priority order; reporting
// "not applicable" is a normal outcome, never an error.
type IAnalyzerHook interface {
	// Priority orders hooks during resolution, higher values are consulted
	// first.
	Priority() int

	// ValidTypes declares the runtime types this hook may apply to. Entries
	// may be concrete types or interface types. The union of all hooks'
	// valid types forms the known-types set used by the graph encoder to
	// skip analysis of ordinary values.
	ValidTypes() []reflect.Type

	// Analyze inspects the value and returns the codec to use for it. The
	// second return value reports applicability: false means the hook does
	// not apply to this particular value (even if its type matched).
	Analyze(value any) (ICodec, bool)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type for all codec-level failures. It wraps a return
// code (of type RetCode) and a message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("CodecError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new codec Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewErrorf creates a new codec Error with a formatted message.
func NewErrorf(code RetCode, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// IsCode reports whether err is (or wraps) a codec Error with the given code.
func IsCode(err error, code RetCode) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Operation completed successfully.
	RetCCorruptArtifactSet                // 1: Load found a token without a descriptor or required data artifacts.
	RetCCodecResolution                   // 2: A descriptor identity could not be resolved to a registered codec.
	RetCInvariantViolation                // 3: Engine invariant broken (token collision, unresolvable placeholder at dump time).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCCorruptArtifactSet:
		return "CorruptArtifactSet"
	case RetCCodecResolution:
		return "CodecResolution"
	case RetCInvariantViolation:
		return "InvariantViolation"
	default:
		return "Unknown"
	}
}
