package graphcodec

import (
	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/storage"
)

// Verify checks the structural integrity of a dumped artifact set without
// decoding the value graph:
//
//   - the root artifact is present
//   - every non-root artifact is either a descriptor or belongs to a
//     reference group that has a descriptor
//   - every descriptor parses and names a codec the registry can resolve
//
// It deliberately does not decode the root stream, so it works on dumps
// whose struct types are not registered in this process (e.g. a CLI
// inspecting a foreign dump). A stream token whose artifacts were deleted
// entirely (descriptor and data) is therefore not detectable here; it
// surfaces as a resolution error on Load.
func Verify(registry *codec.Registry, artifacts storage.ArtifactSet) error {
	if _, err := findRoot(artifacts); err != nil {
		return err
	}
	if len(artifacts) == 1 {
		return nil
	}

	descriptors, _, err := partition(artifacts)
	if err != nil {
		return err
	}

	for token, desc := range descriptors {
		if _, err := registry.ResolveIdentity(desc.Identity); err != nil {
			return codec.NewErrorf(codec.RetCCodecResolution,
				"reference %s names unresolvable codec %q", token, desc.Identity)
		}
	}
	return nil
}
