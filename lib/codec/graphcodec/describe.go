package graphcodec

import (
	"sort"

	"github.com/ValentinKolb/graphpack/lib/storage"
)

// Summary describes the layout of a dumped artifact set without decoding
// the value graph.
type Summary struct {
	// SingleArtifact is true for dumps that used the single-artifact
	// optimization.
	SingleArtifact bool

	// RootSize is the size of the root byte stream in bytes.
	RootSize int64

	// References lists all out-of-band references, sorted by token.
	References []ReferenceSummary
}

// ReferenceSummary describes one reference group of a dump.
type ReferenceSummary struct {
	Token     string
	Identity  string
	Artifacts []string
	Bytes     int64
}

// Describe partitions a dumped artifact set and reports its layout. Like
// Verify it never decodes the root stream, so it works on dumps whose
// struct types are unknown to this process.
func Describe(artifacts storage.ArtifactSet) (*Summary, error) {
	root, err := findRoot(artifacts)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SingleArtifact: len(artifacts) == 1,
		RootSize:       root.Size(),
	}
	if summary.SingleArtifact {
		return summary, nil
	}

	descriptors, groups, err := partition(artifacts)
	if err != nil {
		return nil, err
	}

	for token, desc := range descriptors {
		ref := ReferenceSummary{Token: token, Identity: desc.Identity}
		for name, art := range groups[token] {
			ref.Artifacts = append(ref.Artifacts, name)
			ref.Bytes += art.Size()
		}
		sort.Strings(ref.Artifacts)
		summary.References = append(summary.References, ref)
	}
	sort.Slice(summary.References, func(i, j int) bool {
		return summary.References[i].Token < summary.References[j].Token
	})
	return summary, nil
}
