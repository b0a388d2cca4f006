package fsstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/graphpack/lib/storage"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// zstdMagic is the frame magic number of the zstd format. It is used to
// detect compressed artifacts when re-opening a stored namespace, so that a
// store configured without compression can still read back compressed sets
// (and vice versa).
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Option configures a filesystem storage instance.
type Option func(*storeImpl)

// WithCompression enables transparent zstd compression for all artifacts
// written through this store. Checksums and sizes always refer to the
// uncompressed content, so a set written with compression round-trips
// identically to one written without.
func WithCompression() Option {
	return func(s *storeImpl) {
		s.compress = true
	}
}

// NewFSStorage creates a storage backend that maps logical paths to files
// below baseDir. Namespaced dumps become directories, single-blob dumps
// become plain files.
func NewFSStorage(baseDir string, opts ...Option) storage.IStorage {
	s := &storeImpl{baseDir: baseDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeImpl implements storage.IStorage on the local filesystem
type storeImpl struct {
	baseDir  string
	compress bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Open(path string) (io.WriteCloser, storage.Artifact, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create artifact directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, nil, fmt.Errorf("create artifact %s: %w", path, err)
	}

	art := &artifactImpl{uri: full}
	sink := &sinkImpl{file: f, hasher: blake3.New(), art: art}

	if s.compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("create zstd writer: %w", err)
		}
		sink.zw = zw
	}

	return sink, art, nil
}

func (s *storeImpl) Scan(path string) (storage.ArtifactSet, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	// A single blob stored directly at the path (see the single-artifact
	// optimization of the graph codec).
	if !info.IsDir() {
		art, err := reopenArtifact(full)
		if err != nil {
			return nil, err
		}
		return storage.ArtifactSet{filepath.Base(full): art}, nil
	}

	arts := storage.ArtifactSet{}
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(full, p)
		if err != nil {
			return err
		}

		// Artifact names are flat: nested sub-dump directories map back to
		// their token-prefixed names by joining path elements with the
		// reference delimiter.
		name := strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")

		art, err := reopenArtifact(p)
		if err != nil {
			return err
		}
		arts[name] = art
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return arts, nil
}

// --------------------------------------------------------------------------
// Artifact Handle
// --------------------------------------------------------------------------

// artifactImpl implements storage.Artifact for a file below the base dir.
// Its metadata fields are populated when the associated sink is closed (for
// freshly written artifacts) or by reopenArtifact (for scanned ones).
type artifactImpl struct {
	uri        string
	size       int64
	checksum   string
	compressed bool
}

func (a *artifactImpl) URI() string      { return a.uri }
func (a *artifactImpl) Size() int64      { return a.size }
func (a *artifactImpl) Checksum() string { return a.checksum }

func (a *artifactImpl) Open() (io.ReadCloser, error) {
	f, err := os.Open(a.uri)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", a.uri, err)
	}

	var r io.Reader = f
	var zr *zstd.Decoder
	if a.compressed {
		zr, err = zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open zstd artifact %s: %w", a.uri, err)
		}
		r = zr
	}

	return &verifyReader{
		r:        r,
		file:     f,
		zr:       zr,
		hasher:   blake3.New(),
		expected: a.checksum,
		uri:      a.uri,
	}, nil
}

// reopenArtifact rebuilds the artifact handle (size, checksum, compression
// flag) for an existing file by reading it once.
func reopenArtifact(full string) (*artifactImpl, error) {
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", full, err)
	}
	defer f.Close()

	head := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read artifact %s: %w", full, err)
	}
	compressed := n == len(zstdMagic) && bytes.Equal(head, zstdMagic)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek artifact %s: %w", full, err)
	}

	var r io.Reader = f
	if compressed {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd artifact %s: %w", full, err)
		}
		defer zr.Close()
		r = zr
	}

	hasher := blake3.New()
	size, err := io.Copy(hasher, r)
	if err != nil {
		return nil, fmt.Errorf("hash artifact %s: %w", full, err)
	}

	return &artifactImpl{
		uri:        full,
		size:       size,
		checksum:   hex.EncodeToString(hasher.Sum(nil)),
		compressed: compressed,
	}, nil
}

// --------------------------------------------------------------------------
// Write Sink
// --------------------------------------------------------------------------

// sinkImpl is the write-once sink returned by Open. It hashes the
// uncompressed content while writing and finalizes the artifact handle on
// Close.
type sinkImpl struct {
	file   *os.File
	zw     *zstd.Encoder
	hasher *blake3.Hasher
	art    *artifactImpl
	size   int64
	closed bool
}

func (s *sinkImpl) Write(p []byte) (int, error) {
	var n int
	var err error
	if s.zw != nil {
		n, err = s.zw.Write(p)
	} else {
		n, err = s.file.Write(p)
	}
	if n > 0 {
		// the hasher never returns an error
		_, _ = s.hasher.Write(p[:n])
		s.size += int64(n)
	}
	return n, err
}

func (s *sinkImpl) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.zw != nil {
		if err := s.zw.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.art.size = s.size
	s.art.checksum = hex.EncodeToString(s.hasher.Sum(nil))
	s.art.compressed = s.zw != nil

	return firstErr
}

// --------------------------------------------------------------------------
// Read-Side Checksum Verification
// --------------------------------------------------------------------------

// verifyReader hashes content as it is read and compares the digest against
// the recorded checksum once the stream is exhausted.
type verifyReader struct {
	r        io.Reader
	file     *os.File
	zr       *zstd.Decoder
	hasher   *blake3.Hasher
	expected string
	uri      string
	verified bool
}

func (v *verifyReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		_, _ = v.hasher.Write(p[:n])
	}
	if err == io.EOF && !v.verified {
		v.verified = true
		if got := hex.EncodeToString(v.hasher.Sum(nil)); got != v.expected {
			return n, fmt.Errorf("artifact %s corrupted: checksum mismatch (expected %s, got %s)", v.uri, v.expected, got)
		}
	}
	return n, err
}

func (v *verifyReader) Close() error {
	if v.zr != nil {
		v.zr.Close()
	}
	return v.file.Close()
}
