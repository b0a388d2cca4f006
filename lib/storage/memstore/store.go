package memstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/graphpack/lib/storage"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/zeebo/blake3"
)

// NewMemStorage creates a volatile in-memory storage backend. It is mainly
// used by tests and the perf command, but also works as a scratch store for
// verifying artifact sets without touching the disk.
func NewMemStorage() storage.IStorage {
	return &storeImpl{blobs: xsync.NewMapOf[string, *blob]()}
}

// storeImpl implements storage.IStorage backed by a concurrent map
type storeImpl struct {
	blobs *xsync.MapOf[string, *blob]
}

// blob is one stored artifact: content plus the metadata computed on close
type blob struct {
	data     []byte
	checksum string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Open(path string) (io.WriteCloser, storage.Artifact, error) {
	art := &artifactImpl{store: s, path: path}
	return &sinkImpl{store: s, art: art}, art, nil
}

func (s *storeImpl) Scan(path string) (storage.ArtifactSet, error) {
	arts := storage.ArtifactSet{}

	// single blob stored directly at the path
	if b, ok := s.blobs.Load(path); ok {
		name := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			name = path[idx+1:]
		}
		arts[name] = &artifactImpl{store: s, path: path, size: int64(len(b.data)), checksum: b.checksum}
		return arts, nil
	}

	prefix := path + "/"
	s.blobs.Range(func(key string, b *blob) bool {
		if strings.HasPrefix(key, prefix) {
			name := strings.ReplaceAll(key[len(prefix):], "/", "_")
			arts[name] = &artifactImpl{store: s, path: key, size: int64(len(b.data)), checksum: b.checksum}
		}
		return true
	})

	if len(arts) == 0 {
		return nil, fmt.Errorf("scan %s: no artifacts stored at this path", path)
	}
	return arts, nil
}

// --------------------------------------------------------------------------
// Artifact Handle and Write Sink
// --------------------------------------------------------------------------

type artifactImpl struct {
	store    *storeImpl
	path     string
	size     int64
	checksum string
}

func (a *artifactImpl) URI() string      { return "mem://" + a.path }
func (a *artifactImpl) Size() int64      { return a.size }
func (a *artifactImpl) Checksum() string { return a.checksum }

func (a *artifactImpl) Open() (io.ReadCloser, error) {
	b, ok := a.store.blobs.Load(a.path)
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", a.URI())
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type sinkImpl struct {
	store  *storeImpl
	art    *artifactImpl
	buf    bytes.Buffer
	closed bool
}

func (s *sinkImpl) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *sinkImpl) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	data := make([]byte, s.buf.Len())
	copy(data, s.buf.Bytes())

	sum := blake3.Sum256(data)
	b := &blob{data: data, checksum: hex.EncodeToString(sum[:])}
	s.store.blobs.Store(s.art.path, b)

	s.art.size = int64(len(data))
	s.art.checksum = b.checksum
	return nil
}
