package blobsys

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshot"
)

var _ System = &Mem{}

// Mem is an in-memory blob system.
type Mem struct {
	mu    sync.Mutex
	blobs map[string]memBlob
}

type memBlob struct {
	blob snapshot.Blob
	data []byte
}

// NewMem produces an empty Mem.
func NewMem() *Mem {
	return &Mem{blobs: make(map[string]memBlob)}
}

// Put sets the content and metadata of a blob.
func (m *Mem) Put(blob snapshot.Blob, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[blob.Name] = memBlob{blob: snapshot.NewBlob(blob.Name, blob.LastWriteTimeUtc), data: append([]byte(nil), data...)}
}

// Content returns the content of the named blob.
func (m *Mem) Content(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blobs[name]
	return b.data, ok
}

func (m *Mem) ListBlobs(_ context.Context, exclude *fuzzy.Fuzzy) ([]snapshot.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []snapshot.Blob
	for name, b := range m.blobs {
		if exclude.IsExcludingMatch(name) {
			continue
		}
		result = append(result, b.blob)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Mem) OpenRead(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blobs[name]
	if !ok {
		return nil, errors.Wrapf(chunky.ErrNotFound, "blob %s", name)
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (m *Mem) BlobExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[name]
	return ok, nil
}

func (m *Mem) GetBlob(_ context.Context, name string) (snapshot.Blob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blobs[name]
	return b.blob, ok, nil
}

func (m *Mem) OpenWrite(_ context.Context, blob snapshot.Blob) (io.WriteCloser, error) {
	return &memWriter{m: m, blob: blob}, nil
}

func (m *Mem) RemoveBlob(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, name)
	return nil
}

type memWriter struct {
	bytes.Buffer
	m    *Mem
	blob snapshot.Blob
}

func (w *memWriter) Close() error {
	w.m.Put(w.blob, w.Bytes())
	return nil
}

func (w *memWriter) Abort() error {
	return nil
}
