// Package blobsys defines the interfaces through which blobs are read for backup
// and written on restore,
// and provides in-memory and dry-run implementations.
package blobsys

import (
	"context"
	"io"

	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshot"
)

// Reader lists and reads blobs.
type Reader interface {
	// ListBlobs lists the blobs whose names exclude does not match,
	// sorted by name.
	ListBlobs(ctx context.Context, exclude *fuzzy.Fuzzy) ([]snapshot.Blob, error)

	// OpenRead opens the named blob for reading.
	OpenRead(ctx context.Context, name string) (io.ReadCloser, error)
}

// Writer finds and writes blobs.
type Writer interface {
	// BlobExists tells whether the named blob exists.
	BlobExists(ctx context.Context, name string) (bool, error)

	// GetBlob returns the metadata of the named blob,
	// or false if it doesn't exist.
	GetBlob(ctx context.Context, name string) (snapshot.Blob, bool, error)

	// OpenWrite opens the blob for writing, replacing any existing content.
	// When the returned WriteCloser is closed,
	// the blob's last-write time becomes blob.LastWriteTimeUtc.
	OpenWrite(ctx context.Context, blob snapshot.Blob) (io.WriteCloser, error)
}

// Remover removes blobs.
type Remover interface {
	// RemoveBlob removes the named blob.
	// Removing a nonexistent blob is not an error.
	RemoveBlob(ctx context.Context, name string) error
}

// System is a blob system that can do everything.
type System interface {
	Reader
	Writer
	Remover
}

// Aborter is implemented by writers from OpenWrite
// that can discard what was written instead of committing it.
type Aborter interface {
	Abort() error
}

// Discard ends a write from OpenWrite without committing it if possible,
// and otherwise closes it.
func Discard(w io.WriteCloser) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}
