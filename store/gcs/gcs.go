// Package gcs implements a repository on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store is a Google Cloud Storage-based repository.
// Chunks live in objects named c:<chunk ID>,
// log entries in objects named r:<zero-padded position>.
// GCS lists objects in lexicographic name order,
// which the naming scheme turns into the order the Store interface requires.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

const (
	chunkPrefix = "c:"
	refPrefix   = "r:"
)

func chunkObjName(id chunky.ChunkID) string {
	return chunkPrefix + string(id)
}

func refObjName(pos int) string {
	return fmt.Sprintf("%s%020d", refPrefix, pos)
}

func posFromRefObjName(name string) (int, error) {
	pos, err := strconv.Atoi(strings.TrimPrefix(name, refPrefix))
	return pos, errors.Wrapf(err, "parsing object name %s", name)
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	return s.read(ctx, chunkObjName(id))
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "object %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	name := chunkObjName(id)
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting object attrs for %s", name)
	}
	return true, nil
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	err := s.create(ctx, chunkObjName(id), data)
	if stderrs.Is(err, chunky.ErrExists) {
		return false, nil
	}
	return err == nil, err
}

// create writes a new object,
// failing with chunky.ErrExists if it is already present.
func (s *Store) create(ctx context.Context, name string, data []byte) error {
	var (
		obj = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w   = obj.NewWriter(ctx)
	)
	_, err := w.Write(data)
	if err != nil {
		w.Close()
		return mapPrecondition(err, name)
	}
	return mapPrecondition(w.Close(), name)
}

func mapPrecondition(err error, name string) error {
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return errors.Wrapf(chunky.ErrExists, "object %s", name)
	}
	return errors.Wrapf(err, "writing object %s", name)
}

// DeleteChunk removes a chunk.
func (s *Store) DeleteChunk(ctx context.Context, id chunky.ChunkID) error {
	return s.remove(ctx, chunkObjName(id))
}

func (s *Store) remove(ctx context.Context, name string) error {
	err := s.bucket.Object(name).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object %s", name)
}

// ListChunks produces all chunk IDs in the store, in lexicographic order.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	return s.each(ctx, chunkPrefix, func(name string) error {
		return f(chunky.ChunkID(strings.TrimPrefix(name, chunkPrefix)))
	})
}

func (s *Store) each(ctx context.Context, prefix string, f func(string) error) error {
	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return errors.Wrap(err, "setting query attrs")
	}
	iter := s.bucket.Objects(ctx, q)
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		if err = f(attrs.Name); err != nil {
			return err
		}
	}
}

// GetRef gets the log entry at pos.
func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	if pos < 0 {
		return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
	}
	return s.read(ctx, refObjName(pos))
}

// PutRef stores a log entry at pos, which must not already be taken.
func (s *Store) PutRef(ctx context.Context, pos int, data []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}
	return s.create(ctx, refObjName(pos), data)
}

// DeleteRef removes the log entry at pos.
func (s *Store) DeleteRef(ctx context.Context, pos int) error {
	if pos < 0 {
		return nil
	}
	return s.remove(ctx, refObjName(pos))
}

// ListRefs produces all log positions in the store, in ascending order.
func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	return s.each(ctx, refPrefix, func(name string) error {
		pos, err := posFromRefObjName(name)
		if err != nil {
			return err
		}
		return f(pos)
	})
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		creds, err := store.String(conf, "creds")
		if err != nil {
			return nil, err
		}
		bucketName, err := store.String(conf, "bucket")
		if err != nil {
			return nil, err
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
