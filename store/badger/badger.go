// Package badger implements a repository in a Badger key/value database.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrs "errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store is a Badger-based repository.
// Chunks are keyed c:<chunk ID>.
// Log entries are keyed r:<8-byte big-endian position>,
// so that key order is position order.
type Store struct {
	db *badger.DB
}

var (
	chunkPrefix = []byte("c:")
	refPrefix   = []byte("r:")
)

// maxRetries bounds the retries of a write transaction that lost a conflict.
const maxRetries = 10

// Open opens (or creates) a Badger database in dir.
// Badger's own log messages go to logger,
// or nowhere if logger is nil.
func Open(dir string, logger *logrus.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if logger != nil {
		opts = opts.WithLogger(logger)
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger db in %s", dir)
	}
	return New(db), nil
}

// New produces a Store using an already-open database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chunkKey(id chunky.ChunkID) []byte {
	return append(append([]byte(nil), chunkPrefix...), string(id)...)
}

func refKey(pos int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(pos))
	return append(append([]byte(nil), refPrefix...), buf[:]...)
}

func (s *Store) get(key []byte) ([]byte, error) {
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (s *Store) exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if stderrs.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// update runs f in a read-write transaction,
// retrying when badger reports a conflict with a concurrent transaction.
func (s *Store) update(f func(*badger.Txn) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.db.Update(f)
		if !stderrs.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(_ context.Context, id chunky.ChunkID) ([]byte, error) {
	data, err := s.get(chunkKey(id))
	if stderrs.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "chunk %s", id)
	}
	return data, errors.Wrapf(err, "getting chunk %s", id)
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(_ context.Context, id chunky.ChunkID) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = s.exists(txn, chunkKey(id))
		return err
	})
	return ok, errors.Wrapf(err, "checking for chunk %s", id)
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(_ context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	var added bool
	err := s.update(func(txn *badger.Txn) error {
		key := chunkKey(id)
		ok, err := s.exists(txn, key)
		if err != nil || ok {
			added = false
			return err
		}
		added = true
		return txn.Set(key, append([]byte(nil), data...))
	})
	return added, errors.Wrapf(err, "storing chunk %s", id)
}

// DeleteChunk removes a chunk.
func (s *Store) DeleteChunk(_ context.Context, id chunky.ChunkID) error {
	err := s.update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(id))
	})
	return errors.Wrapf(err, "deleting chunk %s", id)
}

// ListChunks produces all chunk IDs in the store, in lexicographic order.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	return s.each(ctx, chunkPrefix, func(suffix []byte) error {
		return f(chunky.ChunkID(suffix))
	})
}

// each calls f with the remainder of each key having the given prefix, in key order.
// Keys are collected first so that f runs outside the read transaction
// and may itself modify the store.
func (s *Store) each(ctx context.Context, prefix []byte, f func([]byte) error) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "iterating over keys")
	}
	for _, k := range keys {
		if err = f(k); err != nil {
			return err
		}
	}
	return nil
}

// GetRef gets the log entry at pos.
func (s *Store) GetRef(_ context.Context, pos int) ([]byte, error) {
	if pos < 0 {
		return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
	}
	data, err := s.get(refKey(pos))
	if stderrs.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
	}
	return data, errors.Wrapf(err, "getting log position %d", pos)
}

// PutRef stores a log entry at pos, which must not already be taken.
func (s *Store) PutRef(_ context.Context, pos int, data []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}
	return s.update(func(txn *badger.Txn) error {
		key := refKey(pos)
		ok, err := s.exists(txn, key)
		if err != nil {
			return errors.Wrapf(err, "checking log position %d", pos)
		}
		if ok {
			return errors.Wrapf(chunky.ErrExists, "log position %d", pos)
		}
		return errors.Wrapf(txn.Set(key, append([]byte(nil), data...)), "storing log position %d", pos)
	})
}

// DeleteRef removes the log entry at pos.
func (s *Store) DeleteRef(_ context.Context, pos int) error {
	if pos < 0 {
		return nil
	}
	err := s.update(func(txn *badger.Txn) error {
		return txn.Delete(refKey(pos))
	})
	return errors.Wrapf(err, "deleting log position %d", pos)
}

// ListRefs produces all log positions in the store, in ascending order.
func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	return s.each(ctx, refPrefix, func(suffix []byte) error {
		if len(suffix) != 8 {
			return errors.Errorf("malformed log key %x", suffix)
		}
		return f(int(binary.BigEndian.Uint64(suffix)))
	})
}

func init() {
	store.Register("badger", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		dir, err := store.String(conf, "dir")
		if err != nil {
			return nil, err
		}
		return Open(dir, nil)
	})
}
