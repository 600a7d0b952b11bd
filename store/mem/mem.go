// Package mem implements an in-memory repository.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store is a memory-based implementation of a repository.
type Store struct {
	mu     sync.Mutex
	chunks map[chunky.ChunkID][]byte
	refs   map[int][]byte
}

// New produces a new Store.
func New() *Store {
	return &Store{
		chunks: make(map[chunky.ChunkID][]byte),
		refs:   make(map[int][]byte),
	}
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(_ context.Context, id chunky.ChunkID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.chunks[id]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, errors.Wrapf(chunky.ErrNotFound, "chunk %s", id)
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(_ context.Context, id chunky.ChunkID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.chunks[id]
	return ok, nil
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(_ context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[id]; ok {
		return false, nil
	}
	s.chunks[id] = append([]byte(nil), data...)
	return true, nil
}

// DeleteChunk removes a chunk.
func (s *Store) DeleteChunk(_ context.Context, id chunky.ChunkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, id)
	return nil
}

// ListChunks produces all chunk IDs in the store, in lexicographic order.
func (s *Store) ListChunks(_ context.Context, f func(chunky.ChunkID) error) error {
	s.mu.Lock()
	ids := make([]chunky.ChunkID, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := f(id); err != nil {
			return err
		}
	}
	return nil
}

// GetRef gets the log entry at pos.
func (s *Store) GetRef(_ context.Context, pos int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.refs[pos]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
}

// PutRef stores a log entry at pos, which must not already be taken.
func (s *Store) PutRef(_ context.Context, pos int, data []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[pos]; ok {
		return errors.Wrapf(chunky.ErrExists, "log position %d", pos)
	}
	s.refs[pos] = append([]byte(nil), data...)
	return nil
}

// DeleteRef removes the log entry at pos.
func (s *Store) DeleteRef(_ context.Context, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refs, pos)
	return nil
}

// ListRefs produces all log positions in the store, in ascending order.
func (s *Store) ListRefs(_ context.Context, f func(int) error) error {
	s.mu.Lock()
	positions := make([]int, 0, len(s.refs))
	for pos := range s.refs {
		positions = append(positions, pos)
	}
	s.mu.Unlock()

	sort.Ints(positions)

	for _, pos := range positions {
		if err := f(pos); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (chunky.Store, error) {
		return New(), nil
	})
}
