// Package lru implements a repository that acts as a least-recently-used cache for a nested repository.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a repository.
// At present it caches only chunks, not log entries.
// Writes pass through to the underlying repository.
type Store struct {
	c *lru.Cache // ChunkID->[]byte
	s chunky.Store
}

// New produces a new Store backed by `s` and caching up to `size` chunks.
func New(s chunky.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	if got, ok := s.c.Get(id); ok {
		return append([]byte(nil), got.([]byte)...), nil
	}
	data, err := s.s.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	s.c.Add(id, append([]byte(nil), data...))
	return data, nil
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	if s.c.Contains(id) {
		return true, nil
	}
	return s.s.ChunkExists(ctx, id)
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	added, err := s.s.PutChunk(ctx, id, data)
	if err != nil {
		return added, err
	}
	s.c.Add(id, append([]byte(nil), data...))
	return added, nil
}

// DeleteChunk removes a chunk from the cache and the underlying repository.
func (s *Store) DeleteChunk(ctx context.Context, id chunky.ChunkID) error {
	s.c.Remove(id)
	return s.s.DeleteChunk(ctx, id)
}

// ListChunks produces all chunk IDs in the underlying repository.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	return s.s.ListChunks(ctx, f)
}

func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	return s.s.GetRef(ctx, pos)
}

func (s *Store) PutRef(ctx context.Context, pos int, data []byte) error {
	return s.s.PutRef(ctx, pos, data)
}

func (s *Store) DeleteRef(ctx context.Context, pos int) error {
	return s.s.DeleteRef(ctx, pos)
}

func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	return s.s.ListRefs(ctx, f)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		size, err := store.Int(conf, "size")
		if err != nil {
			return nil, err
		}
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
