// Package dryrun implements a repository decorator that never modifies the nested repository.
package dryrun

import (
	"context"
	stderrs "errors"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store passes reads through to a nested repository and discards writes and deletes.
// PutChunk reports whether the chunk would have been added,
// so callers' accounting matches a real run.
type Store struct {
	s chunky.Store
}

func New(s chunky.Store) *Store {
	return &Store{s: s}
}

func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	return s.s.GetChunk(ctx, id)
}

func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	return s.s.ChunkExists(ctx, id)
}

func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	return s.s.ListChunks(ctx, f)
}

func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	return s.s.GetRef(ctx, pos)
}

func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	return s.s.ListRefs(ctx, f)
}

// PutChunk does nothing.
func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, _ []byte) (bool, error) {
	ok, err := s.s.ChunkExists(ctx, id)
	return !ok, err
}

// DeleteChunk does nothing.
func (s *Store) DeleteChunk(context.Context, chunky.ChunkID) error {
	return nil
}

// PutRef does nothing,
// except to fail as the nested repository would if pos is taken.
func (s *Store) PutRef(ctx context.Context, pos int, _ []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}
	_, err := s.s.GetRef(ctx, pos)
	if stderrs.Is(err, chunky.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(chunky.ErrExists, "log position %d", pos)
}

// DeleteRef does nothing.
func (s *Store) DeleteRef(context.Context, int) error {
	return nil
}

func init() {
	store.Register("dryrun", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested), nil
	})
}
