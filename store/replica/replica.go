// Package replica implements a repository that keeps several nested repositories in step.
package replica

import (
	"cmp"
	"context"
	stderrs "errors"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = (*Store)(nil)

// Store is a repository that delegates reads and writes to a set of nested repositories.
// Writes go to all of them,
// and an error from any causes the write to fail.
// Reads go to all of them,
// and the first successful answer wins.
// Listings are the union of the nested listings.
type Store struct {
	stores []chunky.Store
}

// New produces a new Store.
// The set of nested repositories must be non-empty.
func New(stores ...chunky.Store) *Store {
	return &Store{stores: stores}
}

// each runs f on every nested repository concurrently.
func (s *Store) each(ctx context.Context, f func(context.Context, chunky.Store) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, nested := range s.stores {
		nested := nested
		g.Go(func() error {
			return f(ctx, nested)
		})
	}
	return g.Wait()
}

// first asks every nested repository for a value
// and returns the first one produced without error,
// canceling the other requests.
// If all fail, one of the errors is returned,
// preferring one that is not chunky.ErrNotFound.
func first[T any](ctx context.Context, stores []chunky.Store, f func(context.Context, chunky.Store) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val T
		err error
	}

	ch := make(chan result, len(stores))
	for _, nested := range stores {
		nested := nested
		go func() {
			val, err := f(ctx, nested)
			ch <- result{val: val, err: err}
		}()
	}

	var err error
	for range stores {
		r := <-ch
		if r.err == nil {
			return r.val, nil
		}
		if err == nil || stderrs.Is(err, chunky.ErrNotFound) {
			err = r.err
		}
	}
	var zero T
	return zero, err
}

// GetChunk gets a chunk from whichever nested repository produces it first.
func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	return first(ctx, s.stores, func(ctx context.Context, nested chunky.Store) ([]byte, error) {
		return nested.GetChunk(ctx, id)
	})
}

// ChunkExists tells whether every nested repository has the chunk.
// A chunk missing from any replica is reported absent,
// so that a subsequent PutChunk fills in the gap.
func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	var missing atomic.Bool
	err := s.each(ctx, func(ctx context.Context, nested chunky.Store) error {
		ok, err := nested.ChunkExists(ctx, id)
		if err == nil && !ok {
			missing.Store(true)
		}
		return err
	})
	return !missing.Load(), err
}

// PutChunk stores the chunk in every nested repository.
// It reports the chunk as added if any of them had to add it.
func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	var added atomic.Bool
	err := s.each(ctx, func(ctx context.Context, nested chunky.Store) error {
		ok, err := nested.PutChunk(ctx, id, data)
		if ok {
			added.Store(true)
		}
		return err
	})
	return added.Load(), err
}

// DeleteChunk removes the chunk from every nested repository.
func (s *Store) DeleteChunk(ctx context.Context, id chunky.ChunkID) error {
	return s.each(ctx, func(ctx context.Context, nested chunky.Store) error {
		return nested.DeleteChunk(ctx, id)
	})
}

// ListChunks produces the union of the nested repositories' chunk IDs, in lexicographic order.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	return union(ctx, s.stores, func(ctx context.Context, nested chunky.Store, g func(chunky.ChunkID) error) error {
		return nested.ListChunks(ctx, g)
	}, f)
}

// GetRef gets a log entry from whichever nested repository produces it first.
func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	return first(ctx, s.stores, func(ctx context.Context, nested chunky.Store) ([]byte, error) {
		return nested.GetRef(ctx, pos)
	})
}

// PutRef stores the log entry in every nested repository.
// If any of them already has an entry at pos the result is chunky.ErrExists,
// though the others may have accepted the write.
func (s *Store) PutRef(ctx context.Context, pos int, data []byte) error {
	return s.each(ctx, func(ctx context.Context, nested chunky.Store) error {
		return nested.PutRef(ctx, pos, data)
	})
}

// DeleteRef removes the log entry from every nested repository.
func (s *Store) DeleteRef(ctx context.Context, pos int) error {
	return s.each(ctx, func(ctx context.Context, nested chunky.Store) error {
		return nested.DeleteRef(ctx, pos)
	})
}

// ListRefs produces the union of the nested repositories' log positions, in ascending order.
func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	return union(ctx, s.stores, func(ctx context.Context, nested chunky.Store, g func(int) error) error {
		return nested.ListRefs(ctx, g)
	}, f)
}

// union merges the ordered listings of several repositories,
// calling f once for each distinct item.
func union[T cmp.Ordered](ctx context.Context, stores []chunky.Store, list func(context.Context, chunky.Store, func(T) error) error, f func(T) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan T, len(stores))
	for i, nested := range stores {
		var (
			ch     = make(chan T, 1)
			nested = nested
		)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			return list(gctx, nested, func(item T) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- item:
					return nil
				}
			})
		})
	}

	type head struct {
		item T
		ok   bool
	}

	heads := make([]head, len(chans))
	for i, ch := range chans {
		heads[i].item, heads[i].ok = <-ch
	}

	var (
		last    T
		started bool
	)
	for {
		best := -1
		for i, h := range heads {
			if h.ok && (best < 0 || h.item < heads[best].item) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		item := heads[best].item
		heads[best].item, heads[best].ok = <-chans[best]

		if started && item == last {
			continue
		}
		if err := f(item); err != nil {
			cancel()
			g.Wait()
			return err
		}
		last, started = item, true
	}

	return g.Wait()
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		items, ok := conf["stores"].([]interface{})
		if !ok || len(items) == 0 {
			return nil, errors.New(`missing "stores" parameter`)
		}

		var stores []chunky.Store
		for i, item := range items {
			nested, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf(`"stores" item %d is not a map`, i)
			}
			nestedType, ok := nested["type"].(string)
			if !ok {
				return nil, errors.Errorf(`"stores" item %d missing "type"`, i)
			}
			nestedStore, err := store.Create(ctx, nestedType, nested)
			if err != nil {
				return nil, errors.Wrapf(err, "creating nested store %d", i)
			}
			stores = append(stores, nestedStore)
		}

		return New(stores...), nil
	})
}
