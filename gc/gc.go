// Package gc removes unreachable chunks from a repository.
//
// The caller marks reachable chunks by adding them to a Keep,
// then calls Run to sweep.
// Nothing may write to the repository between the start of marking and the end of the sweep.
package gc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
)

// Store is the subset of chunky.Store that Run needs.
type Store interface {
	ListChunks(context.Context, func(chunky.ChunkID) error) error
	DeleteChunk(context.Context, chunky.ChunkID) error
}

// Run runs a garbage collection on s,
// with k the set of chunk IDs to keep.
// It returns the IDs it deleted.
//
// The full listing of s completes before the first deletion.
func Run(ctx context.Context, s Store, k Keep) ([]chunky.ChunkID, error) {
	var doomed []chunky.ChunkID
	err := s.ListChunks(ctx, func(id chunky.ChunkID) error {
		found, err := k.Contains(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			doomed = append(doomed, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing chunks")
	}

	for i, id := range doomed {
		if err = s.DeleteChunk(ctx, id); err != nil {
			return doomed[:i], errors.Wrapf(err, "deleting %s", id)
		}
	}
	return doomed, nil
}
