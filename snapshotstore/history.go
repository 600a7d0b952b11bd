package snapshotstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/gc"
)

// Remove deletes the log entry of a snapshot.
// Its chunks stay until the next garbage collection.
func (s *Store) Remove(ctx context.Context, id int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pos, err := s.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if err = s.s.DeleteRef(ctx, pos); err != nil {
		return errors.Wrapf(err, "removing snapshot %d", pos)
	}
	s.logger.WithField("snapshot", pos).Info("removed snapshot")
	return s.refreshCurrent(ctx)
}

// Keep deletes all log entries except the n latest, by position.
// It returns the removed positions.
func (s *Store) Keep(ctx context.Context, n int) ([]int, error) {
	if n < 0 {
		return nil, errors.Wrapf(chunky.ErrConfig, "cannot keep %d snapshots", n)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	positions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if n >= len(positions) {
		return nil, nil
	}
	doomed := positions[:len(positions)-n]
	for _, pos := range doomed {
		if err = s.s.DeleteRef(ctx, pos); err != nil {
			return nil, errors.Wrapf(err, "removing snapshot %d", pos)
		}
		s.logger.WithField("snapshot", pos).Info("removed snapshot")
	}
	return doomed, s.refreshCurrent(ctx)
}

// GarbageCollect deletes every chunk not reachable from a remaining log position
// and returns the deleted IDs.
// Each reference is opened with the key derived from its own salt and iteration count.
//
// Marking finishes before anything is deleted.
func (s *Store) GarbageCollect(ctx context.Context) ([]chunky.ChunkID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	keep := gc.NewMemKeep()
	if err := s.mark(ctx, keep); err != nil {
		return nil, err
	}

	deleted, err := gc.Run(ctx, s.s, keep)
	for _, id := range deleted {
		s.logger.WithField("chunk", id).Debug("removed chunk")
	}
	s.logger.WithFields(logrus.Fields{"kept": keep.Len(), "removed": len(deleted)}).Info("collected garbage")
	return deleted, err
}

// mark adds to k every chunk reachable from every log position.
func (s *Store) mark(ctx context.Context, k gc.Keep) error {
	positions, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		ref, err := s.reference(ctx, pos)
		if err != nil {
			return err
		}
		if err = gc.Protect(ctx, k, ref); err != nil {
			return err
		}
		snap, err := s.open(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "reading snapshot %d", pos)
		}
		for _, br := range snap.BlobReferences {
			if err = gc.Protect(ctx, k, br); err != nil {
				return err
			}
		}
	}
	return nil
}

// reachable lists the chunks of the reference at pos
// and of every blob in its snapshot,
// without duplicates.
func (s *Store) reachable(ctx context.Context, pos int) ([]chunky.ChunkID, error) {
	ref, err := s.reference(ctx, pos)
	if err != nil {
		return nil, err
	}
	snap, err := s.open(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %d", pos)
	}

	var (
		seen   = make(map[chunky.ChunkID]bool)
		result []chunky.ChunkID
	)
	add := func(ids []chunky.ChunkID) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	add(ref.ChunkIds)
	for _, br := range snap.BlobReferences {
		add(br.ChunkIds)
	}
	return result, nil
}
