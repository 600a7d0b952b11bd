package snapshotstore

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunky"
)

// Copy replicates to dst the log positions it lacks,
// along with every chunk they reach.
// It returns the copied positions.
//
// Positions present in both repositories must hold identical references,
// otherwise the histories have diverged
// and the error wraps chunky.ErrDivergedHistory.
// New positions are copied in ascending order,
// and each position's reference is written only after all its chunks are,
// so dst always holds a restorable prefix of the history.
// Copy never deletes anything from dst.
func (s *Store) Copy(ctx context.Context, dst chunky.Store) ([]int, error) {
	srcPositions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	dstPositions, err := chunky.RefPositions(ctx, dst)
	if err != nil {
		return nil, errors.Wrap(err, "listing destination log positions")
	}
	inDst := make(map[int]bool, len(dstPositions))
	for _, pos := range dstPositions {
		inDst[pos] = true
	}

	var newPositions []int
	for _, pos := range srcPositions {
		if !inDst[pos] {
			newPositions = append(newPositions, pos)
			continue
		}
		a, err := s.s.GetRef(ctx, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "getting snapshot reference %d", pos)
		}
		b, err := dst.GetRef(ctx, pos)
		if err != nil {
			return nil, errors.Wrapf(err, "getting destination snapshot reference %d", pos)
		}
		if !bytes.Equal(a, b) {
			return nil, errors.Wrapf(chunky.ErrDivergedHistory, "snapshot %d", pos)
		}
	}

	var copied []int
	for _, pos := range newPositions {
		if err = s.copyPos(ctx, dst, pos); err != nil {
			return copied, err
		}
		copied = append(copied, pos)
		s.logger.WithField("snapshot", pos).Info("copied snapshot")
	}
	return copied, nil
}

func (s *Store) copyPos(ctx context.Context, dst chunky.Store, pos int) error {
	ids, err := s.reachable(ctx, pos)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			return s.copyChunk(ctx, dst, id)
		})
	}
	if err = g.Wait(); err != nil {
		return errors.Wrapf(err, "copying chunks of snapshot %d", pos)
	}

	data, err := s.s.GetRef(ctx, pos)
	if err != nil {
		return errors.Wrapf(err, "getting snapshot reference %d", pos)
	}
	return errors.Wrapf(dst.PutRef(ctx, pos, data), "storing destination snapshot reference %d", pos)
}

func (s *Store) copyChunk(ctx context.Context, dst chunky.Store, id chunky.ChunkID) error {
	ok, err := dst.ChunkExists(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "checking destination for chunk %s", id)
	}
	if ok {
		return nil
	}
	data, err := s.s.GetChunk(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "getting chunk %s", id)
	}
	if !id.Valid(data) {
		return errors.Wrapf(chunky.ErrIntegrity, "chunk %s", id)
	}
	_, err = dst.PutChunk(ctx, id, data)
	return errors.Wrapf(err, "storing destination chunk %s", id)
}

// Mirror makes dst a copy of the repository.
// It runs Copy,
// then deletes the log positions and chunks of dst that the repository lacks.
func (s *Store) Mirror(ctx context.Context, dst chunky.Store) error {
	if _, err := s.Copy(ctx, dst); err != nil {
		return err
	}

	srcPositions, err := s.List(ctx)
	if err != nil {
		return err
	}
	inSrc := make(map[int]bool, len(srcPositions))
	for _, pos := range srcPositions {
		inSrc[pos] = true
	}
	dstPositions, err := chunky.RefPositions(ctx, dst)
	if err != nil {
		return errors.Wrap(err, "listing destination log positions")
	}
	for _, pos := range dstPositions {
		if inSrc[pos] {
			continue
		}
		if err = dst.DeleteRef(ctx, pos); err != nil {
			return errors.Wrapf(err, "removing destination snapshot %d", pos)
		}
		s.logger.WithField("snapshot", pos).Info("removed destination snapshot")
	}

	srcIDs, err := chunky.ChunkIDs(ctx, s.s)
	if err != nil {
		return errors.Wrap(err, "listing chunks")
	}
	inSrcIDs := make(map[chunky.ChunkID]bool, len(srcIDs))
	for _, id := range srcIDs {
		inSrcIDs[id] = true
	}
	dstIDs, err := chunky.ChunkIDs(ctx, dst)
	if err != nil {
		return errors.Wrap(err, "listing destination chunks")
	}
	var removed int
	for _, id := range dstIDs {
		if inSrcIDs[id] {
			continue
		}
		if err = dst.DeleteChunk(ctx, id); err != nil {
			return errors.Wrapf(err, "removing destination chunk %s", id)
		}
		removed++
	}
	s.logger.WithFields(logrus.Fields{"chunks": removed}).Info("mirrored")
	return nil
}
