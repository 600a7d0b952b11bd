package snapshotstore

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/aesgcm"
	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshot"
)

// List returns the log positions in ascending order.
func (s *Store) List(ctx context.Context) ([]int, error) {
	positions, err := chunky.RefPositions(ctx, s.s)
	return positions, errors.Wrap(err, "listing log positions")
}

// Show returns the blob references of a snapshot that include selects.
func (s *Store) Show(ctx context.Context, id int, include *fuzzy.Fuzzy) ([]snapshot.BlobReference, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Filter(include), nil
}

// Diff compares two snapshots.
func (s *Store) Diff(ctx context.Context, id1, id2 int) (snapshot.DiffSet, error) {
	a, err := s.Get(ctx, id1)
	if err != nil {
		return snapshot.DiffSet{}, err
	}
	b, err := s.Get(ctx, id2)
	if err != nil {
		return snapshot.DiffSet{}, err
	}
	return snapshot.DiffSnapshots(a, b), nil
}

// CheckExists tells whether every chunk of every selected blob is present.
func (s *Store) CheckExists(ctx context.Context, id int, include *fuzzy.Fuzzy) (bool, error) {
	return s.check(ctx, id, include, s.content.Exists)
}

// CheckValid tells whether every chunk of every selected blob is present
// and still hashes to its ID.
func (s *Store) CheckValid(ctx context.Context, id int, include *fuzzy.Fuzzy) (bool, error) {
	return s.check(ctx, id, include, s.content.Valid)
}

// check evaluates every selected blob, even after one fails,
// and logs each failure.
func (s *Store) check(ctx context.Context, id int, include *fuzzy.Fuzzy, f func(context.Context, []chunky.ChunkID) (bool, error)) (bool, error) {
	pos, err := s.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	refs, err := s.Show(ctx, pos, include)
	if err != nil {
		return false, err
	}

	var (
		results = make([]bool, len(refs))
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(s.workers)
	for i, ref := range refs {
		g.Go(func() error {
			ok, err := f(gctx, ref.ChunkIds)
			if err != nil {
				return errors.Wrapf(err, "checking blob %s", ref.Blob.Name)
			}
			if !ok {
				s.logger.WithFields(logrus.Fields{"snapshot": pos, "blob": ref.Blob.Name}).Warn("blob is damaged")
			}
			results[i] = ok
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return false, err
	}

	valid := true
	for _, ok := range results {
		valid = valid && ok
	}
	s.logger.WithFields(logrus.Fields{"snapshot": pos, "valid": valid}).Info("checked snapshot")
	return valid, nil
}

// Restore writes the selected blobs of a snapshot to sys.
// A blob that already exists in sys with the same last-write time is left alone.
// It returns the selected blobs.
//
// Blobs are restored concurrently.
// If one fails the others still run to completion,
// and the first error is returned.
func (s *Store) Restore(ctx context.Context, id int, include *fuzzy.Fuzzy, sys blobsys.Writer) ([]snapshot.Blob, error) {
	pos, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, ref, err := s.get(ctx, pos)
	if err != nil {
		return nil, err
	}
	key, err := s.keyFor(ctx, ref.Salt, ref.Iterations)
	if err != nil {
		return nil, err
	}

	var (
		refs  = snap.Filter(include)
		blobs = make([]snapshot.Blob, len(refs))
		g     errgroup.Group
	)
	g.SetLimit(s.workers)
	for i, br := range refs {
		blobs[i] = br.Blob
		g.Go(func() error {
			return errors.Wrapf(s.restoreBlob(ctx, br, key, sys), "restoring blob %s", br.Blob.Name)
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	s.logger.WithField("snapshot", pos).Info("restored snapshot")
	return blobs, nil
}

func (s *Store) restoreBlob(ctx context.Context, br snapshot.BlobReference, key aesgcm.Key, sys blobsys.Writer) error {
	existing, ok, err := sys.GetBlob(ctx, br.Blob.Name)
	if err != nil {
		return err
	}
	if ok && existing.Equal(br.Blob) {
		return nil
	}

	w, err := sys.OpenWrite(ctx, br.Blob)
	if err != nil {
		return err
	}
	if err = s.content.Retrieve(ctx, br.ChunkIds, key, br.Nonce, w); err != nil {
		blobsys.Discard(w)
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	s.logger.WithField("blob", br.Blob.Name).Debug("restored blob")
	return nil
}

// RetrieveBlob writes the content of one blob of a snapshot to w.
func (s *Store) RetrieveBlob(ctx context.Context, id int, name string, w io.Writer) error {
	snap, ref, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	br, ok := snap.Find(name)
	if !ok {
		return errors.Wrapf(chunky.ErrNotFound, "blob %s", name)
	}
	key, err := s.keyFor(ctx, ref.Salt, ref.Iterations)
	if err != nil {
		return err
	}
	return s.content.Retrieve(ctx, br.ChunkIds, key, br.Nonce, w)
}

// RetrieveContent decrypts arbitrary chunks to w
// using the key of the snapshot with the given ID.
func (s *Store) RetrieveContent(ctx context.Context, id int, ids []chunky.ChunkID, w io.Writer) error {
	ref, err := s.GetReference(ctx, id)
	if err != nil {
		return err
	}
	key, err := s.keyFor(ctx, ref.Salt, ref.Iterations)
	if err != nil {
		return err
	}
	return s.content.Retrieve(ctx, ids, key, nil, w)
}

// Preview compares the blobs in sys that exclude does not match
// with the blobs of a snapshot.
// Added names are in sys but not the snapshot.
// An empty log compares against an empty snapshot.
func (s *Store) Preview(ctx context.Context, sys blobsys.Reader, exclude *fuzzy.Fuzzy, id int) (snapshot.DiffSet, error) {
	blobs, err := sys.ListBlobs(ctx, exclude)
	if err != nil {
		return snapshot.DiffSet{}, errors.Wrap(err, "listing blobs")
	}
	var prev []snapshot.Blob
	if _, ok := s.Current(); ok {
		snap, err := s.Get(ctx, id)
		if err != nil {
			return snapshot.DiffSet{}, err
		}
		prev = snap.Blobs()
	}
	return snapshot.DiffBlobs(prev, blobs), nil
}

// CleanSystem is a blob system that Clean can list and remove from.
type CleanSystem interface {
	blobsys.Reader
	blobsys.Remover
}

// Clean removes the blobs in sys, not matched by exclude, that are not in a snapshot.
// It returns the removed blobs.
func (s *Store) Clean(ctx context.Context, sys CleanSystem, exclude *fuzzy.Fuzzy, id int) ([]snapshot.Blob, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keep := snap.Index()

	blobs, err := sys.ListBlobs(ctx, exclude)
	if err != nil {
		return nil, errors.Wrap(err, "listing blobs")
	}
	var removed []snapshot.Blob
	for _, blob := range blobs {
		if _, ok := keep[blob.Name]; ok {
			continue
		}
		if err = sys.RemoveBlob(ctx, blob.Name); err != nil {
			return removed, errors.Wrapf(err, "removing blob %s", blob.Name)
		}
		s.logger.WithField("blob", blob.Name).Info("removed blob")
		removed = append(removed, blob)
	}
	return removed, nil
}
