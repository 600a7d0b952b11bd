package snapshotstore

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunky/aesgcm"
	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshot"
)

// OpenFunc opens a blob for reading.
type OpenFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Append stores a new snapshot of blobs and returns its log position.
//
// A blob whose name and last-write time match its reference in the latest snapshot
// reuses that reference without being opened,
// unless scan selects it.
// Any other blob is opened with open and stored,
// under the nonce of its previous reference if there is one
// so that unchanged chunks deduplicate.
func (s *Store) Append(ctx context.Context, blobs []snapshot.Blob, scan *fuzzy.Fuzzy, created time.Time, open OpenFunc) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var known map[string]snapshot.BlobReference
	if current, ok := s.Current(); ok {
		prev, err := s.Get(ctx, current)
		if err != nil {
			return 0, errors.Wrap(err, "getting latest snapshot")
		}
		known = prev.Index()
	}

	sess, err := s.writeSession(ctx)
	if err != nil {
		return 0, err
	}

	var (
		refs    = make([]snapshot.BlobReference, len(blobs))
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(s.workers)
	for i, blob := range blobs {
		blob = snapshot.NewBlob(blob.Name, blob.LastWriteTimeUtc)
		prev, ok := known[blob.Name]
		if ok && !scan.IsExcludingMatch(blob.Name) && prev.Blob.Equal(blob) {
			refs[i] = prev
			continue
		}
		g.Go(func() error {
			nonce := prev.Nonce
			if !ok {
				var err error
				if nonce, err = aesgcm.NewNonce(); err != nil {
					return err
				}
			}
			ref, err := s.storeBlob(gctx, blob, sess.key, nonce, open)
			if err != nil {
				return errors.Wrapf(err, "storing blob %s", blob.Name)
			}
			refs[i] = ref
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return 0, err
	}

	snap := snapshot.New(created, refs)
	docIDs, err := s.content.StoreDocument(ctx, snap, sess.key)
	if err != nil {
		return 0, errors.Wrap(err, "storing snapshot")
	}
	data, err := json.Marshal(snapshot.Reference{
		Salt:       sess.salt,
		Iterations: sess.iterations,
		ChunkIds:   docIDs,
	})
	if err != nil {
		return 0, errors.Wrap(err, "encoding snapshot reference")
	}

	s.mu.Lock()
	pos := s.current + 1
	s.mu.Unlock()

	if err = s.s.PutRef(ctx, pos, data); err != nil {
		return 0, errors.Wrapf(err, "storing snapshot reference %d", pos)
	}

	s.mu.Lock()
	s.current = pos
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"snapshot": pos, "blobs": len(refs)}).Info("stored snapshot")
	return pos, nil
}

func (s *Store) storeBlob(ctx context.Context, blob snapshot.Blob, key aesgcm.Key, nonce []byte, open OpenFunc) (snapshot.BlobReference, error) {
	r, err := open(ctx, blob.Name)
	if err != nil {
		return snapshot.BlobReference{}, errors.Wrap(err, "opening")
	}
	defer r.Close()

	ids, err := s.content.StoreBlob(ctx, r, key, nonce)
	if err != nil {
		return snapshot.BlobReference{}, err
	}
	s.logger.WithField("blob", blob.Name).Debug("stored blob")
	return snapshot.BlobReference{Blob: blob, Nonce: nonce, ChunkIds: ids}, nil
}

// AppendFrom stores a snapshot of the blobs in sys that exclude does not match.
// A zero created time means now.
func (s *Store) AppendFrom(ctx context.Context, sys blobsys.Reader, exclude, scan *fuzzy.Fuzzy, created time.Time) (int, error) {
	blobs, err := sys.ListBlobs(ctx, exclude)
	if err != nil {
		return 0, errors.Wrap(err, "listing blobs")
	}
	if created.IsZero() {
		created = s.now()
	}
	return s.Append(ctx, blobs, scan, created, sys.OpenRead)
}
