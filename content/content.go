// Package content stores and retrieves encrypted, deduplicated blob content.
//
// A blob is cut into chunks by a fastcdc.Chunker.
// Each chunk is sealed with AES-GCM under the caller's key and nonce,
// and the sealed bytes are stored in a chunky.Store
// under their own hash.
// Sealing the same plaintext under the same key and nonce
// produces the same bytes and therefore the same ChunkID,
// so unchanged content is stored once.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/aesgcm"
	"github.com/bobg/chunky/fastcdc"
)

// Store is a content store layered on a chunky.Store.
// It is safe for concurrent use.
type Store struct {
	s       chunky.Store
	chunker *fastcdc.Chunker
	hash    chunky.Hash
	workers int
	queue   int
	locks   *idLocks
}

// Option is the type of an option passed to New.
type Option func(*Store)

// WithHash sets the hash algorithm for new ChunkIDs.
func WithHash(h chunky.Hash) Option {
	return func(s *Store) { s.hash = h }
}

// WithWorkers sets the number of goroutines sealing and storing chunks of one blob.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueue sets the number of chunks that may wait between the chunker and the workers.
func WithQueue(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.queue = n
		}
	}
}

// New produces a new Store.
// If c is nil, fastcdc.Default() is used.
func New(s chunky.Store, c *fastcdc.Chunker, opts ...Option) *Store {
	if c == nil {
		c = fastcdc.Default()
	}
	result := &Store{
		s:       s,
		chunker: c,
		hash:    chunky.DefaultHash,
		workers: runtime.NumCPU(),
		locks:   newIDLocks(),
	}
	for _, opt := range opts {
		opt(result)
	}
	if result.queue == 0 {
		result.queue = 2 * result.workers
	}
	return result
}

// Repo is the underlying repository.
func (s *Store) Repo() chunky.Store { return s.s }

type indexedChunk struct {
	index int
	data  []byte
}

// StoreBlob splits the content of r into chunks,
// seals each one with key and nonce,
// and stores the ones the repository lacks.
// It returns the IDs of the chunks in content order.
//
// Chunks are sealed and stored concurrently.
// On the first error the remaining work is cancelled
// and the error is returned once running workers finish.
func (s *Store) StoreBlob(ctx context.Context, r io.Reader, key aesgcm.Key, nonce []byte) ([]chunky.ChunkID, error) {
	var (
		ch      = make(chan indexedChunk, s.queue)
		idch    = make(chan indexedID, s.queue)
		ids     []chunky.ChunkID
		wg      sync.WaitGroup
		g, gctx = errgroup.WithContext(ctx)
	)

	g.Go(func() error {
		defer close(ch)

		var (
			sp    = s.chunker.NewSplitter(r)
			index int
		)
		for {
			chunk, err := sp.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "splitting chunk %d", index)
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ch <- indexedChunk{index: index, data: chunk}:
			}
			index++
		}
	})

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for {
				var (
					c  indexedChunk
					ok bool
				)
				select {
				case <-gctx.Done():
					return gctx.Err()
				case c, ok = <-ch:
					if !ok {
						return nil
					}
				}
				id, err := s.storeChunk(gctx, c.data, key, nonce)
				if err != nil {
					return errors.Wrapf(err, "storing chunk %d", c.index)
				}
				idch <- indexedID{index: c.index, id: id}
			}
		})
	}

	go func() {
		wg.Wait()
		close(idch)
	}()

	for iid := range idch {
		for len(ids) <= iid.index {
			ids = append(ids, "")
		}
		ids[iid.index] = iid.id
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

type indexedID struct {
	index int
	id    chunky.ChunkID
}

func (s *Store) storeChunk(ctx context.Context, chunk []byte, key aesgcm.Key, nonce []byte) (chunky.ChunkID, error) {
	sealed, err := aesgcm.Seal(key, nonce, chunk)
	if err != nil {
		return "", errors.Wrap(err, "sealing")
	}
	id := chunky.Compute(s.hash, sealed)

	unlock := s.locks.lock(id)
	defer unlock()

	ok, err := s.s.ChunkExists(ctx, id)
	if err != nil {
		return "", errors.Wrapf(err, "checking for chunk %s", id)
	}
	if ok {
		return id, nil
	}
	_, err = s.s.PutChunk(ctx, id, sealed)
	return id, errors.Wrapf(err, "storing chunk %s", id)
}

// Retrieve fetches, opens, and writes to w the chunks named by ids, in order.
// A missing chunk produces an error wrapping chunky.ErrNotFound.
// A chunk that does not authenticate,
// or whose embedded nonce is not nonce,
// produces an error wrapping chunky.ErrCrypto.
func (s *Store) Retrieve(ctx context.Context, ids []chunky.ChunkID, key aesgcm.Key, nonce []byte, w io.Writer) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sealed, err := s.s.GetChunk(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "getting chunk %s", id)
		}
		gotNonce, plaintext, err := aesgcm.Open(key, sealed)
		if err != nil {
			return errors.Wrapf(err, "opening chunk %s", id)
		}
		if nonce != nil && !bytes.Equal(gotNonce, nonce) {
			return errors.Wrapf(chunky.ErrCrypto, "chunk %s has unexpected nonce", id)
		}
		if _, err = w.Write(plaintext); err != nil {
			return errors.Wrapf(err, "writing chunk %s", id)
		}
	}
	return nil
}

// Exists tells whether every chunk in ids is present.
// It does not check authenticity.
func (s *Store) Exists(ctx context.Context, ids []chunky.ChunkID) (bool, error) {
	for _, id := range ids {
		ok, err := s.s.ChunkExists(ctx, id)
		if err != nil {
			return false, errors.Wrapf(err, "checking for chunk %s", id)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Valid tells whether every chunk in ids is present
// and still hashes to its ID.
// No key is needed.
func (s *Store) Valid(ctx context.Context, ids []chunky.ChunkID) (bool, error) {
	for _, id := range ids {
		data, err := s.s.GetChunk(ctx, id)
		if errors.Is(err, chunky.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrapf(err, "getting chunk %s", id)
		}
		if !id.Valid(data) {
			return false, nil
		}
	}
	return true, nil
}

// StoreDocument stores the JSON encoding of v
// sealed under key and a fresh nonce.
func (s *Store) StoreDocument(ctx context.Context, v interface{}, key aesgcm.Key) ([]chunky.ChunkID, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	nonce, err := aesgcm.NewNonce()
	if err != nil {
		return nil, err
	}
	return s.StoreBlob(ctx, bytes.NewReader(data), key, nonce)
}

// RetrieveDocument reverses StoreDocument,
// decoding the document into v.
// Documents are small, so all their chunks are fetched at once.
// The nonce is read from the first chunk.
func (s *Store) RetrieveDocument(ctx context.Context, ids []chunky.ChunkID, key aesgcm.Key, v interface{}) error {
	if len(ids) == 0 {
		return errors.Wrap(chunky.ErrNotFound, "empty document")
	}
	chunks, err := chunky.GetChunks(ctx, s.s, ids)
	if merr, ok := err.(chunky.MultiErr); ok {
		for _, id := range ids {
			if e, ok := merr[id]; ok {
				return errors.Wrapf(e, "getting chunk %s", id)
			}
		}
	}
	if err != nil {
		return errors.Wrap(err, "getting document chunks")
	}

	nonce, err := aesgcm.NonceOf(chunks[ids[0]])
	if err != nil {
		return errors.Wrapf(err, "chunk %s", ids[0])
	}

	buf := new(bytes.Buffer)
	for _, id := range ids {
		gotNonce, plaintext, err := aesgcm.Open(key, chunks[id])
		if err != nil {
			return errors.Wrapf(err, "opening chunk %s", id)
		}
		if !bytes.Equal(gotNonce, nonce) {
			return errors.Wrapf(chunky.ErrCrypto, "chunk %s has unexpected nonce", id)
		}
		buf.Write(plaintext)
	}
	return errors.Wrap(json.Unmarshal(buf.Bytes(), v), "decoding document")
}
