// Package file implements a repository as a file hierarchy.
//
// Chunks live at root/chunks/ALG/HH/HHHH/HEX
// and log entries at root/log/POSITION.
// Every file is written under a temporary name and then linked into place,
// so readers never see a partial chunk or log entry.
package file

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store is a file-based implementation of a repository.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) chunkroot() string {
	return filepath.Join(s.root, "chunks")
}

func (s *Store) logroot() string {
	return filepath.Join(s.root, "log")
}

func (s *Store) tmproot() string {
	return filepath.Join(s.root, "tmp")
}

func (s *Store) chunkpath(id chunky.ChunkID) (string, error) {
	if _, err := chunky.ParseChunkID(string(id)); err != nil {
		return "", err
	}
	h := id.Hex()
	return filepath.Join(s.chunkroot(), string(id.Algorithm()), h[:2], h[:4], h), nil
}

func (s *Store) refpath(pos int) string {
	return filepath.Join(s.logroot(), strconv.Itoa(pos))
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(_ context.Context, id chunky.ChunkID) ([]byte, error) {
	path, err := s.chunkpath(id)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "chunk %s", id)
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(_ context.Context, id chunky.ChunkID) (bool, error) {
	path, err := s.chunkpath(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "statting %s", path)
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(_ context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	path, err := s.chunkpath(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	return s.writeExcl(path, data)
}

// writeExcl writes data to a temporary file and links it to path.
// It reports false, with no error, if path already exists.
func (s *Store) writeExcl(path string, data []byte) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}
	if err := os.MkdirAll(s.tmproot(), 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", s.tmproot())
	}

	f, err := ioutil.TempFile(s.tmproot(), "put")
	if err != nil {
		return false, errors.Wrap(err, "creating temp file")
	}
	tmpname := f.Name()
	defer os.Remove(tmpname)

	_, err = f.Write(data)
	if err != nil {
		f.Close()
		return false, errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = f.Close(); err != nil {
		return false, errors.Wrapf(err, "closing %s", tmpname)
	}

	err = os.Link(tmpname, path)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "linking %s", path)
	}
	return true, nil
}

// DeleteChunk removes a chunk.
func (s *Store) DeleteChunk(_ context.Context, id chunky.ChunkID) error {
	path, err := s.chunkpath(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

// ListChunks produces all chunk IDs in the store, in lexicographic order.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	algs, err := readDirNames(s.chunkroot())
	if err != nil {
		return err
	}
	for _, alg := range algs {
		algdir := filepath.Join(s.chunkroot(), alg)
		topLevel, err := readDirNames(algdir)
		if err != nil {
			return err
		}
		for _, top := range topLevel {
			if len(top) != 2 {
				continue
			}
			midLevel, err := readDirNames(filepath.Join(algdir, top))
			if err != nil {
				return err
			}
			for _, mid := range midLevel {
				if len(mid) != 4 {
					continue
				}
				names, err := readDirNames(filepath.Join(algdir, top, mid))
				if err != nil {
					return err
				}
				for _, name := range names {
					id, err := chunky.ParseChunkID(alg + "://" + name)
					if err != nil {
						continue
					}
					if err = ctx.Err(); err != nil {
						return err
					}
					if err = f(id); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// readDirNames returns the sorted names in dir,
// or nothing if dir does not exist.
func readDirNames(dir string) ([]string, error) {
	infos, err := ioutil.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading dir %s", dir)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (s *Store) lockpath() string {
	return filepath.Join(s.root, "log.lock")
}

func (s *Store) lockLog() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", s.root)
	}
	return s.flocker.Lock(s.lockpath())
}

func (s *Store) unlockLog() error {
	return s.flocker.Unlock(s.lockpath())
}

// GetRef gets the log entry at pos.
func (s *Store) GetRef(_ context.Context, pos int) ([]byte, error) {
	path := s.refpath(pos)
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
	}
	return data, errors.Wrapf(err, "reading %s", path)
}

// PutRef stores a log entry at pos, which must not already be taken.
// The log directory is locked for the duration.
func (s *Store) PutRef(_ context.Context, pos int, data []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}

	if err := s.lockLog(); err != nil {
		return errors.Wrap(err, "locking log")
	}
	defer s.unlockLog()

	added, err := s.writeExcl(s.refpath(pos), data)
	if err != nil {
		return err
	}
	if !added {
		return errors.Wrapf(chunky.ErrExists, "log position %d", pos)
	}
	return nil
}

// DeleteRef removes the log entry at pos.
func (s *Store) DeleteRef(_ context.Context, pos int) error {
	if err := s.lockLog(); err != nil {
		return errors.Wrap(err, "locking log")
	}
	defer s.unlockLog()

	err := os.Remove(s.refpath(pos))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing log position %d", pos)
}

// ListRefs produces all log positions in the store, in ascending order.
func (s *Store) ListRefs(_ context.Context, f func(int) error) error {
	names, err := readDirNames(s.logroot())
	if err != nil {
		return err
	}
	positions := make([]int, 0, len(names))
	for _, name := range names {
		pos, err := strconv.Atoi(name)
		if err != nil || pos < 0 {
			continue
		}
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		if err := f(pos); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (chunky.Store, error) {
		root, err := store.String(conf, "root")
		if err != nil {
			return nil, err
		}
		return New(root), nil
	})
}
