// Package dir implements a blob system on a directory tree.
// Blob names are slash-separated paths relative to the root.
package dir

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/snapshot"
)

var _ blobsys.System = &Dir{}

// Dir is a blob system rooted at a directory.
type Dir struct {
	root string
}

// New produces a new Dir rooted at root.
func New(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) path(name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", errors.Wrapf(chunky.ErrConfig, "blob name %q is outside the root", name)
	}
	return filepath.Join(d.root, filepath.FromSlash(name)), nil
}

func (d *Dir) ListBlobs(ctx context.Context, exclude *fuzzy.Fuzzy) ([]snapshot.Blob, error) {
	var result []snapshot.Blob
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if exclude.IsExcludingMatch(name) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		result = append(result, snapshot.NewBlob(name, info.ModTime()))
		return nil
	})
	return result, errors.Wrapf(err, "walking %s", d.root)
}

func (d *Dir) OpenRead(_ context.Context, name string) (io.ReadCloser, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "blob %s", name)
	}
	return f, errors.Wrapf(err, "opening %s", path)
}

func (d *Dir) BlobExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := d.GetBlob(ctx, name)
	return ok, err
}

func (d *Dir) GetBlob(_ context.Context, name string) (snapshot.Blob, bool, error) {
	path, err := d.path(name)
	if err != nil {
		return snapshot.Blob{}, false, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return snapshot.Blob{}, false, nil
	}
	if err != nil {
		return snapshot.Blob{}, false, errors.Wrapf(err, "statting %s", path)
	}
	if !info.Mode().IsRegular() {
		return snapshot.Blob{}, false, nil
	}
	return snapshot.NewBlob(name, info.ModTime()), true, nil
}

// OpenWrite writes to a temporary file beside the destination.
// Close renames it into place and sets its modification time.
func (d *Dir) OpenWrite(_ context.Context, blob snapshot.Blob) (io.WriteCloser, error) {
	path, err := d.path(blob.Name)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	f, err := os.CreateTemp(dir, ".chunky-*")
	if err != nil {
		return nil, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	return &fileWriter{File: f, dest: path, mtime: blob.LastWriteTimeUtc}, nil
}

type fileWriter struct {
	*os.File
	dest  string
	mtime time.Time
}

func (w *fileWriter) Close() error {
	tmpname := w.Name()
	if err := w.File.Close(); err != nil {
		os.Remove(tmpname)
		return errors.Wrapf(err, "closing %s", tmpname)
	}
	if err := os.Rename(tmpname, w.dest); err != nil {
		os.Remove(tmpname)
		return errors.Wrapf(err, "renaming %s to %s", tmpname, w.dest)
	}
	return errors.Wrapf(os.Chtimes(w.dest, w.mtime, w.mtime), "setting times on %s", w.dest)
}

func (d *Dir) RemoveBlob(_ context.Context, name string) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

// Abort discards the temporary file, leaving any existing blob in place.
func (w *fileWriter) Abort() error {
	tmpname := w.Name()
	w.File.Close()
	return errors.Wrapf(os.Remove(tmpname), "removing %s", tmpname)
}
