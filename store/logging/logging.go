// Package logging implements a repository that delegates everything to a nested repository,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

type Store struct {
	s   chunky.Store
	log logrus.FieldLogger
}

// New produces a Store wrapping s.
// A nil logger means logrus.StandardLogger().
func New(s chunky.Store, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{s: s, log: logger}
}

func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	b, err := s.s.GetChunk(ctx, id)
	l := s.log.WithField("chunk", id)
	if err != nil {
		l.WithError(err).Error("GetChunk")
	} else {
		l.WithField("size", len(b)).Debug("GetChunk")
	}
	return b, err
}

func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	ok, err := s.s.ChunkExists(ctx, id)
	l := s.log.WithField("chunk", id)
	if err != nil {
		l.WithError(err).Error("ChunkExists")
	} else {
		l.WithField("exists", ok).Debug("ChunkExists")
	}
	return ok, err
}

func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	added, err := s.s.PutChunk(ctx, id, data)
	l := s.log.WithField("chunk", id)
	if err != nil {
		l.WithError(err).Error("PutChunk")
	} else {
		l.WithFields(logrus.Fields{"size": len(data), "added": added}).Debug("PutChunk")
	}
	return added, err
}

func (s *Store) DeleteChunk(ctx context.Context, id chunky.ChunkID) error {
	err := s.s.DeleteChunk(ctx, id)
	l := s.log.WithField("chunk", id)
	if err != nil {
		l.WithError(err).Error("DeleteChunk")
	} else {
		l.Debug("DeleteChunk")
	}
	return err
}

func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	s.log.Debug("ListChunks")
	return s.s.ListChunks(ctx, func(id chunky.ChunkID) error {
		err := f(id)
		if err != nil {
			s.log.WithField("chunk", id).WithError(err).Error("in ListChunks")
		} else {
			s.log.WithField("chunk", id).Trace("ListChunks")
		}
		return err
	})
}

func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	b, err := s.s.GetRef(ctx, pos)
	l := s.log.WithField("pos", pos)
	if err != nil {
		l.WithError(err).Error("GetRef")
	} else {
		l.Debug("GetRef")
	}
	return b, err
}

func (s *Store) PutRef(ctx context.Context, pos int, data []byte) error {
	err := s.s.PutRef(ctx, pos, data)
	l := s.log.WithField("pos", pos)
	if err != nil {
		l.WithError(err).Error("PutRef")
	} else {
		l.Debug("PutRef")
	}
	return err
}

func (s *Store) DeleteRef(ctx context.Context, pos int) error {
	err := s.s.DeleteRef(ctx, pos)
	l := s.log.WithField("pos", pos)
	if err != nil {
		l.WithError(err).Error("DeleteRef")
	} else {
		l.Debug("DeleteRef")
	}
	return err
}

func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	s.log.Debug("ListRefs")
	return s.s.ListRefs(ctx, func(pos int) error {
		err := f(pos)
		if err != nil {
			s.log.WithField("pos", pos).WithError(err).Error("in ListRefs")
		} else {
			s.log.WithField("pos", pos).Trace("ListRefs")
		}
		return err
	})
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, nil), nil
	})
}
