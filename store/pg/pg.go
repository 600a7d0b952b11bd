// Package pg implements a repository in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store"
)

var _ chunky.Store = &Store{}

// Store is a Postgresql-based repository.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `chunks` and `refs` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS refs (
  pos BIGINT PRIMARY KEY NOT NULL CHECK (pos >= 0),
  data BYTEA NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `chunks` and `refs`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// GetChunk gets the chunk with the given ID.
func (s *Store) GetChunk(ctx context.Context, id chunky.ChunkID) ([]byte, error) {
	const q = `SELECT data FROM chunks WHERE id = $1`

	var result []byte
	err := s.db.QueryRowContext(ctx, q, string(id)).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "chunk %s", id)
	}
	return result, errors.Wrapf(err, "getting chunk %s", id)
}

// ChunkExists tells whether a chunk is present.
func (s *Store) ChunkExists(ctx context.Context, id chunky.ChunkID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM chunks WHERE id = $1)`

	var result bool
	err := s.db.QueryRowContext(ctx, q, string(id)).Scan(&result)
	return result, errors.Wrapf(err, "checking for chunk %s", id)
}

// PutChunk adds a chunk to the store if it wasn't already present.
func (s *Store) PutChunk(ctx context.Context, id chunky.ChunkID, data []byte) (bool, error) {
	const q = `INSERT INTO chunks (id, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, string(id), data)
	if err != nil {
		return false, errors.Wrapf(err, "inserting chunk %s", id)
	}

	aff, err := res.RowsAffected()
	return aff > 0, errors.Wrap(err, "counting affected rows")
}

// DeleteChunk removes a chunk.
func (s *Store) DeleteChunk(ctx context.Context, id chunky.ChunkID) error {
	const q = `DELETE FROM chunks WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, string(id))
	return errors.Wrapf(err, "deleting chunk %s", id)
}

// ListChunks produces all chunk IDs in the store, in lexicographic order.
// IDs are ASCII, so byte-wise collation gives lexicographic order.
func (s *Store) ListChunks(ctx context.Context, f func(chunky.ChunkID) error) error {
	const q = `SELECT id FROM chunks ORDER BY id COLLATE "C"`
	return sqlutil.ForQueryRows(ctx, s.db, q, func(id string) error {
		return f(chunky.ChunkID(id))
	})
}

// GetRef gets the log entry at pos.
func (s *Store) GetRef(ctx context.Context, pos int) ([]byte, error) {
	const q = `SELECT data FROM refs WHERE pos = $1`

	var result []byte
	err := s.db.QueryRowContext(ctx, q, pos).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(chunky.ErrNotFound, "log position %d", pos)
	}
	return result, errors.Wrapf(err, "getting log position %d", pos)
}

// PutRef stores a log entry at pos, which must not already be taken.
func (s *Store) PutRef(ctx context.Context, pos int, data []byte) error {
	if pos < 0 {
		return errors.Wrapf(chunky.ErrConfig, "negative log position %d", pos)
	}

	const q = `INSERT INTO refs (pos, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, pos, data)
	if err != nil {
		return errors.Wrapf(err, "inserting log position %d", pos)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return errors.Wrapf(chunky.ErrExists, "log position %d", pos)
	}
	return nil
}

// DeleteRef removes the log entry at pos.
func (s *Store) DeleteRef(ctx context.Context, pos int) error {
	const q = `DELETE FROM refs WHERE pos = $1`
	_, err := s.db.ExecContext(ctx, q, pos)
	return errors.Wrapf(err, "deleting log position %d", pos)
}

// ListRefs produces all log positions in the store, in ascending order.
func (s *Store) ListRefs(ctx context.Context, f func(int) error) error {
	const q = `SELECT pos FROM refs ORDER BY pos`
	return sqlutil.ForQueryRows(ctx, s.db, q, f)
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (chunky.Store, error) {
		conn, err := store.String(conf, "conn")
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
