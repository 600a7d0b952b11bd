// Package snapshotstore records backup history in a repository.
//
// The repository log holds one snapshot.Reference per position.
// Each Reference points to an encrypted snapshot.Snapshot document,
// which in turn points to the encrypted content of each blob.
// Store is the only thing that writes the log.
//
// A Store may be used by multiple goroutines,
// but only one Store (in one process) may write a given repository at a time.
// In particular, do not garbage-collect a repository while something appends to it.
package snapshotstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/aesgcm"
	"github.com/bobg/chunky/content"
	"github.com/bobg/chunky/fastcdc"
	"github.com/bobg/chunky/password"
	"github.com/bobg/chunky/snapshot"
)

// Latest and SecondLatest are snapshot IDs relative to the end of the log.
const (
	Latest       = -1
	SecondLatest = -2
)

// Store records and retrieves snapshots in a repository.
type Store struct {
	s          chunky.Store
	content    *content.Store
	prompt     password.Prompt
	repoID     string
	iterations int
	workers    int
	logger     *logrus.Logger
	now        func() time.Time

	chunker *fastcdc.Chunker
	hash    chunky.Hash

	// writeMu serializes operations that change the log.
	writeMu sync.Mutex

	mu      sync.Mutex
	current int // -1 when the log is empty
	pw      string
	session *session
	keys    map[keyParams]aesgcm.Key
}

type keyParams struct {
	salt       string
	iterations int
}

// session holds the parameters for writing new references.
type session struct {
	salt       []byte
	iterations int
	key        aesgcm.Key
}

// Option is the type of an option passed to New.
type Option func(*Store)

// WithChunker sets the chunker for new content.
func WithChunker(c *fastcdc.Chunker) Option {
	return func(s *Store) { s.chunker = c }
}

// WithHash sets the hash algorithm for new chunk IDs.
func WithHash(h chunky.Hash) Option {
	return func(s *Store) { s.hash = h }
}

// WithIterations sets the PBKDF2 iteration count used when starting a new repository.
// An existing repository keeps the count recorded in its latest reference.
func WithIterations(n int) Option {
	return func(s *Store) { s.iterations = n }
}

// WithWorkers sets the concurrency of blob and chunk processing.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRepoID sets the repository identity passed to the password prompt.
func WithRepoID(id string) Option {
	return func(s *Store) { s.repoID = id }
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New produces a Store on the repository s.
// The password is not requested until an operation needs a key.
func New(ctx context.Context, s chunky.Store, p password.Prompt, opts ...Option) (*Store, error) {
	result := &Store{
		s:          s,
		prompt:     p,
		iterations: aesgcm.DefaultIterations,
		workers:    runtime.NumCPU(),
		logger:     logrus.StandardLogger(),
		now:        time.Now,
		hash:       chunky.DefaultHash,
		keys:       make(map[keyParams]aesgcm.Key),
	}
	for _, opt := range opts {
		opt(result)
	}
	if result.iterations <= 0 {
		return nil, errors.Wrapf(chunky.ErrConfig, "iteration count %d", result.iterations)
	}
	result.content = content.New(s, result.chunker, content.WithHash(result.hash), content.WithWorkers(result.workers))

	current, err := fetchCurrent(ctx, s)
	if err != nil {
		return nil, err
	}
	result.current = current
	return result, nil
}

func fetchCurrent(ctx context.Context, g chunky.Getter) (int, error) {
	current := -1
	err := g.ListRefs(ctx, func(pos int) error {
		if pos > current {
			current = pos
		}
		return nil
	})
	return current, errors.Wrap(err, "listing log positions")
}

func (s *Store) refreshCurrent(ctx context.Context) error {
	current, err := fetchCurrent(ctx, s.s)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = current
	s.mu.Unlock()
	return nil
}

// Repo is the underlying repository.
func (s *Store) Repo() chunky.Store { return s.s }

// Current returns the latest log position,
// or false if the log is empty.
func (s *Store) Current() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current >= 0
}

// Resolve turns a snapshot ID into a log position.
// Non-negative IDs are positions already.
// Negative IDs count back from the end of the log:
// -1 is the latest position, -2 the one before it, and so on.
// An ID reaching past the start of the log produces an error wrapping chunky.ErrNotFound.
func (s *Store) Resolve(ctx context.Context, id int) (int, error) {
	if id >= 0 {
		return id, nil
	}
	if id == Latest {
		if current, ok := s.Current(); ok {
			return current, nil
		}
	}
	positions, err := chunky.RefPositions(ctx, s.s)
	if err != nil {
		return 0, errors.Wrap(err, "listing log positions")
	}
	i := len(positions) + id
	if i < 0 {
		return 0, errors.Wrapf(chunky.ErrNotFound, "snapshot %d", id)
	}
	return positions[i], nil
}

// GetReference returns the snapshot reference with the given ID.
func (s *Store) GetReference(ctx context.Context, id int) (snapshot.Reference, error) {
	pos, err := s.Resolve(ctx, id)
	if err != nil {
		return snapshot.Reference{}, err
	}
	return s.reference(ctx, pos)
}

func (s *Store) reference(ctx context.Context, pos int) (snapshot.Reference, error) {
	var ref snapshot.Reference
	data, err := s.s.GetRef(ctx, pos)
	if err != nil {
		return ref, errors.Wrapf(err, "getting snapshot reference %d", pos)
	}
	err = json.Unmarshal(data, &ref)
	return ref, errors.Wrapf(err, "decoding snapshot reference %d", pos)
}

// Get returns the snapshot with the given ID.
func (s *Store) Get(ctx context.Context, id int) (*snapshot.Snapshot, error) {
	snap, _, err := s.get(ctx, id)
	return snap, err
}

func (s *Store) get(ctx context.Context, id int) (*snapshot.Snapshot, snapshot.Reference, error) {
	pos, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, snapshot.Reference{}, err
	}
	ref, err := s.reference(ctx, pos)
	if err != nil {
		return nil, ref, err
	}
	snap, err := s.open(ctx, ref)
	return snap, ref, errors.Wrapf(err, "reading snapshot %d", pos)
}

func (s *Store) open(ctx context.Context, ref snapshot.Reference) (*snapshot.Snapshot, error) {
	key, err := s.keyFor(ctx, ref.Salt, ref.Iterations)
	if err != nil {
		return nil, err
	}
	snap := new(snapshot.Snapshot)
	err = s.content.RetrieveDocument(ctx, ref.ChunkIds, key, snap)
	return snap, err
}

// getPassword obtains the password once,
// asking for a new one if the log is empty.
func (s *Store) getPassword() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pw != "" {
		return s.pw, nil
	}

	var (
		pw  string
		err error
	)
	if s.current < 0 {
		pw, err = s.prompt.NewPassword(s.repoID)
	} else {
		pw, err = s.prompt.ExistingPassword(s.repoID)
	}
	if err != nil {
		return "", errors.Wrap(err, "getting password")
	}
	if pw == "" {
		return "", errors.Wrap(chunky.ErrCrypto, "empty password")
	}
	s.pw = pw
	return pw, nil
}

// keyFor derives the key for a reference's salt and iteration count.
// References written under different parameters each get their own key.
func (s *Store) keyFor(ctx context.Context, salt []byte, iterations int) (aesgcm.Key, error) {
	kp := keyParams{salt: hex.EncodeToString(salt), iterations: iterations}

	s.mu.Lock()
	key, ok := s.keys[kp]
	s.mu.Unlock()
	if ok {
		return key, nil
	}

	pw, err := s.getPassword()
	if err != nil {
		return nil, err
	}
	key, err = aesgcm.DeriveKey(pw, salt, iterations)
	if err != nil {
		return nil, errors.Wrap(err, "deriving key")
	}

	s.mu.Lock()
	s.keys[kp] = key
	s.mu.Unlock()
	return key, nil
}

// writeSession returns the parameters for new references.
// A new repository gets a fresh salt;
// an existing one continues with the salt and iteration count of its latest reference.
func (s *Store) writeSession(ctx context.Context) (*session, error) {
	s.mu.Lock()
	sess, current := s.session, s.current
	s.mu.Unlock()
	if sess != nil {
		return sess, nil
	}

	var (
		salt       []byte
		iterations int
		err        error
	)
	if current < 0 {
		salt, err = aesgcm.NewSalt()
		if err != nil {
			return nil, err
		}
		iterations = s.iterations
	} else {
		ref, err := s.reference(ctx, current)
		if err != nil {
			return nil, err
		}
		salt, iterations = ref.Salt, ref.Iterations
	}
	key, err := s.keyFor(ctx, salt, iterations)
	if err != nil {
		return nil, err
	}
	sess = &session{salt: salt, iterations: iterations, key: key}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	return sess, nil
}
