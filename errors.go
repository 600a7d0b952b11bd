package chunky

import "errors"

var (
	// ErrConfig is for bad chunk-size bounds, malformed identifiers,
	// and other invalid parameters.
	ErrConfig = errors.New("invalid configuration")

	// ErrCrypto means authentication failed while decrypting
	// (wrong password or corrupted ciphertext),
	// or a key could not be derived.
	ErrCrypto = errors.New("cryptographic failure")

	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent chunk or log position,
	// or when an operation needs a snapshot and the log is empty.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity means a chunk's content no longer hashes to its ID.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrDivergedHistory means two repositories
	// hold different snapshot references at the same log position.
	ErrDivergedHistory = errors.New("diverged history")

	// ErrExists is returned by PutRef when the log position is already taken.
	ErrExists = errors.New("already exists")
)
