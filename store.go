package chunky

import "context"

// Getter is a read-only Store (qv).
type Getter interface {
	// GetChunk gets a chunk by its ID.
	// It returns ErrNotFound if there is no such chunk.
	GetChunk(context.Context, ChunkID) ([]byte, error)

	// ChunkExists tells whether a chunk is present.
	ChunkExists(context.Context, ChunkID) (bool, error)

	// ListChunks calls a function for each chunk ID in the store in lexicographic order.
	//
	// The calls reflect at least the set of chunks
	// known at the moment ListChunks was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListChunks,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListChunks exits with that error.
	ListChunks(context.Context, func(ChunkID) error) error

	// GetRef gets the log entry at the given position.
	// It returns ErrNotFound if there is none.
	GetRef(context.Context, int) ([]byte, error)

	// ListRefs calls a function for each log position in ascending order.
	// Callback errors are handled as in ListChunks.
	ListRefs(context.Context, func(int) error) error
}

// Store is a repository of encrypted chunks and a log of snapshot references.
// The two key spaces are independent:
// chunks are keyed by ChunkID,
// log entries by non-negative integer position.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	Getter

	// PutChunk stores data under id if it was not already present.
	// It returns true iff the chunk had to be added.
	// Callers are responsible for id matching data.
	PutChunk(ctx context.Context, id ChunkID, data []byte) (added bool, err error)

	// DeleteChunk removes a chunk.
	// Removing an absent chunk is not an error.
	DeleteChunk(context.Context, ChunkID) error

	// PutRef stores a log entry at a position.
	// The log is append-only:
	// if the position is already taken the result is ErrExists.
	PutRef(ctx context.Context, pos int, data []byte) error

	// DeleteRef removes a log entry.
	// Removing an absent entry is not an error.
	DeleteRef(context.Context, int) error
}
