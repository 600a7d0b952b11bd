package gc

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/snapshot"
)

// Keep is a set of chunk IDs to protect from garbage collection.
type Keep interface {
	// Add adds a single ID to the Keep.
	// It returns true if it was newly added and false if it was already present.
	Add(context.Context, chunky.ChunkID) (bool, error)

	// Contains tells whether an ID is in the Keep.
	Contains(context.Context, chunky.ChunkID) (bool, error)
}

// Protect adds every chunk of ref to the Keep.
func Protect(ctx context.Context, k Keep, ref snapshot.ContentReference) error {
	for _, id := range ref.ChunkIDs() {
		if _, err := k.Add(ctx, id); err != nil {
			return errors.Wrapf(err, "adding %s", id)
		}
	}
	return nil
}

// MemKeep is an in-memory Keep.
// It is safe for concurrent use.
type MemKeep struct {
	mu sync.Mutex
	m  map[chunky.ChunkID]struct{}
}

var _ Keep = &MemKeep{}

// NewMemKeep produces an empty MemKeep.
func NewMemKeep() *MemKeep {
	return &MemKeep{m: make(map[chunky.ChunkID]struct{})}
}

func (k *MemKeep) Add(_ context.Context, id chunky.ChunkID) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.m[id]; ok {
		return false, nil
	}
	k.m[id] = struct{}{}
	return true, nil
}

func (k *MemKeep) Contains(_ context.Context, id chunky.ChunkID) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, ok := k.m[id]
	return ok, nil
}

// Len is the number of IDs in k.
func (k *MemKeep) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
