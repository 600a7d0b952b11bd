package testutil

import (
	"context"
	"errors"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/chunky"
)

// AllChunks writes a random set of random chunks to an empty store
// and makes sure that the right set of IDs comes back in a call to ListChunks.
// It also checks ChunkExists, GetChunk, and DeleteChunk.
func AllChunks(ctx context.Context, t *testing.T, storeFactory func() chunky.Store) {
	if err := quick.Check(allChunksHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allChunksHelper(ctx context.Context, t *testing.T, storeFactory func() chunky.Store) func([][]byte) bool {
	return func(chunks [][]byte) bool {
		var (
			store = storeFactory()
			want  []chunky.ChunkID
		)
		for _, chunk := range chunks {
			id := chunky.Compute(chunky.SHA256, chunk)
			added, err := store.PutChunk(ctx, id, chunk)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, id)
			}
		}
		got, err := chunky.ChunkIDs(ctx, store)
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}

		for _, chunk := range chunks {
			id := chunky.Compute(chunky.SHA256, chunk)
			ok, err := store.ChunkExists(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Logf("chunk %s missing", id)
				return false
			}
			data, err := store.GetChunk(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if !id.Valid(data) {
				t.Logf("chunk %s came back with different content", id)
				return false
			}
		}

		for _, id := range want {
			if err := store.DeleteChunk(ctx, id); err != nil {
				t.Fatal(err)
			}
			if err := store.DeleteChunk(ctx, id); err != nil {
				t.Logf("deleting absent chunk: %s", err)
				return false
			}
			if _, err := store.GetChunk(ctx, id); !errors.Is(err, chunky.ErrNotFound) {
				t.Logf("got error %v after deleting %s, want ErrNotFound", err, id)
				return false
			}
		}
		return true
	}
}
