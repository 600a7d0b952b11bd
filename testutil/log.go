package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/chunky"
)

// Log tests the log key space of an empty store.
func Log(ctx context.Context, t *testing.T, store chunky.Store) {
	positions, err := chunky.RefPositions(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Fatalf("got positions %v in empty store", positions)
	}

	for _, pos := range []int{2, 0, 1, 10} {
		if err := store.PutRef(ctx, pos, []byte(fmt.Sprintf("entry %d", pos))); err != nil {
			t.Fatal(err)
		}
	}

	err = store.PutRef(ctx, 1, []byte("overwrite"))
	if !errors.Is(err, chunky.ErrExists) {
		t.Errorf("got error %v overwriting position 1, want ErrExists", err)
	}

	err = store.PutRef(ctx, -1, []byte("negative"))
	if err == nil {
		t.Error("got no error storing at a negative position")
	}

	got, err := store.GetRef(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "entry 1" {
		t.Errorf("got %q at position 1, want %q", got, "entry 1")
	}

	positions, err = chunky.RefPositions(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 10}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err = store.DeleteRef(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err = store.DeleteRef(ctx, 1); err != nil {
		t.Errorf("deleting absent position: %s", err)
	}
	_, err = store.GetRef(ctx, 1)
	if !errors.Is(err, chunky.ErrNotFound) {
		t.Errorf("got error %v after deleting position 1, want ErrNotFound", err)
	}

	positions, err = chunky.RefPositions(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 2, 10}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
