package dryrun

import (
	"context"
	"errors"
	"testing"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store/mem"
)

func TestDryRun(t *testing.T) {
	ctx := context.Background()

	nested := mem.New()
	if _, err := nested.PutChunk(ctx, "sha256://01", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := nested.PutRef(ctx, 0, []byte("ref")); err != nil {
		t.Fatal(err)
	}

	s := New(nested)

	added, err := s.PutChunk(ctx, "sha256://02", []byte("new"))
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("new chunk not reported as added")
	}
	added, err = s.PutChunk(ctx, "sha256://01", []byte("old"))
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("existing chunk reported as added")
	}
	if ok, _ := nested.ChunkExists(ctx, "sha256://02"); ok {
		t.Error("dry run wrote a chunk")
	}

	if err = s.DeleteChunk(ctx, "sha256://01"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := nested.ChunkExists(ctx, "sha256://01"); !ok {
		t.Error("dry run deleted a chunk")
	}

	if err = s.PutRef(ctx, 0, []byte("other")); !errors.Is(err, chunky.ErrExists) {
		t.Errorf("got error %v for taken position, want ErrExists", err)
	}
	if err = s.PutRef(ctx, 1, []byte("other")); err != nil {
		t.Fatal(err)
	}
	if _, err = nested.GetRef(ctx, 1); !errors.Is(err, chunky.ErrNotFound) {
		t.Errorf("dry run wrote a log entry (err %v)", err)
	}

	if err = s.DeleteRef(ctx, 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRef(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ref" {
		t.Errorf("got %q, want %q", got, "ref")
	}
}
