package snapshotstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/blobsys"
	"github.com/bobg/chunky/fastcdc"
	"github.com/bobg/chunky/fuzzy"
	"github.com/bobg/chunky/password"
	"github.com/bobg/chunky/snapshot"
	"github.com/bobg/chunky/store/mem"
	"github.com/bobg/chunky/testutil"
)

var t0 = time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newStore(t *testing.T, repo chunky.Store, pw string) *Store {
	chunker, err := fastcdc.New(64, 256, 1024)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), repo, password.Static(pw),
		WithChunker(chunker),
		WithIterations(10),
		WithWorkers(4),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return t0 }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// countingSys counts OpenRead calls per blob.
type countingSys struct {
	*blobsys.Mem
	mu    sync.Mutex
	opens map[string]int
}

func newCountingSys() *countingSys {
	return &countingSys{Mem: blobsys.NewMem(), opens: make(map[string]int)}
}

func (c *countingSys) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens[name]++
	c.mu.Unlock()
	return c.Mem.OpenRead(ctx, name)
}

func (c *countingSys) reset() {
	c.mu.Lock()
	c.opens = make(map[string]int)
	c.mu.Unlock()
}

func sampleSys(t *testing.T) *countingSys {
	sys := newCountingSys()
	sys.Put(snapshot.NewBlob("a.txt", t0), testutil.RandomData(t, 1, 5000))
	sys.Put(snapshot.NewBlob("b.txt", t0), testutil.RandomData(t, 2, 8000))
	sys.Put(snapshot.NewBlob("sub/c.mp3", t0), testutil.RandomData(t, 3, 3000))
	sys.Put(snapshot.NewBlob("empty", t0), nil)
	return sys
}

func TestAppendAndRestore(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()
	s := newStore(t, repo, "secret")
	sys := sampleSys(t)

	pos, err := s.AppendFrom(ctx, sys, nil, nil, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 {
		t.Errorf("got position %d, want 0", pos)
	}

	snap, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.CreationTimeUtc.Equal(t0) {
		t.Errorf("got creation time %s, want %s", snap.CreationTimeUtc, t0)
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt", "empty", "sub/c.mp3"}, snap.Names()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	// A fresh Store on the same repository sees the same thing.
	s2 := newStore(t, repo, "secret")
	snap2, err := s2.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Equal(snap2) {
		t.Error("snapshot differs when read by a new Store")
	}

	dst := blobsys.NewMem()
	restored, err := s2.Restore(ctx, Latest, nil, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 4 {
		t.Errorf("restored %d blobs, want 4", len(restored))
	}
	for _, name := range snap.Names() {
		want, _ := sys.Content(name)
		got, ok := dst.Content(name)
		if !ok {
			t.Errorf("blob %s not restored", name)
			continue
		}
		if !bytes.Equal(want, got) {
			t.Errorf("blob %s restored with different content", name)
		}
		b, _, _ := dst.GetBlob(ctx, name)
		if !b.LastWriteTimeUtc.Equal(t0) {
			t.Errorf("blob %s restored with time %s, want %s", name, b.LastWriteTimeUtc, t0)
		}
	}

	// Restoring again writes nothing, since every blob matches.
	restored, err = s2.Restore(ctx, Latest, fuzzy.MustNew("txt"), failingWriter{dst})
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 {
		t.Errorf("restored %d blobs, want 2", len(restored))
	}

	var buf bytes.Buffer
	if err = s2.RetrieveBlob(ctx, Latest, "b.txt", &buf); err != nil {
		t.Fatal(err)
	}
	want, _ := sys.Content("b.txt")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Error("RetrieveBlob produced different content")
	}

	br, _ := snap.Find("a.txt")
	buf.Reset()
	if err = s2.RetrieveContent(ctx, Latest, br.ChunkIds, &buf); err != nil {
		t.Fatal(err)
	}
	want, _ = sys.Content("a.txt")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Error("RetrieveContent produced different content")
	}
}

// failingWriter fails if anything is written.
type failingWriter struct {
	blobsys.Writer
}

func (f failingWriter) OpenWrite(_ context.Context, blob snapshot.Blob) (io.WriteCloser, error) {
	return nil, errors.New("unexpected write of " + blob.Name)
}

func TestReuse(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, mem.New(), "secret")
	sys := sampleSys(t)

	if _, err := s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	first, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}

	// Unchanged blobs are not opened and keep their references.
	sys.reset()
	sys.Put(snapshot.NewBlob("b.txt", t0.Add(time.Minute)), testutil.RandomData(t, 4, 8000))
	sys.Put(snapshot.NewBlob("new", t0), []byte("new blob"))

	pos, err := s.AppendFrom(ctx, sys, nil, nil, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if pos != 1 {
		t.Errorf("got position %d, want 1", pos)
	}
	if diff := cmp.Diff(map[string]int{"b.txt": 1, "new": 1}, sys.opens); diff != "" {
		t.Errorf("opens mismatch (-want +got):\n%s", diff)
	}

	second, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.txt", "sub/c.mp3", "empty"} {
		a, _ := first.Find(name)
		b, _ := second.Find(name)
		if !a.Equal(b) {
			t.Errorf("reference for unchanged blob %s differs", name)
		}
	}

	// A changed blob keeps its nonce.
	a, _ := first.Find("b.txt")
	b, _ := second.Find("b.txt")
	if !bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("changed blob got a new nonce")
	}
	if a.Equal(b) {
		t.Error("changed blob has an unchanged reference")
	}

	// A scan pattern forces a re-read, which produces the same reference.
	sys.reset()
	if _, err = s.AppendFrom(ctx, sys, nil, fuzzy.MustNew("a.txt"), t0); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int{"a.txt": 1}, sys.opens); diff != "" {
		t.Errorf("opens mismatch (-want +got):\n%s", diff)
	}
	third, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}
	a, _ = second.Find("a.txt")
	b, _ = third.Find("a.txt")
	if !a.Equal(b) {
		t.Error("rescanned unchanged blob produced a different reference")
	}

	d, err := s.Diff(ctx, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snapshot.DiffSet{Added: []string{"new"}, Changed: []string{"b.txt"}}, d); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()
	s := newStore(t, repo, "secret")
	sys := sampleSys(t)

	if _, err := s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	before, err := chunky.ChunkIDs(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}

	// Rescanning everything stores only a new snapshot document.
	if _, err = s.AppendFrom(ctx, sys, nil, fuzzy.MustNew(""), t0); err != nil {
		t.Fatal(err)
	}
	after, err := chunky.ChunkIDs(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := s.GetReference(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) > len(before)+len(ref.ChunkIds) {
		t.Errorf("chunk count went from %d to %d, with %d document chunks", len(before), len(after), len(ref.ChunkIds))
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, mem.New(), "secret")

	for _, id := range []int{Latest, SecondLatest} {
		if _, err := s.Resolve(ctx, id); !errors.Is(err, chunky.ErrNotFound) {
			t.Errorf("resolving %d in empty log: got error %v, want ErrNotFound", id, err)
		}
	}
	if _, err := s.Get(ctx, Latest); !errors.Is(err, chunky.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, 3); !errors.Is(err, chunky.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}

	sys := sampleSys(t)
	for i := 0; i < 4; i++ {
		if _, err := s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Remove(ctx, 2); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		id, want int
		wantErr  bool
	}{
		{id: 0, want: 0},
		{id: 5, want: 5},
		{id: -1, want: 3},
		{id: -2, want: 1},
		{id: -3, want: 0},
		{id: -4, wantErr: true},
	}
	for _, c := range cases {
		got, err := s.Resolve(ctx, c.id)
		if c.wantErr {
			if !errors.Is(err, chunky.ErrNotFound) {
				t.Errorf("resolving %d: got error %v, want ErrNotFound", c.id, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolving %d: %s", c.id, err)
			continue
		}
		if got != c.want {
			t.Errorf("resolving %d: got %d, want %d", c.id, got, c.want)
		}
	}

	// Removing the latest moves the current position back.
	if err := s.Remove(ctx, Latest); err != nil {
		t.Fatal(err)
	}
	if current, _ := s.Current(); current != 1 {
		t.Errorf("got current position %d, want 1", current)
	}
	pos, err := s.AppendFrom(ctx, sys, nil, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 2 {
		t.Errorf("got position %d, want 2", pos)
	}
}

func TestWrongPassword(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()
	s := newStore(t, repo, "secret")
	if _, err := s.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}

	s2 := newStore(t, repo, "wrong")
	if _, err := s2.Get(ctx, Latest); !errors.Is(err, chunky.ErrCrypto) {
		t.Errorf("got error %v, want ErrCrypto", err)
	}
	if _, err := s2.AppendFrom(ctx, sampleSys(t), nil, nil, t0); !errors.Is(err, chunky.ErrCrypto) {
		t.Errorf("got error %v appending, want ErrCrypto", err)
	}
	positions, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

type promptFunc func(string) (string, error)

func (f promptFunc) NewPassword(id string) (string, error)      { return f("new " + id) }
func (f promptFunc) ExistingPassword(id string) (string, error) { return f("existing " + id) }

func TestPrompt(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()

	var calls []string
	p := promptFunc(func(s string) (string, error) {
		calls = append(calls, s)
		return "secret", nil
	})

	s, err := New(ctx, repo, p, WithIterations(10), WithRepoID("repo"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Errorf("password requested before it was needed: %v", calls)
	}
	if _, err = s.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	if _, err = s.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}

	s, err = New(ctx, repo, p, WithIterations(10), WithRepoID("repo"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Get(ctx, Latest); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"new repo", "existing repo"}, calls); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()
	s := newStore(t, repo, "secret")
	if _, err := s.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}

	for _, check := range []func(context.Context, int, *fuzzy.Fuzzy) (bool, error){s.CheckExists, s.CheckValid} {
		ok, err := check(ctx, Latest, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Error("intact snapshot fails check")
		}
	}

	snap, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt a chunk of a.txt.
	a, _ := snap.Find("a.txt")
	data, err := repo.GetChunk(ctx, a.ChunkIds[0])
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 1
	repo.DeleteChunk(ctx, a.ChunkIds[0])
	repo.PutChunk(ctx, a.ChunkIds[0], corrupt)

	ok, err := s.CheckExists(ctx, Latest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("corrupt chunk reported missing")
	}
	ok, err = s.CheckValid(ctx, Latest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("corrupt chunk reported valid")
	}
	ok, err = s.CheckValid(ctx, Latest, fuzzy.MustNew("b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("check of intact blob fails")
	}

	// Remove a chunk of b.txt.
	b, _ := snap.Find("b.txt")
	repo.DeleteChunk(ctx, b.ChunkIds[0])
	ok, err = s.CheckExists(ctx, Latest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing chunk reported present")
	}

	_, err = s.Restore(ctx, Latest, fuzzy.MustNew("a.txt"), blobsys.NewMem())
	if !errors.Is(err, chunky.ErrCrypto) {
		t.Errorf("got error %v restoring corrupt blob, want ErrCrypto", err)
	}
	_, err = s.Restore(ctx, Latest, fuzzy.MustNew("b.txt"), blobsys.NewMem())
	if !errors.Is(err, chunky.ErrNotFound) {
		t.Errorf("got error %v restoring incomplete blob, want ErrNotFound", err)
	}
}

func TestKeepAndGC(t *testing.T) {
	ctx := context.Background()
	repo := mem.New()
	s := newStore(t, repo, "secret")
	sys := sampleSys(t)

	for i := 0; i < 4; i++ {
		sys.Put(snapshot.NewBlob("changing", t0.Add(time.Duration(i)*time.Second)), testutil.RandomData(t, int64(10+i), 4000))
		if _, err := s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Keep(ctx, -1); !errors.Is(err, chunky.ErrConfig) {
		t.Errorf("got error %v, want ErrConfig", err)
	}

	removed, err := s.Keep(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1}, removed); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	positions, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 3}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	deleted, err := s.GarbageCollect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) == 0 {
		t.Error("nothing collected")
	}

	// Everything reachable survives and nothing else does.
	reachable := make(map[chunky.ChunkID]bool)
	for _, pos := range positions {
		ids, err := s.reachable(ctx, pos)
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range ids {
			reachable[id] = true
		}
	}
	remaining, err := chunky.ChunkIDs(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != len(reachable) {
		t.Errorf("%d chunks remain, want %d", len(remaining), len(reachable))
	}
	for _, id := range remaining {
		if !reachable[id] {
			t.Errorf("unreachable chunk %s remains", id)
		}
	}
	for _, pos := range positions {
		ok, err := s.CheckValid(ctx, pos, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("snapshot %d damaged by garbage collection", pos)
		}
	}

	if _, err = s.Keep(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Current(); ok {
		t.Error("log not empty after keeping 0")
	}
	if _, err = s.GarbageCollect(ctx); err != nil {
		t.Fatal(err)
	}
	remaining, err = chunky.ChunkIDs(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d chunks remain in empty repository", len(remaining))
	}
}

func TestMixedSalts(t *testing.T) {
	ctx := context.Background()

	// Two repositories with the same password but different salts.
	var (
		repo1 = mem.New()
		repo2 = mem.New()
		s1    = newStore(t, repo1, "secret")
		s2    = newStore(t, repo2, "secret")
	)
	if _, err := s1.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s2.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
			t.Fatal(err)
		}
	}

	// Graft position 1 of repo2 onto repo1.
	ids, err := chunky.ChunkIDs(ctx, repo2)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		data, err := repo2.GetChunk(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = repo1.PutChunk(ctx, id, data); err != nil {
			t.Fatal(err)
		}
	}
	data, err := repo2.GetRef(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = repo1.PutRef(ctx, 1, data); err != nil {
		t.Fatal(err)
	}

	s := newStore(t, repo1, "secret")
	ref0, err := s.GetReference(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	ref1, err := s.GetReference(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ref0.Salt, ref1.Salt) {
		t.Fatal("salts are equal")
	}
	for _, pos := range []int{0, 1} {
		if _, err = s.Get(ctx, pos); err != nil {
			t.Errorf("reading snapshot %d: %s", pos, err)
		}
	}
	if _, err = s.GarbageCollect(ctx); err != nil {
		t.Fatal(err)
	}
	for _, pos := range []int{0, 1} {
		ok, err := s.CheckValid(ctx, pos, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("snapshot %d damaged", pos)
		}
	}
}

func TestCopyAndMirror(t *testing.T) {
	ctx := context.Background()
	var (
		src = mem.New()
		s   = newStore(t, src, "secret")
		sys = sampleSys(t)
	)
	for i := 0; i < 3; i++ {
		sys.Put(snapshot.NewBlob("changing", t0.Add(time.Duration(i)*time.Second)), testutil.RandomData(t, int64(20+i), 4000))
		if _, err := s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
			t.Fatal(err)
		}
	}

	dst := mem.New()
	copied, err := s.Copy(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, copied); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	checkReplica(ctx, t, s, dst)

	// Copying again copies nothing.
	copied, err = s.Copy(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(copied) != 0 {
		t.Errorf("second copy copied %v", copied)
	}

	// New history is copied incrementally.
	if _, err = s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	copied, err = s.Copy(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3}, copied); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	checkReplica(ctx, t, s, dst)

	// Copy never deletes; Mirror does.
	if _, err = s.Keep(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err = s.GarbageCollect(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err = s.Copy(ctx, dst); err != nil {
		t.Fatal(err)
	}
	positions, err := chunky.RefPositions(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err = s.Mirror(ctx, dst); err != nil {
		t.Fatal(err)
	}
	positions, err = chunky.RefPositions(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3}, positions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	srcIDs, err := chunky.ChunkIDs(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	dstIDs, err := chunky.ChunkIDs(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(srcIDs, dstIDs); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func checkReplica(ctx context.Context, t *testing.T, s *Store, dst chunky.Store) {
	t.Helper()

	positions, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, pos := range positions {
		a, err := s.Repo().GetRef(ctx, pos)
		if err != nil {
			t.Fatal(err)
		}
		b, err := dst.GetRef(ctx, pos)
		if err != nil {
			t.Fatalf("position %d: %s", pos, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("position %d differs", pos)
		}
		ids, err := s.reachable(ctx, pos)
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range ids {
			ok, err := dst.ChunkExists(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Errorf("position %d: chunk %s missing", pos, id)
			}
		}
	}

	// The replica is readable on its own.
	r := newStore(t, dst, "secret")
	ok, err := r.CheckValid(ctx, Latest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("replica fails check")
	}
}

func TestCopyDiverged(t *testing.T) {
	ctx := context.Background()
	var (
		s1 = newStore(t, mem.New(), "secret")
		s2 = newStore(t, mem.New(), "secret")
	)
	if _, err := s1.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := s2.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Copy(ctx, s2.Repo()); !errors.Is(err, chunky.ErrDivergedHistory) {
		t.Errorf("got error %v, want ErrDivergedHistory", err)
	}
	if err := s1.Mirror(ctx, s2.Repo()); !errors.Is(err, chunky.ErrDivergedHistory) {
		t.Errorf("got error %v from Mirror, want ErrDivergedHistory", err)
	}
}

func TestCopyCorrupt(t *testing.T) {
	ctx := context.Background()
	src := mem.New()
	s := newStore(t, src, "secret")
	if _, err := s.AppendFrom(ctx, sampleSys(t), nil, nil, t0); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Get(ctx, Latest)
	if err != nil {
		t.Fatal(err)
	}
	br, _ := snap.Find("b.txt")
	id := br.ChunkIds[0]
	data, err := src.GetChunk(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 1
	src.DeleteChunk(ctx, id)
	src.PutChunk(ctx, id, corrupt)

	dst := mem.New()
	if _, err = s.Copy(ctx, dst); !errors.Is(err, chunky.ErrIntegrity) {
		t.Errorf("got error %v, want ErrIntegrity", err)
	}
	positions, err := chunky.RefPositions(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("reference copied despite failed chunk copy: %v", positions)
	}
}

func TestPreviewAndClean(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, mem.New(), "secret")
	sys := sampleSys(t)

	d, err := s.Preview(ctx, sys, nil, Latest)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snapshot.DiffSet{Added: []string{"a.txt", "b.txt", "empty", "sub/c.mp3"}}, d); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err = s.AppendFrom(ctx, sys, nil, nil, t0); err != nil {
		t.Fatal(err)
	}

	sys.Put(snapshot.NewBlob("extra", t0), []byte("extra"))
	sys.Put(snapshot.NewBlob("extra.mp3", t0), []byte("extra"))
	sys.Put(snapshot.NewBlob("a.txt", t0.Add(time.Hour)), []byte("changed"))
	sys.RemoveBlob(ctx, "b.txt")

	d, err = s.Preview(ctx, sys, nil, Latest)
	if err != nil {
		t.Fatal(err)
	}
	want := snapshot.DiffSet{
		Added:   []string{"extra", "extra.mp3"},
		Changed: []string{"a.txt"},
		Removed: []string{"b.txt"},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	removed, err := s.Clean(ctx, sys, fuzzy.MustNew("mp3"), Latest)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, b := range removed {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"extra"}, names); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if ok, _ := sys.BlobExists(ctx, "extra.mp3"); !ok {
		t.Error("excluded blob was removed")
	}
}
