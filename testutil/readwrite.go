// Package testutil holds conformance tests shared by repository implementations.
package testutil

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/aesgcm"
	"github.com/bobg/chunky/content"
	"github.com/bobg/chunky/fastcdc"
)

// RandomData produces n pseudorandom bytes from seed.
func RandomData(t *testing.T, seed int64, n int) []byte {
	data := make([]byte, n)
	if _, err := rand.New(rand.NewSource(seed)).Read(data); err != nil {
		t.Fatal(err)
	}
	return data
}

// TestKey derives a key cheaply, for tests.
func TestKey(t *testing.T) aesgcm.Key {
	key, err := aesgcm.DeriveKey("testutil password", []byte("testutil salt"), 10)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// ReadWrite permits testing a Store implementation
// by storing some data to it through a content.Store,
// then reading it back out to make sure it's the same.
// It then stores the same data again and checks that no chunks were added.
func ReadWrite(ctx context.Context, t *testing.T, store chunky.Store, data []byte) {
	chunker, err := fastcdc.New(16*1024, 64*1024, 256*1024)
	if err != nil {
		t.Fatal(err)
	}
	var (
		cs  = content.New(store, chunker)
		key = TestKey(t)
	)
	nonce, err := aesgcm.NewNonce()
	if err != nil {
		t.Fatal(err)
	}

	t1 := time.Now()
	ids, err := cs.StoreBlob(ctx, bytes.NewReader(data), key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %d chunks in %s", len(data), len(ids), time.Since(t1))

	before, err := chunky.ChunkIDs(ctx, store)
	if err != nil {
		t.Fatal(err)
	}

	buf := new(bytes.Buffer)
	t2 := time.Now()
	err = cs.Retrieve(ctx, ids, key, nonce, buf)
	if err != nil {
		t.Fatal(err)
	}
	got := buf.Bytes()
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else {
		for i := 0; i < len(got); i++ {
			if got[i] != data[i] {
				t.Fatalf("mismatch at position %d (of %d)", i, len(got))
			}
		}
	}

	ids2, err := cs.StoreBlob(ctx, bytes.NewReader(data), key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids2) != len(ids) {
		t.Fatalf("second store produced %d chunks, want %d", len(ids2), len(ids))
	}
	for i := range ids {
		if ids[i] != ids2[i] {
			t.Fatalf("chunk %d: second store produced %s, want %s", i, ids2[i], ids[i])
		}
	}
	after, err := chunky.ChunkIDs(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Errorf("storing the same data twice grew the store from %d to %d chunks", len(before), len(after))
	}
}
