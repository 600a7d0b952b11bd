package sqlite3

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	testutil.ReadWrite(ctx, t, testStore(ctx, t), testutil.RandomData(t, 1, 1024*1024))
}

func TestChunks(t *testing.T) {
	ctx := context.Background()
	testutil.AllChunks(ctx, t, func() chunky.Store { return testStore(ctx, t) })
}

func TestLog(t *testing.T) {
	ctx := context.Background()
	testutil.Log(ctx, t, testStore(ctx, t))
}

func testStore(ctx context.Context, t *testing.T) *Store {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "chunky.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
