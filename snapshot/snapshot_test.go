package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/fuzzy"
)

const fixtureID = chunky.ChunkID("sha256://ad95131bc0b799c0b1af477fb14fcf26a6a9f76079e48bf090acb7e8367bfd0e")

var fixtureDate = time.Date(2020, 5, 7, 18, 33, 0, 0, time.UTC)

// These fixtures are persisted repository formats.
// A failure here means existing repositories can no longer be read.

func TestReadSnapshot(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{
			name: "current",
			json: `{
  "CreationTimeUtc": "2020-05-07T18:33:00Z",
  "BlobReferences": [
    {
      "Blob": {
        "Name": "some blob",
        "LastWriteTimeUtc": "2020-05-07T18:33:00Z"
      },
      "Nonce": "ESIzRA==",
      "ChunkIds": [
        "sha256://ad95131bc0b799c0b1af477fb14fcf26a6a9f76079e48bf090acb7e8367bfd0e"
      ]
    }
  ]
}`,
		},
		{
			name: "flat",
			json: `{
  "SnapshotId": 15,
  "CreationTimeUtc": "2020-05-07T18:33:00Z",
  "BlobReferences": [
    {
      "Name": "some blob",
      "LastWriteTimeUtc": "2020-05-07T18:33:00Z",
      "Nonce": "ESIzRA==",
      "ContentUris": [
        "sha256://ad95131bc0b799c0b1af477fb14fcf26a6a9f76079e48bf090acb7e8367bfd0e"
      ]
    }
  ]
}`,
		},
	}

	want := New(fixtureDate, []BlobReference{{
		Blob:     Blob{Name: "some blob", LastWriteTimeUtc: fixtureDate},
		Nonce:    []byte{0x11, 0x22, 0x33, 0x44},
		ChunkIds: []chunky.ChunkID{fixtureID},
	}})

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got Snapshot
			if err := json.Unmarshal([]byte(c.json), &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, &got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadReference(t *testing.T) {
	want := Reference{
		Salt:       []byte{0x11, 0x22, 0x33, 0x44},
		Iterations: 1000,
		ChunkIds:   []chunky.ChunkID{fixtureID},
	}
	for _, field := range []string{"ChunkIds", "ContentUris"} {
		j := `{
  "Salt": "ESIzRA==",
  "Iterations": 1000,
  "` + field + `": [
    "sha256://ad95131bc0b799c0b1af477fb14fcf26a6a9f76079e48bf090acb7e8367bfd0e"
  ]
}`
		var got Reference
		if err := json.Unmarshal([]byte(j), &got); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", field, diff)
		}
	}
}

func TestWriteSnapshot(t *testing.T) {
	s := New(fixtureDate, []BlobReference{{
		Blob:     Blob{Name: "some blob", LastWriteTimeUtc: fixtureDate},
		Nonce:    []byte{0x11, 0x22, 0x33, 0x44},
		ChunkIds: []chunky.ChunkID{fixtureID},
	}})
	got, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	const want = `{"CreationTimeUtc":"2020-05-07T18:33:00Z","BlobReferences":[{"Blob":{"Name":"some blob","LastWriteTimeUtc":"2020-05-07T18:33:00Z"},"Nonce":"ESIzRA==","ChunkIds":["sha256://ad95131bc0b799c0b1af477fb14fcf26a6a9f76079e48bf090acb7e8367bfd0e"]}]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNewBlob(t *testing.T) {
	loc := time.FixedZone("east", 3*60*60)
	b := NewBlob("x", time.Date(2020, 5, 7, 21, 33, 0, 987654321, loc))
	if !b.LastWriteTimeUtc.Equal(fixtureDate) {
		t.Errorf("got %s, want %s", b.LastWriteTimeUtc, fixtureDate)
	}
	if b.LastWriteTimeUtc.Location() != time.UTC {
		t.Errorf("got location %s, want UTC", b.LastWriteTimeUtc.Location())
	}
}

func TestNewCopies(t *testing.T) {
	refs := []BlobReference{{
		Blob:     NewBlob("x", fixtureDate),
		Nonce:    []byte{1, 2, 3},
		ChunkIds: []chunky.ChunkID{fixtureID},
	}}
	s := New(fixtureDate, refs)
	refs[0].Nonce[0] = 9
	refs[0].ChunkIds[0] = "sha256://changed"
	refs[0].Blob.Name = "y"

	r, ok := s.Find("x")
	if !ok {
		t.Fatal("blob x not found")
	}
	if r.Nonce[0] != 1 || r.ChunkIds[0] != fixtureID {
		t.Error("snapshot shares state with its input")
	}
	if _, ok = s.Find("y"); ok {
		t.Error("found blob y")
	}
}

func ref(name string, sec int, ids ...chunky.ChunkID) BlobReference {
	return BlobReference{
		Blob:     NewBlob(name, fixtureDate.Add(time.Duration(sec)*time.Second)),
		Nonce:    []byte{1},
		ChunkIds: ids,
	}
}

func TestDiff(t *testing.T) {
	var (
		a = New(fixtureDate, []BlobReference{ref("x", 0, "a"), ref("y", 0, "b"), ref("z", 0, "c")})
		b = New(fixtureDate, []BlobReference{ref("x", 0, "a"), ref("y", 1, "d"), ref("w", 0, "e")})
	)
	want := DiffSet{
		Added:   []string{"w"},
		Changed: []string{"y"},
		Removed: []string{"z"},
	}
	got := DiffSnapshots(a, b)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if !DiffSnapshots(a, a).Empty() {
		t.Error("snapshot differs from itself")
	}

	got = DiffBlobs(a.Blobs(), b.Blobs())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("blobs mismatch (-want +got):\n%s", diff)
	}

	// Same blob metadata, different content.
	c := New(fixtureDate, []BlobReference{ref("x", 0, "other")})
	got = DiffSnapshots(New(fixtureDate, []BlobReference{ref("x", 0, "a")}), c)
	if diff := cmp.Diff(DiffSet{Changed: []string{"x"}}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	s := New(fixtureDate, []BlobReference{ref("a.txt", 0), ref("b.mp3", 0), ref("c.txt", 0)})
	var names []string
	for _, r := range s.Filter(fuzzy.MustNew("txt")) {
		names = append(names, r.Blob.Name)
	}
	if diff := cmp.Diff([]string{"a.txt", "c.txt"}, names); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := len(s.Filter(nil)); got != 3 {
		t.Errorf("nil filter kept %d of 3", got)
	}
	if diff := cmp.Diff([]string{"a.txt", "b.mp3", "c.txt"}, s.Names()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
