// Package snapshot holds the data model of backup history:
// blobs, references to their stored content,
// snapshots of many blobs,
// and the references that the repository log stores.
//
// Values of these types are treated as immutable once built.
package snapshot

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/fuzzy"
)

// Blob describes a named piece of binary data and when it last changed.
type Blob struct {
	Name             string
	LastWriteTimeUtc time.Time
}

// NewBlob produces a Blob.
// The time is converted to UTC and truncated to whole seconds,
// since blob systems differ in the precision they keep.
func NewBlob(name string, lastWrite time.Time) Blob {
	return Blob{Name: name, LastWriteTimeUtc: lastWrite.UTC().Truncate(time.Second)}
}

func (b Blob) Equal(other Blob) bool {
	return b.Name == other.Name && b.LastWriteTimeUtc.Equal(other.LastWriteTimeUtc)
}

// ContentReference is what BlobReference and Reference have in common:
// a list of chunks that together hold some content.
type ContentReference interface {
	ChunkIDs() []chunky.ChunkID
}

var (
	_ ContentReference = BlobReference{}
	_ ContentReference = Reference{}
)

// BlobReference is a Blob plus the location of its stored content.
type BlobReference struct {
	Blob     Blob
	Nonce    []byte
	ChunkIds []chunky.ChunkID
}

func (r BlobReference) ChunkIDs() []chunky.ChunkID { return r.ChunkIds }

func (r BlobReference) Equal(other BlobReference) bool {
	return r.Blob.Equal(other.Blob) && bytes.Equal(r.Nonce, other.Nonce) && sameIDs(r.ChunkIds, other.ChunkIds)
}

func (r BlobReference) clone() BlobReference {
	return BlobReference{
		Blob:     r.Blob,
		Nonce:    append([]byte(nil), r.Nonce...),
		ChunkIds: append([]chunky.ChunkID(nil), r.ChunkIds...),
	}
}

// UnmarshalJSON implements json.Unmarshaler.
// Besides the current form it accepts earlier ones,
// in which the blob's Name and LastWriteTimeUtc appear at top level
// and the chunk list is called ContentUris.
func (r *BlobReference) UnmarshalJSON(data []byte) error {
	var aux struct {
		Blob             *Blob
		Name             string
		LastWriteTimeUtc time.Time
		Nonce            []byte
		ChunkIds         []chunky.ChunkID
		ContentUris      []chunky.ChunkID
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Blob != nil {
		r.Blob = *aux.Blob
	} else {
		r.Blob = Blob{Name: aux.Name, LastWriteTimeUtc: aux.LastWriteTimeUtc}
	}
	r.Nonce = aux.Nonce
	r.ChunkIds = aux.ChunkIds
	if r.ChunkIds == nil {
		r.ChunkIds = aux.ContentUris
	}
	return nil
}

// Snapshot is the state of a set of blobs at a point in time.
type Snapshot struct {
	CreationTimeUtc time.Time
	BlobReferences  []BlobReference
}

// New produces a Snapshot holding its own copy of refs.
func New(created time.Time, refs []BlobReference) *Snapshot {
	s := &Snapshot{
		CreationTimeUtc: created.UTC(),
		BlobReferences:  make([]BlobReference, 0, len(refs)),
	}
	for _, r := range refs {
		s.BlobReferences = append(s.BlobReferences, r.clone())
	}
	return s
}

// Find looks up the BlobReference with the given name.
func (s *Snapshot) Find(name string) (BlobReference, bool) {
	if s == nil {
		return BlobReference{}, false
	}
	for _, r := range s.BlobReferences {
		if r.Blob.Name == name {
			return r, true
		}
	}
	return BlobReference{}, false
}

// Index maps blob names to BlobReferences.
// The nil *Snapshot has an empty index.
func (s *Snapshot) Index() map[string]BlobReference {
	m := make(map[string]BlobReference)
	if s == nil {
		return m
	}
	for _, r := range s.BlobReferences {
		m[r.Blob.Name] = r
	}
	return m
}

// Filter returns the BlobReferences whose names f includes.
func (s *Snapshot) Filter(f *fuzzy.Fuzzy) []BlobReference {
	var result []BlobReference
	for _, r := range s.BlobReferences {
		if f.IsIncludingMatch(r.Blob.Name) {
			result = append(result, r)
		}
	}
	return result
}

// Blobs returns the Blobs of s in order.
func (s *Snapshot) Blobs() []Blob {
	result := make([]Blob, 0, len(s.BlobReferences))
	for _, r := range s.BlobReferences {
		result = append(result, r.Blob)
	}
	return result
}

// Names returns the blob names of s, sorted.
func (s *Snapshot) Names() []string {
	result := make([]string, 0, len(s.BlobReferences))
	for _, r := range s.BlobReferences {
		result = append(result, r.Blob.Name)
	}
	sort.Strings(result)
	return result
}

func (s *Snapshot) Equal(other *Snapshot) bool {
	if !s.CreationTimeUtc.Equal(other.CreationTimeUtc) || len(s.BlobReferences) != len(other.BlobReferences) {
		return false
	}
	for i, r := range s.BlobReferences {
		if !r.Equal(other.BlobReferences[i]) {
			return false
		}
	}
	return true
}

// Reference is what the repository log stores at each position:
// the location of an encrypted Snapshot document
// and the parameters for deriving the key that opens it.
type Reference struct {
	Salt       []byte
	Iterations int
	ChunkIds   []chunky.ChunkID
}

func (r Reference) ChunkIDs() []chunky.ChunkID { return r.ChunkIds }

// UnmarshalJSON implements json.Unmarshaler.
// It also accepts the earlier form in which the chunk list is called ContentUris.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var aux struct {
		Salt        []byte
		Iterations  int
		ChunkIds    []chunky.ChunkID
		ContentUris []chunky.ChunkID
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Salt = aux.Salt
	r.Iterations = aux.Iterations
	r.ChunkIds = aux.ChunkIds
	if r.ChunkIds == nil {
		r.ChunkIds = aux.ContentUris
	}
	return nil
}

func sameIDs(a, b []chunky.ChunkID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
