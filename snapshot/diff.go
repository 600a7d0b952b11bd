package snapshot

import "sort"

// DiffSet is the difference between two keyed collections.
// Each list is sorted.
type DiffSet struct {
	Added   []string
	Changed []string
	Removed []string
}

// Empty tells whether d reports no differences.
func (d DiffSet) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Diff compares a with b.
// Keys present only in b are added,
// keys present only in a are removed,
// and keys present in both whose items are not equal are changed.
func Diff[T any](a, b []T, key func(T) string, equal func(T, T) bool) DiffSet {
	var (
		ma = make(map[string]T, len(a))
		mb = make(map[string]T, len(b))
		d  DiffSet
	)
	for _, item := range a {
		ma[key(item)] = item
	}
	for _, item := range b {
		mb[key(item)] = item
	}
	for k, itemB := range mb {
		itemA, ok := ma[k]
		if !ok {
			d.Added = append(d.Added, k)
		} else if !equal(itemA, itemB) {
			d.Changed = append(d.Changed, k)
		}
	}
	for k := range ma {
		if _, ok := mb[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}

// DiffSnapshots compares the BlobReferences of two snapshots.
func DiffSnapshots(a, b *Snapshot) DiffSet {
	return Diff(a.BlobReferences, b.BlobReferences, refName, BlobReference.Equal)
}

// DiffBlobs compares two lists of Blobs by name and last-write time.
func DiffBlobs(a, b []Blob) DiffSet {
	return Diff(a, b, func(b Blob) string { return b.Name }, Blob.Equal)
}

func refName(r BlobReference) string { return r.Blob.Name }
