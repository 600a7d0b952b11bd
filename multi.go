package chunky

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// GetChunks gets multiple chunks with a single call,
// as a bunch of concurrent individual GetChunk calls.
// The return value is a mapping of input IDs to the chunks that were found in g.
// The returned error may be a MultiErr,
// mapping input IDs to errors encountered retrieving those specific chunks.
// This function may return a successful partial result even in case of error.
// In particular, when the error return is a MultiErr,
// every input ID appears in either the result map or the MultiErr map.
func GetChunks(ctx context.Context, g Getter, ids []ChunkID) (map[ChunkID][]byte, error) {
	type triple struct {
		id   ChunkID
		data []byte
		err  error
	}

	var (
		res = make(map[ChunkID][]byte)
		ch  = make(chan triple)
	)

	for _, id := range ids {
		id := id
		go func() {
			data, err := g.GetChunk(ctx, id)
			ch <- triple{id: id, data: data, err: err}
		}()
	}

	var errmap MultiErr

	for i := 0; i < len(ids); i++ {
		trip := <-ch
		if trip.err != nil {
			if errmap == nil {
				errmap = make(MultiErr)
			}
			errmap[trip.id] = trip.err
			continue
		}
		res[trip.id] = trip.data
	}

	if errmap == nil {
		return res, nil
	}
	return res, errmap
}

// MultiErr is a type of error returned by GetChunks.
// It maps individual chunk IDs to errors encountered trying to get them.
type MultiErr map[ChunkID]error

// Error implements the error interface.
func (e MultiErr) Error() string {
	var strs []string
	for id, err := range e {
		strs = append(strs, fmt.Sprintf("%s: %s", id, err))
	}
	sort.Strings(strs)
	return "error(s): " + strings.Join(strs, "; ")
}

// RefPositions returns all log positions in g, ascending.
func RefPositions(ctx context.Context, g Getter) ([]int, error) {
	var result []int
	err := g.ListRefs(ctx, func(pos int) error {
		result = append(result, pos)
		return nil
	})
	sort.Ints(result)
	return result, err
}

// ChunkIDs returns all chunk IDs in g, in lexicographic order.
func ChunkIDs(ctx context.Context, g Getter) ([]ChunkID, error) {
	var result []ChunkID
	err := g.ListChunks(ctx, func(id ChunkID) error {
		result = append(result, id)
		return nil
	})
	return result, err
}
