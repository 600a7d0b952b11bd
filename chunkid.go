package chunky

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Hash names the algorithm used to compute chunk IDs.
type Hash string

const (
	SHA256 Hash = "sha256"
	BLAKE3 Hash = "blake3"
)

// DefaultHash is the Hash used when none is configured.
const DefaultHash = SHA256

const sep = "://"

// ChunkID is the content identifier of a stored chunk:
// the name of a hash algorithm and the lowercase hex digest of the chunk's bytes,
// as in "sha256://ad95131b...".
type ChunkID string

// Compute computes the ChunkID of data using the given hash algorithm.
// An unknown algorithm falls back to DefaultHash.
func Compute(alg Hash, data []byte) ChunkID {
	var sum []byte
	switch alg {
	case BLAKE3:
		s := blake3.Sum256(data)
		sum = s[:]
	default:
		alg = SHA256
		s := sha256.Sum256(data)
		sum = s[:]
	}
	return ChunkID(string(alg) + sep + hex.EncodeToString(sum))
}

// ParseChunkID parses and validates the textual form of a ChunkID.
func ParseChunkID(s string) (ChunkID, error) {
	id := ChunkID(s)
	alg, digest, ok := id.split()
	if !ok {
		return "", errors.Wrapf(ErrConfig, "malformed chunk ID %q", s)
	}
	if alg != SHA256 && alg != BLAKE3 {
		return "", errors.Wrapf(ErrConfig, "unknown hash algorithm in chunk ID %q", s)
	}
	if len(digest) != 64 {
		return "", errors.Wrapf(ErrConfig, "chunk ID %q has digest of length %d, want 64", s, len(digest))
	}
	for _, c := range digest {
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return "", errors.Wrapf(ErrConfig, "chunk ID %q is not lowercase hex", s)
		}
	}
	return id, nil
}

func (id ChunkID) split() (Hash, string, bool) {
	i := strings.Index(string(id), sep)
	if i <= 0 {
		return "", "", false
	}
	return Hash(id[:i]), string(id[i+len(sep):]), true
}

// Algorithm is the hash algorithm named in id.
func (id ChunkID) Algorithm() Hash {
	alg, _, _ := id.split()
	return alg
}

// Hex is the digest part of id.
func (id ChunkID) Hex() string {
	_, digest, _ := id.split()
	return digest
}

// Valid tells whether data hashes to id,
// using the algorithm named in id.
func (id ChunkID) Valid(data []byte) bool {
	alg := id.Algorithm()
	if alg != SHA256 && alg != BLAKE3 {
		return false
	}
	return Compute(alg, data) == id
}

func (id ChunkID) String() string {
	return string(id)
}
