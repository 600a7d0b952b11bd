// Package fastcdc implements content-defined chunking with the FastCDC algorithm.
//
// A Chunker cuts a byte stream into variable-length chunks
// whose boundaries depend only on the content near them.
// Identical runs of bytes therefore produce identical chunks
// wherever they occur,
// which is what makes deduplication work.
package fastcdc

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/bobg/chunky"
)

// Hard bounds for the three chunk-size parameters.
const (
	MinimumMin = 64
	MinimumMax = 64 * 1024 * 1024
	AverageMin = 256
	AverageMax = 256 * 1024 * 1024
	MaximumMin = 1024
	MaximumMax = 1024 * 1024 * 1024
)

// Default chunk sizes.
const (
	DefaultMin = 4 * 1024 * 1024
	DefaultAvg = 8 * 1024 * 1024
	DefaultMax = 16 * 1024 * 1024
)

// Chunker holds chunking parameters.
// It is immutable and safe for concurrent use.
type Chunker struct {
	min, avg, max int
	maskS, maskL  uint32
}

// New produces a Chunker.
// Each size is clamped to its hard bounds.
// The clamped sizes must satisfy min <= avg <= max and max-min > avg,
// otherwise the error wraps chunky.ErrConfig.
func New(min, avg, max int) (*Chunker, error) {
	min = clamp(min, MinimumMin, MinimumMax)
	avg = clamp(avg, AverageMin, AverageMax)
	max = clamp(max, MaximumMin, MaximumMax)

	if min > avg || avg > max {
		return nil, errors.Wrapf(chunky.ErrConfig, "chunk sizes %d/%d/%d out of order", min, avg, max)
	}
	if max-min <= avg {
		return nil, errors.Wrapf(chunky.ErrConfig, "chunk sizes %d/%d/%d: max-min must exceed avg", min, avg, max)
	}

	bits := int(math.Round(math.Log2(float64(avg))))
	return &Chunker{
		min:   min,
		avg:   avg,
		max:   max,
		maskS: mask(bits + 1),
		maskL: mask(bits - 1),
	}, nil
}

// Default produces a Chunker with the default sizes.
func Default() *Chunker {
	c, err := New(DefaultMin, DefaultAvg, DefaultMax)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Chunker) Min() int { return c.min }
func (c *Chunker) Avg() int { return c.avg }
func (c *Chunker) Max() int { return c.max }

// Cut returns the length of the first chunk in buf.
// The caller supplies at most Max bytes;
// a buffer no longer than Min is a single chunk.
func (c *Chunker) Cut(buf []byte) int {
	n := len(buf)
	if n <= c.min {
		return n
	}
	if n > c.max {
		n = c.max
	}

	var (
		center = centerSize(c.avg, c.min, n)
		hash   uint32
		i      = c.min
	)

	for ; i < center; i++ {
		hash = (hash >> 1) + gear[buf[i]]
		if hash&c.maskS == 0 {
			return i + 1
		}
	}
	for ; i < n; i++ {
		hash = (hash >> 1) + gear[buf[i]]
		if hash&c.maskL == 0 {
			return i + 1
		}
	}
	return n
}

func centerSize(avg, min, n int) int {
	offset := min + (min+1)/2
	if offset > avg {
		offset = avg
	}
	size := avg - offset
	if size > n {
		return n
	}
	return size
}

func mask(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	return uint32(1)<<uint(bits) - 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Splitter produces the chunks of a stream one at a time.
// It cannot be restarted.
type Splitter struct {
	c   *Chunker
	r   io.Reader
	buf []byte
	n   int // valid bytes in buf
	eof bool
}

// NewSplitter produces a Splitter reading from r.
func (c *Chunker) NewSplitter(r io.Reader) *Splitter {
	return &Splitter{c: c, r: r, buf: make([]byte, c.max)}
}

// Next returns the next chunk,
// or io.EOF when the stream is exhausted.
// An empty stream yields no chunks at all.
// Each returned slice is newly allocated and belongs to the caller.
func (s *Splitter) Next() ([]byte, error) {
	if !s.eof && s.n < len(s.buf) {
		m, err := io.ReadFull(s.r, s.buf[s.n:])
		s.n += m
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			s.eof = true
		} else if err != nil {
			return nil, errors.Wrap(err, "reading input")
		}
	}
	if s.n == 0 {
		return nil, io.EOF
	}

	cut := s.c.Cut(s.buf[:s.n])
	chunk := make([]byte, cut)
	copy(chunk, s.buf[:cut])

	s.n = copy(s.buf, s.buf[cut:s.n])
	return chunk, nil
}

// Split calls f on each chunk of r in order.
// If f returns an error, Split exits with that error.
func (c *Chunker) Split(r io.Reader, f func([]byte) error) error {
	s := c.NewSplitter(r)
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err = f(chunk); err != nil {
			return err
		}
	}
}
