// Package capture stores recorded edge streams.
//
// File layout (little-endian):
//
//	offset | size | field
//	0      | 4    | magic "IRGB"
//	4      | 1    | version (1)
//	5      | 3    | reserved
//	8      | 8    | sampling rate, float64 bits
//	16     | 8    | edge count
//	24     | N    | zstd stream of uvarints, one per edge: (sample delta << 1) | level
//
// The first delta is taken from sample 0, so sample indices are non-negative and strictly increasing.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sweeney/irigb-decoder/internal/irigb"
)

const (
	magic      = "IRGB"
	version    = 1
	headerSize = 24
)

var (
	// ErrFormat is returned for files that are not captures or are truncated.
	ErrFormat = errors.New("capture: bad format")
	// ErrExhausted is returned by Cursor.Next past the last edge.
	ErrExhausted = errors.New("capture: no more edges")
)

// Capture is a finite recorded edge stream.
type Capture struct {
	SampleRate float64
	Edges      []irigb.Edge
}

// New wraps edges recorded at rateHz.
func New(rateHz float64, edges []irigb.Edge) *Capture {
	return &Capture{SampleRate: rateHz, Edges: edges}
}

// Duration is the time spanned from sample 0 to the last edge.
func (c *Capture) Duration() time.Duration {
	if len(c.Edges) == 0 || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Edges[len(c.Edges)-1].Sample) / c.SampleRate * float64(time.Second))
}

// Source returns a cursor over the edges.
func (c *Capture) Source() *Cursor {
	return &Cursor{c: c}
}

// Cursor walks a Capture. It implements irigb.EdgeSource.
type Cursor struct {
	c *Capture
	i int
}

// HasMore reports whether Next will return an edge.
func (r *Cursor) HasMore() bool {
	return r.i < len(r.c.Edges)
}

// Next returns the next edge.
func (r *Cursor) Next() (irigb.Edge, error) {
	if !r.HasMore() {
		return irigb.Edge{}, ErrExhausted
	}
	e := r.c.Edges[r.i]
	r.i++
	return e, nil
}

// SampleRate returns the capture's sampling rate in Hz.
func (r *Cursor) SampleRate() float64 {
	return r.c.SampleRate
}

// Position is the number of edges consumed.
func (r *Cursor) Position() int {
	return r.i
}

// Write encodes the capture to w.
func (c *Capture) Write(w io.Writer) error {
	if c.SampleRate <= 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("write capture: %w: %v Hz", irigb.ErrSampleRate, c.SampleRate)
	}
	var hdr [headerSize]byte
	copy(hdr[0:4], magic)
	hdr[4] = version
	binary.LittleEndian.PutUint64(hdr[8:16], math.Float64bits(c.SampleRate))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(c.Edges)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)
	var buf [binary.MaxVarintLen64]byte
	prev := int64(0)
	for i, e := range c.Edges {
		if e.Sample < prev || (i > 0 && e.Sample == prev) {
			enc.Close()
			return fmt.Errorf("write edge %d: %w: %d after %d", i, irigb.ErrNonMonotonic, e.Sample, prev)
		}
		v := uint64(e.Sample-prev)<<1 | uint64(e.Level&1)
		n := binary.PutUvarint(buf[:], v)
		if _, err := bw.Write(buf[:n]); err != nil {
			enc.Close()
			return fmt.Errorf("write edge %d: %w", i, err)
		}
		prev = e.Sample
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush edges: %w", err)
	}
	return enc.Close()
}

// Read decodes a capture from r.
func Read(r io.Reader) (*Capture, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if string(hdr[0:4]) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrFormat, hdr[0:4])
	}
	if hdr[4] != version {
		return nil, fmt.Errorf("%w: version %d", ErrFormat, hdr[4])
	}
	rate := math.Float64frombits(binary.LittleEndian.Uint64(hdr[8:16]))
	count := binary.LittleEndian.Uint64(hdr[16:24])
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: sampling rate %v", ErrFormat, rate)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	// Cap the preallocation; a corrupt count must not allocate unbounded memory.
	edges := make([]irigb.Edge, 0, min(count, 1<<20))
	prev := int64(0)
	for i := uint64(0); i < count; i++ {
		v, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("%w: edge %d of %d: %v", ErrFormat, i, count, err)
		}
		prev += int64(v >> 1)
		edges = append(edges, irigb.Edge{Sample: prev, Level: irigb.Level(v & 1)})
	}
	return &Capture{SampleRate: rate, Edges: edges}, nil
}

// Save writes the capture to path.
func (c *Capture) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}
	if err := c.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a capture from path.
func Load(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}
