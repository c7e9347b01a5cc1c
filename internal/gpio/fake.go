package gpio

import (
	"errors"

	"github.com/sweeney/irigb-decoder/internal/irigb"
)

// FakeSource is a test double that returns scripted edges. It implements irigb.EdgeSource.
type FakeSource struct {
	// Edges contains the scripted edges. Each call to Next consumes one.
	Edges []irigb.Edge

	// Rate is returned by SampleRate.
	Rate float64

	// index tracks current position in Edges
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Next.
	ReadError error

	// FailAfter, if positive, makes Next return ReadError once this many edges were consumed.
	FailAfter int
}

// NewFakeSource creates a FakeSource with the given edges.
func NewFakeSource(rate float64, edges []irigb.Edge) *FakeSource {
	return &FakeSource{Rate: rate, Edges: edges}
}

// HasMore reports whether scripted edges remain.
func (f *FakeSource) HasMore() bool {
	return f.index < len(f.Edges)
}

// Next returns the next scripted edge.
func (f *FakeSource) Next() (irigb.Edge, error) {
	if f.ReadError != nil && (f.FailAfter <= 0 || f.index >= f.FailAfter) {
		return irigb.Edge{}, f.ReadError
	}
	if !f.HasMore() {
		return irigb.Edge{}, errors.New("no more edges")
	}
	e := f.Edges[f.index]
	f.index++
	return e, nil
}

// SampleRate returns Rate.
func (f *FakeSource) SampleRate() float64 {
	return f.Rate
}

// Consumed is the number of edges returned so far.
func (f *FakeSource) Consumed() int {
	return f.index
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the source to the first edge.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Closed = false
}
