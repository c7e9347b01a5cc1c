// Package synth generates IRIG-B edge streams from time records. It is the signal side of the
// decoder's round trip: tests and the -generate flag use it to produce captures.
package synth

import (
	"math"
	"time"

	"github.com/sweeney/irigb-decoder/internal/irigb"
)

// slotMs is the spacing between pulse rising edges.
const slotMs = 10

// Glitch splits one pulse with a short low interval.
type Glitch struct {
	Frame    int     // index into the records passed to Edges
	Position int     // pulse position within the frame
	AtMs     float64 // offset of the glitch's falling edge from the pulse's rising edge
	GapMs    float64 // length of the low interval
}

// Generator lays out frames at a fixed sampling rate.
type Generator struct {
	SampleRate float64
	// Start is the sample index of the first rising edge.
	Start    int64
	Glitches []Glitch
	// Overrides replaces the class at a position of a frame, e.g. to break a marker.
	Overrides map[[2]int]irigb.PulseClass
}

// New returns a generator with no glitches starting at sample 0.
func New(sampleRate float64) *Generator {
	return &Generator{SampleRate: sampleRate}
}

// Override sets the class at a frame position.
func (g *Generator) Override(frame, pos int, c irigb.PulseClass) *Generator {
	if g.Overrides == nil {
		g.Overrides = make(map[[2]int]irigb.PulseClass)
	}
	g.Overrides[[2]int{frame, pos}] = c
	return g
}

// Classes returns the full pulse sequence for records: one frame per record starting at position 0,
// and one trailing marker (position 0 of the next second) so the last record closes too.
func (g *Generator) Classes(records ...irigb.TimeRecord) []irigb.PulseClass {
	out := make([]irigb.PulseClass, 0, len(records)*irigb.FrameLen+1)
	for i, r := range records {
		classes := irigb.EncodeFields(r)
		for pos, c := range classes {
			if o, ok := g.Overrides[[2]int{i, pos}]; ok {
				c = o
			}
			out = append(out, c)
		}
	}
	return append(out, irigb.ClassReference)
}

// Edges renders records as alternating rising and falling edges.
func (g *Generator) Edges(records ...irigb.TimeRecord) []irigb.Edge {
	classes := g.Classes(records...)
	glitches := make(map[int]Glitch, len(g.Glitches))
	for _, gl := range g.Glitches {
		glitches[gl.Frame*irigb.FrameLen+gl.Position] = gl
	}

	edges := make([]irigb.Edge, 0, 2*len(classes))
	for i, c := range classes {
		startMs := float64(i * slotMs)
		endMs := startMs + float64(widthOf(c))
		if gl, ok := glitches[i]; ok {
			edges = append(edges,
				g.edge(startMs, irigb.High),
				g.edge(startMs+gl.AtMs, irigb.Low),
				g.edge(startMs+gl.AtMs+gl.GapMs, irigb.High),
			)
		} else {
			edges = append(edges, g.edge(startMs, irigb.High))
		}
		edges = append(edges, g.edge(endMs, irigb.Low))
	}
	return edges
}

func (g *Generator) edge(ms float64, l irigb.Level) irigb.Edge {
	return irigb.Edge{
		Sample: g.Start + int64(math.Round(ms*g.SampleRate/1000)),
		Level:  l,
	}
}

// widthOf gives unknown pulses a width that classifies as unknown.
func widthOf(c irigb.PulseClass) int {
	switch c {
	case irigb.ClassBit0:
		return irigb.WidthBit0Ms
	case irigb.ClassBit1:
		return irigb.WidthBit1Ms
	case irigb.ClassReference:
		return irigb.WidthReferenceMs
	default:
		return 3
	}
}

// FromTime builds the record transmitted during the second t.
func FromTime(t time.Time) irigb.TimeRecord {
	h, m, s := t.Clock()
	return irigb.TimeRecord{
		Seconds:          s,
		Minutes:          m,
		Hours:            h,
		DayOfYear:        t.YearDay(),
		Year:             t.Year() % 100,
		TimeOfDaySeconds: h*3600 + m*60 + s,
	}
}

// Sequence returns n records for consecutive seconds starting at t.
func Sequence(t time.Time, n int) []irigb.TimeRecord {
	out := make([]irigb.TimeRecord, n)
	for i := range out {
		out[i] = FromTime(t.Add(time.Duration(i) * time.Second))
	}
	return out
}
