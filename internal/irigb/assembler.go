package irigb

// maxPending caps the in-progress frame while no boundary arrives. A frame that long is never
// valid, so pulses past the cap are counted and discarded instead of stored.
const maxPending = 2 * FrameLen

// Assembler accumulates classified pulses into frames. Two adjacent reference pulses mark the
// boundary: the first is position 99 of the ending frame, the second is position 0 of the next.
// Only a boundary finalizes a frame; whatever precedes the first one (a stream that starts
// mid-second) is emitted as a short frame and fails validation.
type Assembler struct {
	recent    history
	pulses    []Pulse
	seq       int
	discarded int
}

// NewAssembler returns an assembler collecting into an empty frame.
func NewAssembler() *Assembler {
	return &Assembler{pulses: make([]Pulse, 0, FrameLen)}
}

// Step feeds one pulse. It returns a finalized frame when this pulse closes one.
func (a *Assembler) Step(p Pulse) (Frame, bool) {
	boundary := false
	if last, ok := a.recent.last(); ok {
		boundary = p.Class == ClassReference && last.Class == ClassReference
	}
	a.recent.push(p)

	if boundary {
		// The closing marker was appended on the previous step.
		var out Frame
		done := len(a.pulses) > 0
		if done {
			out = a.finalize()
		}
		a.pulses = append(a.pulses, p)
		return out, done
	}
	if len(a.pulses) >= maxPending {
		a.discarded++
		return Frame{}, false
	}
	a.pulses = append(a.pulses, p)
	return Frame{}, false
}

// finalize copies out the in-progress frame and empties it.
func (a *Assembler) finalize() Frame {
	a.seq++
	f := Frame{Seq: a.seq, Pulses: make([]Pulse, len(a.pulses))}
	copy(f.Pulses, a.pulses)
	a.pulses = a.pulses[:0]
	return f
}

// Pending returns the number of pulses in the in-progress frame.
func (a *Assembler) Pending() int {
	return len(a.pulses)
}

// Discarded returns the number of pulses dropped because the in-progress frame hit its cap.
func (a *Assembler) Discarded() int {
	return a.discarded
}

// Reset discards any partial frame and forgets the last pulse. Sequence numbering continues.
func (a *Assembler) Reset() {
	a.recent.reset()
	a.pulses = a.pulses[:0]
}
