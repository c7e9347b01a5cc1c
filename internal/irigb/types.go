package irigb

import "strings"

// FrameLen is the number of pulses in one IRIG-B frame (one second).
const FrameLen = 100

// Level is a logic level on the signal line.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Edge is a logic-level transition event at a sample index.
type Edge struct {
	Sample int64
	Level  Level
}

// PulseClass is the pulse-width class of a single pulse.
type PulseClass string

const (
	ClassBit0      PulseClass = "0"
	ClassBit1      PulseClass = "1"
	ClassReference PulseClass = "P"
	ClassUnknown   PulseClass = "?"
)

// Bit returns the numeric value used for field summation: 1 for Bit1, 0 otherwise.
func (c PulseClass) Bit() int {
	if c == ClassBit1 {
		return 1
	}
	return 0
}

// Pulse is the high interval between a rising edge and the next falling edge.
type Pulse struct {
	Rising  int64
	Falling int64
	WidthMs int
	Class   PulseClass
}

// Frame is an ordered run of pulses between two frame boundaries.
// A well-formed frame holds exactly FrameLen pulses.
type Frame struct {
	Seq    int // 1-based order of finalization within a run
	Pulses []Pulse
}

// Start is the rising edge of the first pulse.
func (f Frame) Start() int64 {
	if len(f.Pulses) == 0 {
		return 0
	}
	return f.Pulses[0].Rising
}

// End is the falling edge of the last pulse.
func (f Frame) End() int64 {
	if len(f.Pulses) == 0 {
		return 0
	}
	return f.Pulses[len(f.Pulses)-1].Falling
}

// Classes renders the frame as one character per pulse, e.g. "P1100...".
func (f Frame) Classes() string {
	var b strings.Builder
	b.Grow(len(f.Pulses))
	for _, p := range f.Pulses {
		b.WriteString(string(p.Class))
	}
	return b.String()
}

// Outcome is the result of validating (and, if valid, decoding) a finalized frame.
type Outcome struct {
	Valid  bool
	Record TimeRecord // zero unless Valid
	Err    error      // validation failure, nil when Valid
}

// Stats are running counters kept by the Decoder.
type Stats struct {
	Edges           int
	Pulses          int
	SpikesRejected  int
	FramesValid     int
	FramesInvalid   int
	PulsesDiscarded int // pulses past the in-progress frame cap while no boundary arrived
	RangeWarnings   int // valid frames whose fields fall outside their nominal range
}

// history is a fixed two-slot lookback over the most recent pulses.
type history struct {
	slots [2]Pulse
	n     int
}

func (h *history) push(p Pulse) {
	h.slots[0] = h.slots[1]
	h.slots[1] = p
	if h.n < 2 {
		h.n++
	}
}

// last returns the most recent pulse, if any.
func (h *history) last() (Pulse, bool) {
	if h.n == 0 {
		return Pulse{}, false
	}
	return h.slots[1], true
}

// prev returns the pulse before the most recent one, if any.
func (h *history) prev() (Pulse, bool) {
	if h.n < 2 {
		return Pulse{}, false
	}
	return h.slots[0], true
}

// pop removes the most recent pulse, restoring the previous one as last.
func (h *history) pop() {
	if h.n == 0 {
		return
	}
	h.slots[1] = h.slots[0]
	h.slots[0] = Pulse{}
	h.n--
}

func (h *history) reset() {
	*h = history{}
}
