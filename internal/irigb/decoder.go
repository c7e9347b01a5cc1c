package irigb

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNonMonotonic is returned when the edge source yields a sample index that does not advance.
	ErrNonMonotonic = errors.New("irigb: non-monotonic edge sample index")
	// ErrSampleRate is returned when the edge source reports a non-positive sampling rate.
	ErrSampleRate = errors.New("irigb: invalid sampling rate")
)

// EdgeSource supplies a finite, chronological sequence of edges.
type EdgeSource interface {
	HasMore() bool
	// Next returns the next edge. Calling it when HasMore is false is an error.
	Next() (Edge, error)
	SampleRate() float64
}

// Sink receives every finalized frame exactly once, in order.
type Sink interface {
	OnFrame(f Frame, out Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f Frame, out Outcome)

// OnFrame calls fn.
func (fn SinkFunc) OnFrame(f Frame, out Outcome) { fn(f, out) }

// Observer is notified of per-pulse activity. Implementations must be cheap.
type Observer interface {
	ObservePulse(p Pulse)
	ObserveSpike()
}

// Config controls a Decoder.
type Config struct {
	SpikeRemoval bool
	// BatchSize bounds the number of edges one Resume call consumes.
	BatchSize int
	// Observer is optional.
	Observer Observer
}

// DefaultConfig returns spike removal enabled and a 4096-edge batch.
func DefaultConfig() Config {
	return Config{SpikeRemoval: true, BatchSize: 4096}
}

// state is everything the decoder carries between edges and between Resume calls.
type state struct {
	level      Level
	lastSample int64
	started    bool

	rising     int64
	haveRising bool

	// pairs holds the previous and current edge pairs. When pending is set the current
	// pair is a completed pulse still waiting for its low gap to be measured.
	pairs   history
	pending bool

	asm   *Assembler
	stats Stats
}

// Decoder turns edges into frames and dispatches them to a Sink.
// It is not safe for concurrent use.
type Decoder struct {
	cfg  Config
	sink Sink
	log  *logrus.Entry
	st   state
}

// NewDecoder creates a decoder. A nil sink discards frames; a nil log uses the standard logger.
func NewDecoder(cfg Config, sink Sink, log *logrus.Entry) *Decoder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Decoder{
		cfg:  cfg,
		sink: sink,
		log:  log.WithField("component", "decoder"),
		st:   state{asm: NewAssembler()},
	}
}

// Resume consumes at most one batch of edges. It returns done=true once the source is exhausted.
// Cancellation is checked before each edge; when ctx is done Resume returns ctx.Err() and the
// decoder can be resumed later or dropped.
func (d *Decoder) Resume(ctx context.Context, src EdgeSource) (bool, error) {
	rate := src.SampleRate()
	if rate <= 0 {
		return false, fmt.Errorf("%w: %v Hz", ErrSampleRate, rate)
	}
	for n := 0; n < d.cfg.BatchSize; n++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !src.HasMore() {
			d.finish()
			return true, nil
		}
		e, err := src.Next()
		if err != nil {
			return false, fmt.Errorf("next edge: %w", err)
		}
		if err := d.edge(e, rate); err != nil {
			return false, err
		}
	}
	d.log.WithFields(logrus.Fields{
		"edges":  d.st.stats.Edges,
		"frames": d.st.stats.FramesValid,
	}).Debug("batch done")
	return false, nil
}

// Run resumes until the source is exhausted, yielding between batches.
func (d *Decoder) Run(ctx context.Context, src EdgeSource) (Stats, error) {
	for {
		done, err := d.Resume(ctx, src)
		if err != nil {
			return d.Stats(), err
		}
		if done {
			break
		}
		runtime.Gosched()
	}
	s := d.Stats()
	d.log.WithFields(logrus.Fields{
		"frames":  s.FramesValid,
		"invalid": s.FramesInvalid,
		"spikes":  s.SpikesRejected,
	}).Infof("decoded %d frames", s.FramesValid)
	return s, nil
}

// Stats returns a copy of the running counters.
func (d *Decoder) Stats() Stats {
	s := d.st.stats
	s.PulsesDiscarded = d.st.asm.Discarded()
	return s
}

// FramesDecoded is the number of frames that passed validation so far.
func (d *Decoder) FramesDecoded() int {
	return d.st.stats.FramesValid
}

func (d *Decoder) edge(e Edge, rate float64) error {
	st := &d.st
	if st.started && e.Sample <= st.lastSample {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, e.Sample, st.lastSample)
	}
	st.started = true
	st.lastSample = e.Sample
	st.stats.Edges++

	if e.Level == st.level {
		return nil
	}
	st.level = e.Level
	if e.Level == High {
		d.rise(e.Sample, rate)
	} else {
		d.fall(e.Sample, rate)
	}
	return nil
}

func (d *Decoder) rise(s int64, rate float64) {
	st := &d.st
	if st.pending {
		p, _ := st.pairs.last()
		st.pending = false
		if d.cfg.SpikeRemoval && IsSpike(p.Falling, s, rate) {
			// Drop the glitch and continue the pulse from its original rising edge.
			st.pairs.pop()
			st.rising = p.Rising
			st.haveRising = true
			st.stats.SpikesRejected++
			if d.cfg.Observer != nil {
				d.cfg.Observer.ObserveSpike()
			}
			d.log.WithFields(logrus.Fields{"falling": p.Falling, "rising": s}).Debug("spike removed")
			return
		}
		d.commit(p)
	}
	st.rising = s
	st.haveRising = true
}

func (d *Decoder) fall(s int64, rate float64) {
	st := &d.st
	if !st.haveRising {
		return
	}
	st.haveRising = false
	p := NewPulse(st.rising, s, rate)
	st.pairs.push(p)
	if d.cfg.SpikeRemoval {
		st.pending = true
		return
	}
	d.commit(p)
}

func (d *Decoder) commit(p Pulse) {
	d.st.stats.Pulses++
	if d.cfg.Observer != nil {
		d.cfg.Observer.ObservePulse(p)
	}
	if f, ok := d.st.asm.Step(p); ok {
		d.dispatch(f)
	}
}

func (d *Decoder) dispatch(f Frame) {
	var out Outcome
	fields := logrus.Fields{"frame": f.Seq, "start": f.Start(), "end": f.End()}
	if err := Validate(f); err != nil {
		out.Err = err
		d.st.stats.FramesInvalid++
		d.log.WithFields(fields).WithError(err).Warn("invalid frame")
	} else {
		out.Valid = true
		out.Record = DecodeFields(f)
		d.st.stats.FramesValid++
		if err := CheckRange(f); err != nil {
			d.st.stats.RangeWarnings++
			d.log.WithFields(fields).WithError(err).Warn("frame fields out of range")
		}
		d.log.WithFields(fields).Debugf("frame %s", out.Record)
	}
	if d.sink != nil {
		d.sink.OnFrame(f, out)
	}
}

// finish commits a deferred pulse and drops any partial frame.
func (d *Decoder) finish() {
	st := &d.st
	if st.pending {
		p, _ := st.pairs.last()
		st.pending = false
		d.commit(p)
	}
	if n := st.asm.Pending(); n > 0 {
		d.log.WithField("pulses", n).Debug("stream ended mid-frame, partial frame discarded")
	}
	st.asm.Reset()
	st.pairs.reset()
	st.haveRising = false
}
