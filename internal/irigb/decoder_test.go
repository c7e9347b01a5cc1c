package irigb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irigb-decoder/internal/gpio"
	"github.com/sweeney/irigb-decoder/internal/irigb"
	"github.com/sweeney/irigb-decoder/internal/synth"
)

const rate = 100000

var t0 = time.Date(2026, 7, 4, 23, 59, 57, 0, time.UTC)

type collector struct {
	frames   []irigb.Frame
	outcomes []irigb.Outcome
}

func (c *collector) OnFrame(f irigb.Frame, out irigb.Outcome) {
	c.frames = append(c.frames, f)
	c.outcomes = append(c.outcomes, out)
}

func (c *collector) valid() []irigb.TimeRecord {
	var out []irigb.TimeRecord
	for _, o := range c.outcomes {
		if o.Valid {
			out = append(out, o.Record)
		}
	}
	return out
}

type pulseCounter struct {
	byClass map[irigb.PulseClass]int
	spikes  int
}

func (p *pulseCounter) ObservePulse(pl irigb.Pulse) {
	if p.byClass == nil {
		p.byClass = make(map[irigb.PulseClass]int)
	}
	p.byClass[pl.Class]++
}

func (p *pulseCounter) ObserveSpike() { p.spikes++ }

func newDecoder(cfg irigb.Config, sink irigb.Sink) (*irigb.Decoder, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return irigb.NewDecoder(cfg, sink, logrus.NewEntry(log)), hook
}

func TestDecodeRoundTrip(t *testing.T) {
	records := synth.Sequence(t0, 5)
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(records...))
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, records, c.valid())
	assert.Equal(t, 5, stats.FramesValid)
	assert.Equal(t, 0, stats.FramesInvalid)
	assert.Equal(t, 0, stats.SpikesRejected)
	assert.Equal(t, 0, stats.PulsesDiscarded)
	assert.Equal(t, 501, stats.Pulses)
	assert.Equal(t, 1002, stats.Edges)
	assert.Equal(t, 5, dec.FramesDecoded())
	for i, f := range c.frames {
		assert.Equal(t, i+1, f.Seq)
		assert.Len(t, f.Pulses, irigb.FrameLen)
	}
}

func TestDecodeRollsOverMidnight(t *testing.T) {
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	_, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, synth.New(rate).Edges(synth.Sequence(t0, 4)...)))
	require.NoError(t, err)

	got := c.valid()
	require.Len(t, got, 4)
	assert.Equal(t, 185, got[2].DayOfYear)
	assert.Equal(t, 186, got[3].DayOfYear)
	assert.Equal(t, 0, got[3].Hours)
	assert.Equal(t, 0, got[3].TimeOfDaySeconds)
}

func TestDecodeNonZeroStart(t *testing.T) {
	g := synth.New(rate)
	g.Start = 123457
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	_, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, g.Edges(synth.Sequence(t0, 2)...)))
	require.NoError(t, err)
	require.Len(t, c.frames, 2)
	assert.Equal(t, int64(123457), c.frames[0].Start())
}

func glitched() *synth.Generator {
	g := synth.New(rate)
	// 0.05 ms low gap in the middle of a Bit0 pulse.
	g.Glitches = []synth.Glitch{{Frame: 1, Position: 43, AtMs: 1, GapMs: 0.05}}
	return g
}

func TestSpikeRemovalEnabled(t *testing.T) {
	records := synth.Sequence(t0, 3)
	c := &collector{}
	obs := &pulseCounter{}
	cfg := irigb.DefaultConfig()
	cfg.Observer = obs
	dec, _ := newDecoder(cfg, c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, glitched().Edges(records...)))
	require.NoError(t, err)

	assert.Equal(t, records, c.valid())
	assert.Equal(t, 1, stats.SpikesRejected)
	assert.Equal(t, 1, obs.spikes)
	assert.Equal(t, 301, stats.Pulses)
	assert.Zero(t, obs.byClass[irigb.ClassUnknown])
}

func TestSpikeRemovalDisabled(t *testing.T) {
	records := synth.Sequence(t0, 3)
	c := &collector{}
	obs := &pulseCounter{}
	cfg := irigb.DefaultConfig()
	cfg.SpikeRemoval = false
	cfg.Observer = obs
	dec, _ := newDecoder(cfg, c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, glitched().Edges(records...)))
	require.NoError(t, err)

	// The glitch splits one Bit0 into two 1 ms Unknown pulses.
	assert.Equal(t, 0, stats.SpikesRejected)
	assert.Equal(t, 302, stats.Pulses)
	assert.Equal(t, 2, obs.byClass[irigb.ClassUnknown])
	assert.Equal(t, 1, stats.FramesInvalid)
	assert.Equal(t, []irigb.TimeRecord{records[0], records[2]}, c.valid())
}

func TestSpikeAboveThresholdIsKept(t *testing.T) {
	g := synth.New(rate)
	g.Glitches = []synth.Glitch{{Frame: 0, Position: 43, AtMs: 1, GapMs: 0.2}}
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, g.Edges(synth.Sequence(t0, 2)...)))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.SpikesRejected)
	assert.Equal(t, 1, stats.FramesInvalid)
}

func TestInvalidFrameIsReported(t *testing.T) {
	records := synth.Sequence(t0, 3)
	g := synth.New(rate).Override(1, 59, irigb.ClassBit1)
	c := &collector{}
	dec, hook := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, g.Edges(records...)))
	require.NoError(t, err)

	require.Len(t, c.outcomes, 3)
	bad := c.outcomes[1]
	assert.False(t, bad.Valid)
	assert.Equal(t, irigb.TimeRecord{}, bad.Record)
	assert.ErrorIs(t, bad.Err, irigb.ErrMissingMarker)

	var me *irigb.MarkerError
	require.True(t, errors.As(bad.Err, &me))
	assert.Equal(t, 59, me.Position)

	assert.Equal(t, 2, stats.FramesValid)
	assert.Equal(t, 1, stats.FramesInvalid)
	assert.Equal(t, 2, dec.FramesDecoded())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "invalid frame" {
			warned = true
			assert.Equal(t, 2, e.Data["frame"])
		}
	}
	assert.True(t, warned, "expected invalid frame warning")
}

func TestRangeWarningDoesNotInvalidate(t *testing.T) {
	r := irigb.TimeRecord{Hours: 25, DayOfYear: 1}
	c := &collector{}
	dec, hook := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, synth.New(rate).Edges(r)))
	require.NoError(t, err)

	require.Len(t, c.outcomes, 1)
	assert.True(t, c.outcomes[0].Valid)
	assert.Equal(t, 25, c.outcomes[0].Record.Hours)
	assert.Equal(t, 1, stats.RangeWarnings)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "frame fields out of range" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestPartialFrameIsDropped(t *testing.T) {
	edges := synth.New(rate).Edges(synth.Sequence(t0, 3)...)
	// Cut halfway through the third frame.
	cut := edges[:2*(2*irigb.FrameLen+irigb.FrameLen/2)]
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, cut))
	require.NoError(t, err)

	assert.Len(t, c.frames, 2)
	assert.Equal(t, 2, stats.FramesValid)
	assert.Equal(t, 0, stats.FramesInvalid)
}

func TestEmptyAndUnclosedStreams(t *testing.T) {
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)
	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, nil))
	require.NoError(t, err)
	assert.Equal(t, irigb.Stats{}, stats)

	// Markers never adjacent: nothing is finalized.
	edges := []irigb.Edge{
		{Sample: 0, Level: irigb.High}, {Sample: 800, Level: irigb.Low},
		{Sample: 1000, Level: irigb.High}, {Sample: 1200, Level: irigb.Low},
		{Sample: 2000, Level: irigb.High}, {Sample: 2800, Level: irigb.Low},
	}
	dec, _ = newDecoder(irigb.DefaultConfig(), c)
	stats, err = dec.Run(context.Background(), gpio.NewFakeSource(rate, edges))
	require.NoError(t, err)
	assert.Empty(t, c.frames)
	assert.Equal(t, 3, stats.Pulses)
	assert.Equal(t, 0, stats.PulsesDiscarded)
}

func TestStreamStartingMidSecond(t *testing.T) {
	records := synth.Sequence(t0, 2)
	edges := synth.New(rate).Edges(records...)
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	// Skip the first 70 pulses so the capture opens at position 70.
	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, edges[2*70:]))
	require.NoError(t, err)

	require.Len(t, c.frames, 2)
	assert.Len(t, c.frames[0].Pulses, 30)
	assert.False(t, c.outcomes[0].Valid)
	assert.ErrorIs(t, c.outcomes[0].Err, irigb.ErrFrameLength)
	assert.Equal(t, []irigb.TimeRecord{records[1]}, c.valid())
	assert.Equal(t, 1, stats.FramesInvalid)
	assert.Equal(t, 1, stats.FramesValid)
}

func TestLostBoundaryMarkerEmitsNoFrame(t *testing.T) {
	records := synth.Sequence(t0, 3)
	g := synth.New(rate).Override(1, 0, irigb.ClassUnknown)
	c := &collector{}
	dec, _ := newDecoder(irigb.DefaultConfig(), c)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, g.Edges(records...)))
	require.NoError(t, err)

	// The first two seconds run together until the next double reference.
	require.Len(t, c.frames, 2)
	assert.Len(t, c.frames[0].Pulses, 2*irigb.FrameLen)
	assert.ErrorIs(t, c.outcomes[0].Err, irigb.ErrFrameLength)
	assert.Equal(t, []irigb.TimeRecord{records[2]}, c.valid())
	assert.Equal(t, 1, stats.FramesValid)
	assert.Equal(t, 1, stats.FramesInvalid)
}

func TestLeadingFallingEdgeIgnored(t *testing.T) {
	edges := []irigb.Edge{
		{Sample: 0, Level: irigb.Low},
		{Sample: 100, Level: irigb.High},
		{Sample: 300, Level: irigb.Low},
	}
	obs := &pulseCounter{}
	cfg := irigb.DefaultConfig()
	cfg.Observer = obs
	dec, _ := newDecoder(cfg, nil)

	stats, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, edges))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 1, stats.Pulses)
	assert.Equal(t, 1, obs.byClass[irigb.ClassBit0])
}

func TestNonMonotonicEdges(t *testing.T) {
	edges := []irigb.Edge{
		{Sample: 100, Level: irigb.High},
		{Sample: 300, Level: irigb.Low},
		{Sample: 300, Level: irigb.High},
	}
	dec, _ := newDecoder(irigb.DefaultConfig(), nil)

	_, err := dec.Run(context.Background(), gpio.NewFakeSource(rate, edges))
	assert.ErrorIs(t, err, irigb.ErrNonMonotonic)
}

func TestInvalidSampleRate(t *testing.T) {
	dec, _ := newDecoder(irigb.DefaultConfig(), nil)
	_, err := dec.Run(context.Background(), gpio.NewFakeSource(0, []irigb.Edge{{Sample: 1, Level: irigb.High}}))
	assert.ErrorIs(t, err, irigb.ErrSampleRate)
}

func TestSourceErrorIsWrapped(t *testing.T) {
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(synth.Sequence(t0, 1)...))
	src.ReadError = errors.New("device gone")
	src.FailAfter = 10

	dec, _ := newDecoder(irigb.DefaultConfig(), nil)
	_, err := dec.Run(context.Background(), src)
	assert.ErrorIs(t, err, src.ReadError)
	assert.Equal(t, 10, src.Consumed())
}

func TestCancelBeforeStart(t *testing.T) {
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(synth.Sequence(t0, 2)...))
	dec, _ := newDecoder(irigb.DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dec.Run(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.Consumed())
}

func TestCancelStopsWithinOneEdgeAndResumes(t *testing.T) {
	records := synth.Sequence(t0, 4)
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(records...))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	var consumedAtCancel int
	sink := irigb.SinkFunc(func(f irigb.Frame, out irigb.Outcome) {
		c.OnFrame(f, out)
		if f.Seq == 1 {
			consumedAtCancel = src.Consumed()
			cancel()
		}
	})
	dec, _ := newDecoder(irigb.DefaultConfig(), sink)

	_, err := dec.Run(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, consumedAtCancel, src.Consumed(), "no edge consumed after cancellation")
	assert.Len(t, c.frames, 1)

	// Resuming with a live context continues where the run stopped.
	stats, err := dec.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, records, c.valid())
	assert.Equal(t, 4, stats.FramesValid)
}

func TestResumeInBatches(t *testing.T) {
	records := synth.Sequence(t0, 3)
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(records...))
	c := &collector{}
	cfg := irigb.DefaultConfig()
	cfg.BatchSize = 64
	dec, _ := newDecoder(cfg, c)

	calls := 0
	for {
		calls++
		done, err := dec.Resume(context.Background(), src)
		require.NoError(t, err)
		if done {
			break
		}
		require.Less(t, calls, 1000)
	}

	assert.Equal(t, records, c.valid())
	// 602 edges in batches of 64; the last call drains 26 and sees exhaustion.
	assert.Equal(t, 10, calls)
}

func TestNewDecoderDefaults(t *testing.T) {
	dec := irigb.NewDecoder(irigb.Config{SpikeRemoval: true}, nil, nil)
	src := gpio.NewFakeSource(rate, synth.New(rate).Edges(synth.Sequence(t0, 1)...))

	done, err := dec.Resume(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, done, "default batch covers a short stream")
	assert.Equal(t, 1, dec.FramesDecoded())
}
