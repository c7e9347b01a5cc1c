package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/irigb-decoder/internal/capture"
	"github.com/sweeney/irigb-decoder/internal/irigb"
	"github.com/sweeney/irigb-decoder/internal/metrics"
	"github.com/sweeney/irigb-decoder/internal/mqtt"
	"github.com/sweeney/irigb-decoder/internal/render"
	"github.com/sweeney/irigb-decoder/internal/status"
	"github.com/sweeney/irigb-decoder/internal/synth"
)

const sampleRate = 250000

// TestIntegrationFullFlow runs a synthetic capture through the file format, the decoder
// and every sink.
func TestIntegrationFullFlow(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	records := synth.Sequence(start, 6)

	g := synth.New(sampleRate)
	g.Start = 777
	g.Glitches = []synth.Glitch{{Frame: 2, Position: 44, AtMs: 0.7, GapMs: 0.02}}
	g.Override(4, 29, irigb.ClassBit0)

	var buf bytes.Buffer
	if err := capture.New(sampleRate, g.Edges(records...)).Write(&buf); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	c, err := capture.Read(&buf)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}

	log, hook := test.NewNullLogger()
	entry := logrus.NewEntry(log)
	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(start, "run-int", status.Config{Source: "memory"})
	rec := metrics.NewRecorder()
	sinks := render.Multi{
		render.NewLogSink(render.StyleFrame, sampleRate, entry),
		tracker,
		rec,
		mqtt.NewSink(publisher, "run-int", sampleRate, entry),
	}

	dec := irigb.NewDecoder(irigb.Config{SpikeRemoval: true, BatchSize: 128, Observer: rec}, sinks, entry)
	stats, err := dec.Run(context.Background(), c.Source())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tracker.SetStats(stats)

	if stats.FramesValid != 5 || stats.FramesInvalid != 1 {
		t.Fatalf("frames: got valid=%d invalid=%d, want 5/1", stats.FramesValid, stats.FramesInvalid)
	}
	if stats.SpikesRejected != 1 {
		t.Errorf("SpikesRejected: got %d, want 1", stats.SpikesRejected)
	}

	// One MQTT payload per frame, in order.
	if len(publisher.Payloads) != 6 {
		t.Fatalf("payloads: got %d, want 6", len(publisher.Payloads))
	}
	for i, raw := range publisher.Payloads {
		var p mqtt.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		if p.IRIGB.Frame != i+1 {
			t.Errorf("payload %d: frame=%d", i, p.IRIGB.Frame)
		}
		if p.IRIGB.RunID != "run-int" {
			t.Errorf("payload %d: run_id=%q", i, p.IRIGB.RunID)
		}
		if i == 4 {
			if p.IRIGB.Valid || p.IRIGB.Error == "" || p.IRIGB.Time != nil {
				t.Errorf("payload 4 should be invalid: %+v", p.IRIGB)
			}
			continue
		}
		if !p.IRIGB.Valid || p.IRIGB.Time == nil {
			t.Fatalf("payload %d should be valid: %+v", i, p.IRIGB)
		}
		want := records[i]
		if p.IRIGB.Time.Seconds != want.Seconds || p.IRIGB.Time.DayOfYear != want.DayOfYear {
			t.Errorf("payload %d: time %+v, want %v", i, p.IRIGB.Time, want)
		}
	}

	// The capture opens on the first frame's position 0 marker.
	first := publisher.Reports[0]
	if got, want := first.Frame.Start(), int64(777); got != want {
		t.Errorf("first frame start: got %d, want %d", got, want)
	}

	snap := tracker.Snapshot()
	if snap.Last == nil || *snap.Last != records[5] {
		t.Errorf("tracker last: got %v, want %v", snap.Last, records[5])
	}
	if snap.LastFrame != 6 {
		t.Errorf("tracker last frame: got %d, want 6", snap.LastFrame)
	}
	if snap.LastError == "" {
		t.Error("tracker should remember the invalid frame's error")
	}

	var infos int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["component"] == "render" {
			infos++
		}
	}
	if infos != 5 {
		t.Errorf("render INFO lines: got %d, want 5", infos)
	}
}

// TestIntegrationPublishFailureDoesNotStopDecoding verifies a failing broker only costs payloads.
func TestIntegrationPublishFailureDoesNotStopDecoding(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	edges := synth.New(sampleRate).Edges(synth.Sequence(start, 3)...)

	log, _ := test.NewNullLogger()
	entry := logrus.NewEntry(log)
	publisher := mqtt.NewFakePublisher()
	publisher.PublishError = errors.New("connection lost")
	sink := mqtt.NewSink(publisher, "run-fail", sampleRate, entry)

	dec := irigb.NewDecoder(irigb.DefaultConfig(), sink, entry)
	stats, err := dec.Run(context.Background(), capture.New(sampleRate, edges).Source())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.FramesValid != 3 {
		t.Errorf("FramesValid: got %d, want 3", stats.FramesValid)
	}
	if sink.Failures() != 3 {
		t.Errorf("Failures: got %d, want 3", sink.Failures())
	}
	if len(publisher.Payloads) != 0 {
		t.Errorf("payloads: got %d, want 0", len(publisher.Payloads))
	}
}

// TestIntegrationCancelAndResume checks that a cancelled run resumes from the same capture
// cursor without losing or repeating frames.
func TestIntegrationCancelAndResume(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	records := synth.Sequence(start, 8)
	c := capture.New(sampleRate, synth.New(sampleRate).Edges(records...))
	cur := c.Source()

	log, _ := test.NewNullLogger()
	tracker := status.NewTracker(start, "run-resume", status.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	sink := irigb.SinkFunc(func(f irigb.Frame, out irigb.Outcome) {
		tracker.OnFrame(f, out)
		if f.Seq == 3 {
			cancel()
		}
	})
	dec := irigb.NewDecoder(irigb.Config{SpikeRemoval: true, BatchSize: 32}, sink, logrus.NewEntry(log))

	if _, err := dec.Run(ctx, cur); !errors.Is(err, context.Canceled) {
		t.Fatalf("first run: got %v, want context.Canceled", err)
	}
	if got := tracker.Snapshot().Stats.FramesValid; got != 3 {
		t.Fatalf("frames before cancel: got %d, want 3", got)
	}

	stats, err := dec.Run(context.Background(), cur)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if stats.FramesValid != 8 {
		t.Errorf("FramesValid: got %d, want 8", stats.FramesValid)
	}
	snap := tracker.Snapshot()
	if snap.Stats.FramesValid != 8 || snap.LastFrame != 8 {
		t.Errorf("tracker: valid=%d last=%d, want 8/8", snap.Stats.FramesValid, snap.LastFrame)
	}
	if *snap.Last != records[7] {
		t.Errorf("last record: got %v, want %v", *snap.Last, records[7])
	}
}
