// Package status provides a thread-safe view of a decode run.
// It is written by the decode loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irigb-decoder/internal/irigb"
)

// RunState is the lifecycle phase of a decode run.
type RunState string

const (
	StateCapturing RunState = "CAPTURING"
	StateDecoding  RunState = "DECODING"
	StateDone      RunState = "DONE"
	StateCancelled RunState = "CANCELLED"
	StateFailed    RunState = "FAILED"
)

// Config contains run configuration for display.
type Config struct {
	Source       string // capture path or gpio line
	SampleRate   float64
	SpikeRemoval bool
	ItemStyle    string
	BatchSize    int
	Broker       string // empty = MQTT disabled
	HTTPAddr     string
}

// Snapshot is a point-in-time view of run state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	RunID         string
	State         RunState
	Stats         irigb.Stats
	Last          *irigb.TimeRecord // most recent valid frame
	LastFrame     int               // sequence number of the most recent frame, valid or not
	LastError     string            // most recent validation failure
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the run started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable run state behind an RWMutex. It implements irigb.Sink.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, run id and config.
func NewTracker(startTime time.Time, runID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:     runID,
			State:     StateDecoding,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// OnFrame records the most recent frame and its outcome.
func (t *Tracker) OnFrame(f irigb.Frame, out irigb.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastFrame = f.Seq
	if out.Valid {
		rec := out.Record
		t.snap.Last = &rec
		t.snap.Stats.FramesValid++
		return
	}
	t.snap.Stats.FramesInvalid++
	if out.Err != nil {
		t.snap.LastError = out.Err.Error()
	}
}

// SetStats replaces the counters with the decoder's.
func (t *Tracker) SetStats(s irigb.Stats) {
	t.mu.Lock()
	t.snap.Stats = s
	t.mu.Unlock()
}

// SetState sets the run phase.
func (t *Tracker) SetState(s RunState) {
	t.mu.Lock()
	t.snap.State = s
	t.mu.Unlock()
}

// SetSampleRate records the sampling rate once the source is known.
func (t *Tracker) SetSampleRate(hz float64) {
	t.mu.Lock()
	t.snap.Config.SampleRate = hz
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the run state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		rec := *s.Last
		s.Last = &rec
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
