// Package mqtt publishes decoded IRIG-B frames with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/irigb-decoder/internal/irigb"
)

// Topic is the default MQTT topic for decoded frames.
const Topic = "timing/irigb/frames"

// TopicSystem is the MQTT topic for run lifecycle events.
const TopicSystem = "timing/irigb/system"

// Publisher publishes frame reports to MQTT.
type Publisher interface {
	// PublishFrame sends one finalized frame to the broker.
	// Returns error if publishing fails (should not stop decoding).
	PublishFrame(report FrameReport) error

	// PublishSystem sends a run lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// FrameReport is one finalized frame with its outcome.
type FrameReport struct {
	RunID      string
	SampleRate float64
	Frame      irigb.Frame
	Outcome    irigb.Outcome
}

// SystemEvent represents a run lifecycle event (e.g., startup, completion, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "COMPLETE", "SHUTDOWN"
	Reason    string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RunID     string
	Stats     *irigb.Stats // set on COMPLETE and SHUTDOWN
	Retained  bool         // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	IRIGB FramePayload `json:"irigb"`
}

// FramePayload contains the frame details.
type FramePayload struct {
	RunID        string       `json:"run_id"`
	Frame        int          `json:"frame"`
	Valid        bool         `json:"valid"`
	StartSample  int64        `json:"start_sample"`
	EndSample    int64        `json:"end_sample"`
	StartSeconds float64      `json:"start_s"`
	Time         *TimePayload `json:"time,omitempty"`
	Error        string       `json:"error,omitempty"`
	Classes      string       `json:"classes,omitempty"` // raw pulse classes, invalid frames only
}

// TimePayload is the decoded time record.
type TimePayload struct {
	DayOfYear        int    `json:"day_of_year"`
	Hours            int    `json:"hours"`
	Minutes          int    `json:"minutes"`
	Seconds          int    `json:"seconds"`
	Year             int    `json:"year"`
	TimeOfDaySeconds int    `json:"time_of_day_seconds"`
	ControlFunctions int    `json:"control_functions"`
	Text             string `json:"text"`
}

// FormatPayload creates the JSON payload for a frame report.
func FormatPayload(r FrameReport) ([]byte, error) {
	p := FramePayload{
		RunID:       r.RunID,
		Frame:       r.Frame.Seq,
		Valid:       r.Outcome.Valid,
		StartSample: r.Frame.Start(),
		EndSample:   r.Frame.End(),
	}
	if r.SampleRate > 0 {
		p.StartSeconds = float64(r.Frame.Start()) / r.SampleRate
	}
	if r.Outcome.Valid {
		rec := r.Outcome.Record
		p.Time = &TimePayload{
			DayOfYear:        rec.DayOfYear,
			Hours:            rec.Hours,
			Minutes:          rec.Minutes,
			Seconds:          rec.Seconds,
			Year:             rec.Year,
			TimeOfDaySeconds: rec.TimeOfDaySeconds,
			ControlFunctions: rec.ControlFunctions,
			Text:             rec.String(),
		}
	} else {
		if r.Outcome.Err != nil {
			p.Error = r.Outcome.Err.Error()
		}
		p.Classes = r.Frame.Classes()
	}
	return json.Marshal(Payload{IRIGB: p})
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	RunID     string        `json:"run_id,omitempty"`
	Stats     *StatsPayload `json:"stats,omitempty"`
}

// StatsPayload is the JSON form of irigb.Stats.
type StatsPayload struct {
	Edges          int `json:"edges"`
	Pulses         int `json:"pulses"`
	SpikesRejected int `json:"spikes_rejected"`
	FramesValid    int `json:"frames_valid"`
	FramesInvalid  int `json:"frames_invalid"`
	RangeWarnings  int `json:"range_warnings"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	inner := SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
		RunID:     event.RunID,
	}
	if s := event.Stats; s != nil {
		inner.Stats = &StatsPayload{
			Edges:          s.Edges,
			Pulses:         s.Pulses,
			SpikesRejected: s.SpikesRejected,
			FramesValid:    s.FramesValid,
			FramesInvalid:  s.FramesInvalid,
			RangeWarnings:  s.RangeWarnings,
		}
	}
	return json.Marshal(SystemPayload{System: inner})
}
