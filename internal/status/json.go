package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	RunID         string     `json:"run_id"`
	State         string     `json:"state"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Last          *TimeJSON  `json:"last,omitempty"`
	LastFrame     int        `json:"last_frame"`
	LastError     string     `json:"last_error,omitempty"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// TimeJSON is the most recent decoded time record.
type TimeJSON struct {
	DayOfYear        int    `json:"day_of_year"`
	Hours            int    `json:"hours"`
	Minutes          int    `json:"minutes"`
	Seconds          int    `json:"seconds"`
	Year             int    `json:"year"`
	TimeOfDaySeconds int    `json:"time_of_day_seconds"`
	Text             string `json:"text"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of decoder counters.
type CountsJSON struct {
	Edges           int `json:"edges"`
	Pulses          int `json:"pulses"`
	SpikesRejected  int `json:"spikes_rejected"`
	FramesValid     int `json:"frames_valid"`
	FramesInvalid   int `json:"frames_invalid"`
	PulsesDiscarded int `json:"pulses_discarded"`
	RangeWarnings   int `json:"range_warnings"`
}

// ConfigJSON is the JSON representation of run config.
type ConfigJSON struct {
	Source       string  `json:"source"`
	SampleRateHz float64 `json:"sample_rate_hz"`
	SpikeRemoval bool    `json:"spike_removal"`
	ItemStyle    string  `json:"item_style"`
	BatchSize    int     `json:"batch_size"`
	HTTPAddr     string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}
	s := snap.Stats
	inner := StatusInner{
		RunID:         snap.RunID,
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastFrame:     snap.LastFrame,
		LastError:     snap.LastError,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Edges:           s.Edges,
			Pulses:          s.Pulses,
			SpikesRejected:  s.SpikesRejected,
			FramesValid:     s.FramesValid,
			FramesInvalid:   s.FramesInvalid,
			PulsesDiscarded: s.PulsesDiscarded,
			RangeWarnings:   s.RangeWarnings,
		},
		Config: ConfigJSON{
			Source:       snap.Config.Source,
			SampleRateHz: snap.Config.SampleRate,
			SpikeRemoval: snap.Config.SpikeRemoval,
			ItemStyle:    snap.Config.ItemStyle,
			BatchSize:    snap.Config.BatchSize,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if r := snap.Last; r != nil {
		inner.Last = &TimeJSON{
			DayOfYear:        r.DayOfYear,
			Hours:            r.Hours,
			Minutes:          r.Minutes,
			Seconds:          r.Seconds,
			Year:             r.Year,
			TimeOfDaySeconds: r.TimeOfDaySeconds,
			Text:             r.String(),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
