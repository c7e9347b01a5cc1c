// Package metrics exposes decoder activity as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sweeney/irigb-decoder/internal/irigb"
)

var (
	pulsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irigb_pulses_total",
		Help: "Classified pulses by class",
	}, []string{"class"})

	spikesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irigb_spikes_rejected_total",
		Help: "Low-level glitches removed before classification",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irigb_frames_total",
		Help: "Finalized frames by outcome",
	}, []string{"outcome"})

	pulseWidthMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "irigb_pulse_width_milliseconds",
		Help:    "Rounded pulse widths",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})

	lastTimeOfDay = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "irigb_last_time_of_day_seconds",
		Help: "BCD time of day of the most recent valid frame",
	})
)

// Outcome labels.
const (
	OutcomeValid        = "valid"
	OutcomeBadMarker    = "bad_marker"
	OutcomeBadLength    = "bad_length"
	OutcomeInvalidOther = "invalid"
)

// Recorder feeds the package metrics. It implements irigb.Observer and irigb.Sink.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObservePulse counts a committed pulse.
func (Recorder) ObservePulse(p irigb.Pulse) {
	pulsesTotal.WithLabelValues(string(p.Class)).Inc()
	pulseWidthMs.Observe(float64(p.WidthMs))
}

// ObserveSpike counts a removed glitch.
func (Recorder) ObserveSpike() {
	spikesRejectedTotal.Inc()
}

// OnFrame counts a finalized frame.
func (Recorder) OnFrame(_ irigb.Frame, out irigb.Outcome) {
	framesTotal.WithLabelValues(OutcomeLabel(out)).Inc()
	if out.Valid {
		lastTimeOfDay.Set(out.Record.SinceMidnight().Seconds())
	}
}

// OutcomeLabel maps an outcome to its frames_total label.
func OutcomeLabel(out irigb.Outcome) string {
	switch {
	case out.Valid:
		return OutcomeValid
	case errors.Is(out.Err, irigb.ErrMissingMarker):
		return OutcomeBadMarker
	case errors.Is(out.Err, irigb.ErrFrameLength):
		return OutcomeBadLength
	default:
		return OutcomeInvalidOther
	}
}
