// Package render turns finalized frames into log annotations.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sweeney/irigb-decoder/internal/irigb"
	"golang.org/x/time/rate"
)

// ItemStyle selects how a finalized frame is rendered. It never affects decoding.
type ItemStyle string

const (
	StyleFrame ItemStyle = "frame"
	StylePulse ItemStyle = "pulse"
)

// ParseItemStyle accepts "frame" or "pulse", case-insensitively.
func ParseItemStyle(s string) (ItemStyle, error) {
	switch st := ItemStyle(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleFrame, StylePulse:
		return st, nil
	default:
		return "", fmt.Errorf("unknown item style %q (want frame or pulse)", s)
	}
}

// LogSink writes one annotation per frame, or one per pulse, at the frame's sample span.
// Invalid frame warnings are rate limited; suppressed ones are counted.
type LogSink struct {
	style      ItemStyle
	rate       float64
	log        *logrus.Entry
	limiter    *rate.Limiter
	suppressed int
}

// NewLogSink creates a sink for a capture sampled at sampleRate.
func NewLogSink(style ItemStyle, sampleRate float64, log *logrus.Entry) *LogSink {
	return &LogSink{
		style:   style,
		rate:    sampleRate,
		log:     log.WithField("component", "render"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// OnFrame renders the frame.
func (s *LogSink) OnFrame(f irigb.Frame, out irigb.Outcome) {
	span := logrus.Fields{
		"frame": f.Seq,
		"start": f.Start(),
		"end":   f.End(),
		"at":    s.seconds(f.Start()),
	}
	if !out.Valid {
		if !s.limiter.Allow() {
			s.suppressed++
			return
		}
		s.log.WithFields(span).WithError(out.Err).Warnf("invalid frame %s", f.Classes())
		return
	}

	switch s.style {
	case StylePulse:
		for i, p := range f.Pulses {
			s.log.WithFields(logrus.Fields{
				"frame": f.Seq,
				"pos":   i,
				"start": p.Rising,
				"end":   p.Falling,
			}).Debug(PulseLabel(p))
		}
		s.log.WithFields(span).Info(out.Record.String())
	default:
		s.log.WithFields(span).Info(out.Record.String())
	}
}

// Suppressed is the number of invalid frame warnings dropped by the rate limiter.
func (s *LogSink) Suppressed() int {
	return s.suppressed
}

func (s *LogSink) seconds(sample int64) string {
	if s.rate <= 0 {
		return ""
	}
	return fmt.Sprintf("%.3fs", float64(sample)/s.rate)
}

// PulseLabel is the short annotation for one pulse, e.g. "8ms P".
func PulseLabel(p irigb.Pulse) string {
	return fmt.Sprintf("%dms %s", p.WidthMs, p.Class)
}

// Multi fans a frame out to several sinks in order.
type Multi []irigb.Sink

// OnFrame calls every sink.
func (m Multi) OnFrame(f irigb.Frame, out irigb.Outcome) {
	for _, s := range m {
		s.OnFrame(f, out)
	}
}
