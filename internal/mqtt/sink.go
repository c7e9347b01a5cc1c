package mqtt

import (
	"github.com/sirupsen/logrus"
	"github.com/sweeney/irigb-decoder/internal/irigb"
)

// Sink publishes every finalized frame. Publish failures are logged and counted, never
// propagated to the decoder.
type Sink struct {
	pub      Publisher
	runID    string
	rate     float64
	log      *logrus.Entry
	failures int
}

// NewSink wraps pub as an irigb.Sink for one decode run.
func NewSink(pub Publisher, runID string, sampleRate float64, log *logrus.Entry) *Sink {
	return &Sink{
		pub:   pub,
		runID: runID,
		rate:  sampleRate,
		log:   log.WithField("component", "mqtt"),
	}
}

// OnFrame publishes the frame report.
func (s *Sink) OnFrame(f irigb.Frame, out irigb.Outcome) {
	err := s.pub.PublishFrame(FrameReport{
		RunID:      s.runID,
		SampleRate: s.rate,
		Frame:      f,
		Outcome:    out,
	})
	if err != nil {
		s.failures++
		s.log.WithError(err).WithField("frame", f.Seq).Error("publish error")
	}
}

// Failures is the number of frames that could not be published.
func (s *Sink) Failures() int {
	return s.failures
}
