//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sweeney/irigb-decoder/internal/capture"
	"github.com/sweeney/irigb-decoder/internal/irigb"
	"github.com/warthog618/go-gpiocdev"
)

// recorder collects line events delivered on the gpiocdev event goroutine.
type recorder struct {
	mu     sync.Mutex
	edges  []irigb.Edge
	origin time.Duration
}

func (r *recorder) handle(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.edges) == 0 {
		r.origin = evt.Timestamp
	}
	sample := int64(evt.Timestamp - r.origin)
	// Kernel timestamps can collide; keep indices strictly increasing.
	if n := len(r.edges); n > 0 && sample <= r.edges[n-1].Sample {
		sample = r.edges[n-1].Sample + 1
	}
	level := irigb.Low
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = irigb.High
	}
	r.edges = append(r.edges, irigb.Edge{Sample: sample, Level: level})
}

func (r *recorder) capture() *capture.Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	edges := make([]irigb.Edge, len(r.edges))
	copy(edges, r.edges)
	return capture.New(CaptureRate, edges)
}

// Capture records both edges of a line for d (or until ctx is done) and returns them as a
// finished capture. Decoding happens afterwards on the recorded stream.
func Capture(ctx context.Context, chip string, pin int, d time.Duration, log *logrus.Entry) (*capture.Capture, error) {
	rec := &recorder{}

	// Input with pull-down to match Pi boot defaults.
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(rec.handle),
	)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", chip, pin, err)
	}

	log.WithFields(logrus.Fields{"chip": chip, "pin": pin, "duration": d}).Info("capturing edges")
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		log.Info("capture interrupted")
	case <-timer.C:
	}

	var errs []error
	// Leave the pin as the Pi boot defaults expect (input with pull-down, no edge detection).
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithoutEdges); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("close errors: %v", errs)
	}

	c := rec.capture()
	log.WithField("edges", len(c.Edges)).Info("capture complete")
	return c, nil
}
