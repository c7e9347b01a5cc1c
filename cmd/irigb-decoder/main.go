// Command irigb-decoder decodes IRIG-B time code from recorded or live GPIO edges.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/irigb-decoder/internal/capture"
	"github.com/sweeney/irigb-decoder/internal/config"
	"github.com/sweeney/irigb-decoder/internal/gpio"
	"github.com/sweeney/irigb-decoder/internal/irigb"
	"github.com/sweeney/irigb-decoder/internal/logger"
	"github.com/sweeney/irigb-decoder/internal/metrics"
	"github.com/sweeney/irigb-decoder/internal/mqtt"
	"github.com/sweeney/irigb-decoder/internal/render"
	"github.com/sweeney/irigb-decoder/internal/status"
	"github.com/sweeney/irigb-decoder/internal/synth"
	"github.com/sweeney/irigb-decoder/internal/web"
)

// DefaultGenerateRate is the sampling rate of captures written by -generate.
const DefaultGenerateRate = 100000

type options struct {
	configPath string
	input      string
	useGPIO    bool
	generate   string
	frames     int
	start      string
	rate       float64
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (optional; IRIGB_* env vars override)")
	flag.StringVar(&opts.input, "input", "", "Edge capture file to decode")
	flag.BoolVar(&opts.useGPIO, "gpio", false, "Record gpio.duration of edges from the configured line, then decode")
	flag.StringVar(&opts.generate, "generate", "", "Write a synthetic capture to this path and exit")
	flag.IntVar(&opts.frames, "frames", 10, "Frames to generate")
	flag.StringVar(&opts.start, "start", "", "RFC3339 time of the first generated frame (default now)")
	flag.Float64Var(&opts.rate, "rate", DefaultGenerateRate, "Sampling rate in Hz of generated captures")

	flag.Parse()

	if err := run(opts); err != nil {
		logrus.WithError(err).Fatal("fatal")
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	l, err := logger.New(&cfg.Logging, cfg.Decoder.DebugLogging)
	if err != nil {
		return err
	}

	if opts.generate != "" {
		start, err := parseStart(opts.start, time.Now())
		if err != nil {
			return err
		}
		return generateCapture(opts.generate, opts.frames, start, opts.rate, logger.WithComponent(l, "synth"))
	}

	style, err := render.ParseItemStyle(cfg.Decoder.ItemStyle)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logger.WithRun(l, runID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	sw := watchSignals(sigCh, cancel, log)

	tracker := status.NewTracker(time.Now(), runID, status.Config{
		Source:       sourceLabel(opts, cfg),
		SpikeRemoval: cfg.Decoder.SpikeRemovalEnabled,
		ItemStyle:    string(style),
		BatchSize:    cfg.Decoder.BatchSize,
		Broker:       brokerOf(cfg),
		HTTPAddr:     cfg.HTTP.Addr,
	})

	// The status server comes up first so a long GPIO capture is visible.
	var hub *web.Hub
	if cfg.HTTP.Addr != "" {
		hub = web.NewHub(log)
		srv := web.New(cfg.HTTP.Addr, tracker, hub, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server error")
			}
		}()
		defer shutdownServer(srv, cfg.HTTP.ShutdownTimeout, log)
	}

	src, sourceName, err := openSource(ctx, opts, cfg, tracker, log)
	if err != nil {
		tracker.SetState(status.StateFailed)
		return err
	}

	rec := metrics.NewRecorder()
	sinks := render.Multi{render.NewLogSink(style, src.SampleRate(), log), tracker, rec}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		rp := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID+"-"+runID[:8], cfg.MQTT.Topic, log)
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		sinks = append(sinks, mqtt.NewSink(publisher, runID, src.SampleRate(), log))
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}

	dec := irigb.NewDecoder(irigb.Config{
		SpikeRemoval: cfg.Decoder.SpikeRemovalEnabled,
		BatchSize:    cfg.Decoder.BatchSize,
		Observer:     rec,
	}, sinks, log)

	r := &runner{
		log:        log,
		runID:      runID,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: mqttStatus,
	}
	log.WithFields(logrus.Fields{
		"source":        sourceName,
		"sample_rate":   src.SampleRate(),
		"spike_removal": cfg.Decoder.SpikeRemovalEnabled,
		"item_style":    style,
	}).Info("started")

	if _, err := r.decode(ctx, dec, src, sw.reason); err != nil {
		return err
	}

	if hub != nil && ctx.Err() == nil {
		log.WithField("addr", cfg.HTTP.Addr).Info("decode finished, serving status until signal")
		<-ctx.Done()
		r.publishSystem(mqtt.SystemEvent{Event: "SHUTDOWN", Reason: sw.reason(), Retained: true})
	}
	return nil
}

// runner drives one decode run and reports its lifecycle.
type runner struct {
	log        *logrus.Entry
	runID      string
	tracker    *status.Tracker
	publisher  mqtt.Publisher         // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
}

// decode runs dec over src. Cancellation is a clean shutdown, not an error.
func (r *runner) decode(ctx context.Context, dec *irigb.Decoder, src irigb.EdgeSource, reason func() string) (irigb.Stats, error) {
	r.publishSystem(mqtt.SystemEvent{Event: "STARTUP", Retained: true})

	stats, err := dec.Run(ctx, src)
	r.tracker.SetStats(stats)
	r.refreshMQTT()

	switch {
	case err == nil:
		r.tracker.SetState(status.StateDone)
		r.publishSystem(mqtt.SystemEvent{Event: "COMPLETE", Stats: &stats, Retained: true})
		return stats, nil
	case errors.Is(err, context.Canceled):
		r.tracker.SetState(status.StateCancelled)
		r.log.WithField("frames", stats.FramesValid).Info("decode cancelled")
		r.publishSystem(mqtt.SystemEvent{Event: "SHUTDOWN", Reason: reason(), Stats: &stats, Retained: true})
		return stats, nil
	default:
		r.tracker.SetState(status.StateFailed)
		r.publishSystem(mqtt.SystemEvent{Event: "SHUTDOWN", Reason: "ERROR", Stats: &stats, Retained: true})
		return stats, fmt.Errorf("decode: %w", err)
	}
}

func (r *runner) refreshMQTT() {
	if r.mqttStatus != nil {
		r.tracker.SetMQTTConnected(r.mqttStatus.IsConnected())
	}
}

func (r *runner) publishSystem(event mqtt.SystemEvent) {
	if r.publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	event.RunID = r.runID
	if err := r.publisher.PublishSystem(event); err != nil {
		r.log.WithError(err).Warnf("failed to publish %s event", event.Event)
		return
	}
	r.log.Debugf("published %s event", event.Event)
}

// signalWatcher cancels the run on the first signal and remembers which one it was.
type signalWatcher struct {
	mu   sync.Mutex
	name string
}

func watchSignals(sig <-chan os.Signal, cancel context.CancelFunc, log *logrus.Entry) *signalWatcher {
	w := &signalWatcher{}
	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		log.Infof("received %v, shutting down", s)
		w.mu.Lock()
		w.name = signalName(s)
		w.mu.Unlock()
		cancel()
	}()
	return w
}

func (w *signalWatcher) reason() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.name == "" {
		return "UNKNOWN"
	}
	return w.name
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownServer stops srv, waiting at most timeout for open connections.
func shutdownServer(srv shutdowner, timeout time.Duration, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
}

// recordGPIO records edges from a GPIO line. Tests replace it.
var recordGPIO = gpio.Capture

// sourceLabel names the edge source for logs and the status page.
func sourceLabel(opts options, cfg *config.Config) string {
	if opts.useGPIO {
		return fmt.Sprintf("%s:%d", cfg.GPIO.Chip, cfg.GPIO.Pin)
	}
	return opts.input
}

// openSource loads or records the edges to decode. The tracker shows CAPTURING while a GPIO
// recording is in progress and learns the sampling rate once the source is open.
func openSource(ctx context.Context, opts options, cfg *config.Config, tracker *status.Tracker, log *logrus.Entry) (irigb.EdgeSource, string, error) {
	name := sourceLabel(opts, cfg)
	var c *capture.Capture
	var err error
	switch {
	case opts.input != "" && opts.useGPIO:
		return nil, "", errors.New("-input and -gpio are mutually exclusive")
	case opts.input != "":
		c, err = capture.Load(opts.input)
		if err != nil {
			return nil, "", err
		}
		log.WithFields(logrus.Fields{
			"edges":    len(c.Edges),
			"duration": c.Duration(),
		}).Infof("loaded capture %s", opts.input)
	case opts.useGPIO:
		tracker.SetState(status.StateCapturing)
		c, err = recordGPIO(ctx, cfg.GPIO.Chip, cfg.GPIO.Pin, cfg.GPIO.Duration, log)
		if err != nil {
			return nil, "", fmt.Errorf("capture %s: %w", name, err)
		}
		tracker.SetState(status.StateDecoding)
	default:
		return nil, "", errors.New("one of -input, -gpio or -generate is required")
	}
	tracker.SetSampleRate(c.SampleRate)
	return c.Source(), name, nil
}

func brokerOf(cfg *config.Config) string {
	if !cfg.MQTT.Enabled {
		return ""
	}
	return cfg.MQTT.Broker
}

func parseStart(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC().Truncate(time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse -start: %w", err)
	}
	return t.UTC(), nil
}

// generateCapture writes n synthetic frames starting at start to path.
func generateCapture(path string, n int, start time.Time, rate float64, log *logrus.Entry) error {
	if n <= 0 {
		return fmt.Errorf("-frames must be positive, got %d", n)
	}
	g := synth.New(rate)
	c := capture.New(rate, g.Edges(synth.Sequence(start, n)...))
	if err := c.Save(path); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"edges":    len(c.Edges),
		"duration": c.Duration(),
		"start":    start.Format(time.RFC3339),
	}).Infof("wrote %d frames to %s", n, path)
	return nil
}
