//go:build cgo && !nogst

// Package gstdevice captures frames from a V4L2 camera through GStreamer.
//
// Pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → jpegenc → appsink
//
// The appsink keeps a single buffer and drops older ones, so the consumer
// always sees the newest JPEG.
package gstdevice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
)

const startTimeout = 5 * time.Second

// Device is a camera.Device backed by a GStreamer pipeline.
type Device struct {
	logger *slog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a closed device.
func New(logger *slog.Logger) *Device {
	return &Device{logger: logger.With("component", "gstdevice")}
}

var _ camera.Device = (*Device)(nil)

// Open builds the pipeline, starts it and waits until it is playing or
// reports an error.
func (d *Device) Open(ctx context.Context, c camera.Constraints, sink camera.Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline != nil {
		return &camera.Error{Kind: camera.KindBusy, Err: fmt.Errorf("device %s already open", c.Device)}
	}

	pipeline, appsink, err := buildPipeline(c)
	if err != nil {
		return &camera.Error{Kind: camera.KindUnknown, Err: err}
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return onNewSample(s, sink.Frame, d.logger)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return &camera.Error{Kind: camera.KindUnknown, Err: fmt.Errorf("start pipeline: %w", err)}
	}

	if err := waitPlaying(ctx, pipeline); err != nil {
		pipeline.SetState(gst.StateNull)
		return err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	d.pipeline = pipeline
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.monitor(monitorCtx, d.done, pipeline, sink.Fail)

	d.logger.Info("capture pipeline playing", "device", c.Device, "width", c.Width, "height", c.Height, "fps", c.FPS)
	return nil
}

// Close stops the pipeline and the bus monitor.
func (d *Device) Close() error {
	d.mu.Lock()
	pipeline, cancel, done := d.pipeline, d.cancel, d.done
	d.pipeline, d.cancel, d.done = nil, nil, nil
	d.mu.Unlock()

	if pipeline == nil {
		return nil
	}
	cancel()
	<-done
	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop pipeline: %w", err)
	}
	return nil
}

func buildPipeline(c camera.Constraints) (*gst.Pipeline, *app.Sink, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", c.Device)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsString(c)))

	enc, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create jpegenc: %w", err)
	}
	if c.JPEGQuality > 0 {
		enc.SetProperty("quality", c.JPEGQuality)
	}

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, scale, rate, capsfilter, enc, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, rate, capsfilter, enc, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("failed to link elements: %w", err)
	}
	return pipeline, appsink, nil
}

func capsString(c camera.Constraints) string {
	caps := "video/x-raw"
	if c.Width > 0 && c.Height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", c.Width, c.Height)
	}
	if c.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", c.FPS)
	}
	return caps
}

func onNewSample(s *app.Sink, sink func([]byte), logger *slog.Logger) gst.FlowReturn {
	sample := s.PullSample()
	if sample == nil {
		logger.Warn("failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) > 0 {
		// sink copies; the buffer is reused after Unmap.
		sink(data)
	}
	buffer.Unmap()
	return gst.FlowOK
}

func waitPlaying(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return &camera.Error{Kind: camera.KindUnknown, Err: err}
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			return classify(msg.ParseError())
		case gst.MessageStateChanged:
			if msg.Source() != pipeline.GetName() {
				continue
			}
			if _, next := msg.ParseStateChanged(); next == gst.StatePlaying {
				return nil
			}
		}
	}
	return &camera.Error{Kind: camera.KindUnknown, Err: fmt.Errorf("pipeline did not reach PLAYING within %s", startTimeout)}
}

// monitor watches the bus until Close. End of stream and pipeline errors
// are reported through fail.
func (d *Device) monitor(ctx context.Context, done chan<- struct{}, pipeline *gst.Pipeline, fail func(error)) {
	defer close(done)
	report := func(err error) {
		if fail != nil {
			fail(err)
		}
	}
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			d.logger.Warn("capture pipeline reached end of stream")
			report(&camera.Error{Kind: camera.KindUnknown, Err: fmt.Errorf("capture pipeline reached end of stream")})
			return
		case gst.MessageError:
			cerr := classify(msg.ParseError())
			d.logger.Error("capture pipeline error", "kind", cerr.Kind, "error", cerr.Err)
			report(cerr)
			return
		}
	}
}

func classify(gerr *gst.GError) *camera.Error {
	if gerr == nil {
		return &camera.Error{Kind: camera.KindUnknown, Err: fmt.Errorf("unknown pipeline error")}
	}
	return &camera.Error{
		Kind: camera.ClassifyMessage(gerr.Error(), gerr.DebugString()),
		Err:  fmt.Errorf("%s: %s", gerr.Error(), gerr.DebugString()),
	}
}
