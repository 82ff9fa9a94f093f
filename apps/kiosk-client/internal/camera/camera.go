// Package camera acquires a capture device and keeps its most recent frame
// available for the emitter and the overlay.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Constraints describe the requested capture format. Width and height are
// ideals; devices may deliver something close.
type Constraints struct {
	Device      string
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
}

// DefaultConstraints match the kiosk's stock camera: 640x480, user-facing.
func DefaultConstraints() Constraints {
	return Constraints{
		Device:      "/dev/video0",
		Width:       640,
		Height:      480,
		FPS:         15,
		JPEGQuality: 80,
	}
}

// Sink receives device output on device-owned goroutines.
type Sink struct {
	Frame func(jpeg []byte)
	// Fail reports that capture stopped after a successful Open. The device
	// delivers no more frames but still has to be closed.
	Fail func(err error)
}

// Device produces JPEG frames. Open starts delivery to sink on a device-owned
// goroutine; Close stops it.
type Device interface {
	Open(ctx context.Context, c Constraints, sink Sink) error
	Close() error
}

// Frame is one captured JPEG image.
type Frame struct {
	Seq        uint64
	JPEG       []byte
	CapturedAt time.Time
}

// Source wraps a Device and retains only the newest frame.
type Source struct {
	device      Device
	constraints Constraints
	logger      *slog.Logger
	now         func() time.Time

	onFailure func(*Error)

	mu      sync.Mutex
	open    bool
	running atomic.Bool

	gen    atomic.Uint64
	seq    atomic.Uint64
	latest atomic.Pointer[Frame]

	decodeMu   sync.Mutex
	decodedSeq uint64
	decoded    image.Image
}

// NewSource creates a stopped source.
func NewSource(device Device, c Constraints, logger *slog.Logger) *Source {
	return &Source{
		device:      device,
		constraints: c,
		logger:      logger.With("component", "camera"),
		now:         time.Now,
	}
}

// OnFailure registers fn to run when the device fails mid-stream. It runs
// on the device goroutine and must be set before Start.
func (s *Source) OnFailure(fn func(*Error)) {
	s.onFailure = fn
}

// Start acquires the device. Failures are returned as *Error.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	gen := s.gen.Add(1)
	err := s.device.Open(ctx, s.constraints, Sink{
		Frame: func(b []byte) { s.deliver(gen, b) },
		Fail:  func(err error) { s.fail(gen, err) },
	})
	if err != nil {
		cerr := Classify(err)
		s.logger.Error("camera unavailable", "kind", cerr.Kind, "error", err)
		return cerr
	}
	s.open = true
	s.running.Store(true)
	s.logger.Info("camera started", "device", s.constraints.Device,
		"width", s.constraints.Width, "height", s.constraints.Height)
	return nil
}

func (s *Source) deliver(gen uint64, b []byte) {
	if s.gen.Load() != gen || len(b) == 0 {
		return
	}
	data := make([]byte, len(b))
	copy(data, b)
	f := &Frame{
		Seq:        s.seq.Add(1),
		JPEG:       data,
		CapturedAt: s.now(),
	}
	s.latest.Store(f)
	if s.gen.Load() != gen {
		// Stopped or failed while storing.
		s.latest.CompareAndSwap(f, nil)
	}
}

// fail drops the last frame so nothing stale is uploaded. The device stays
// held until Stop. It never takes s.mu: Stop holds it while waiting for the
// device goroutine that calls fail.
func (s *Source) fail(gen uint64, err error) {
	if !s.gen.CompareAndSwap(gen, gen+1) {
		return
	}
	s.running.Store(false)
	s.clearFrame()

	cerr := Classify(err)
	s.logger.Error("camera failed", "kind", cerr.Kind, "error", err)
	if s.onFailure != nil {
		s.onFailure(cerr)
	}
}

func (s *Source) clearFrame() {
	s.latest.Store(nil)
	s.decodeMu.Lock()
	s.decoded = nil
	s.decodeMu.Unlock()
}

// Snapshot returns the newest frame. ok is false before the first frame and
// after Stop.
func (s *Source) Snapshot() (Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Image returns the newest frame decoded. Decoding is cached per frame.
func (s *Source) Image() (image.Image, bool, error) {
	f := s.latest.Load()
	if f == nil {
		return nil, false, nil
	}

	s.decodeMu.Lock()
	defer s.decodeMu.Unlock()
	if s.decoded != nil && s.decodedSeq == f.Seq {
		return s.decoded, true, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(f.JPEG))
	if err != nil {
		return nil, false, fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	s.decoded, s.decodedSeq = img, f.Seq
	return img, true, nil
}

// Running reports whether the device is held and delivering frames.
func (s *Source) Running() bool {
	return s.running.Load()
}

// Stop releases the device. Frames still in flight from the device are
// discarded. Calling Stop on a stopped source does nothing.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.running.Store(false)
	s.gen.Add(1)
	s.clearFrame()

	if err := s.device.Close(); err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	s.logger.Info("camera stopped")
	return nil
}
