// Package emitter uploads the newest camera frame at a fixed cadence while
// the session channel is connected.
package emitter

import (
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/channel"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const DefaultPeriod = 1000 * time.Millisecond

const dataURLPrefix = "data:image/jpeg;base64,"

// FrameSource is the part of camera.Source the emitter needs.
type FrameSource interface {
	Snapshot() (camera.Frame, bool)
}

// Channel is the part of channel.Channel the emitter needs.
type Channel interface {
	State() channel.State
	Send(m wire.Outbound) bool
}

// Config controls frame upload.
type Config struct {
	Period time.Duration
	// DataURL prefixes the payload with a data:image/jpeg URL header.
	DataURL bool
}

// Emitter sends at most one frame per period. It lives on the session loop.
type Emitter struct {
	cfg     Config
	loop    *loop.Loop
	source  FrameSource
	channel Channel
	logger  *slog.Logger
	metrics metrics.Collector

	timer *loop.Timer
}

// New creates a stopped emitter reading frames from src.
func New(cfg Config, l *loop.Loop, src FrameSource, ch Channel, logger *slog.Logger, m metrics.Collector) *Emitter {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Emitter{
		cfg:     cfg,
		loop:    l,
		source:  src,
		channel: ch,
		logger:  logger.With("component", "emitter"),
		metrics: m,
	}
}

// Start begins periodic emission. A running emitter is restarted, so there
// is never more than one active timer.
func (e *Emitter) Start() {
	e.timer.Stop()
	e.timer = e.loop.Every(e.cfg.Period, e.tick)
	e.logger.Debug("emitter started", "period", e.cfg.Period)
}

// Stop ends emission immediately. It is safe to call when not running.
func (e *Emitter) Stop() {
	if e.timer == nil {
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.logger.Debug("emitter stopped")
}

// Running reports whether a tick is scheduled.
func (e *Emitter) Running() bool { return e.timer.Active() }

func (e *Emitter) tick() {
	if e.channel.State() != channel.Connected {
		e.metrics.FrameSkipped("disconnected")
		return
	}
	frame, ok := e.source.Snapshot()
	if !ok {
		e.metrics.FrameSkipped("no_frame")
		return
	}

	payload := base64.StdEncoding.EncodeToString(frame.JPEG)
	if e.cfg.DataURL {
		payload = dataURLPrefix + payload
	}
	msg := wire.Frame{
		Frame:     payload,
		Timestamp: frame.CapturedAt.UTC().Format(wire.TimeLayout),
	}
	if e.channel.Send(msg) {
		e.metrics.FrameEmitted(len(frame.JPEG))
	} else {
		e.metrics.FrameSkipped("send_failed")
	}
}
