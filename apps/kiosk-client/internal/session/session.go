// Package session ties one kiosk session together. It owns the event loop
// and everything that runs on it: the session channel, the frame emitter,
// the cart, the overlay renderer and the notifier. The camera source runs
// on its own device goroutine and is read from the loop.
//
// Exported methods are safe to call from any goroutine. Methods that touch
// session state hop onto the loop and wait for the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/api"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/cart"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/channel"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/emitter"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/overlay"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/router"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/ui"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

var (
	ErrNotLoggedIn    = errors.New("no customer is logged in")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrClosed         = errors.New("session closed")
	ErrAlreadyRunning = errors.New("session already running")
)

// NewID returns a fresh session identifier.
func NewID() string {
	return "session_" + uuid.NewString()
}

// Config describes one session.
type Config struct {
	// ID is carried in the channel address and in collaborator calls.
	// Empty means NewID.
	ID string
	// BaseURL is the websocket base address, e.g. http://host:8000/ws.
	BaseURL string

	Channel channel.Config
	Emitter emitter.Config
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics collector shared by all components.
func WithMetrics(m metrics.Collector) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces the loop's clock. Tests use looptest.Clock.
func WithClock(c loop.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Status is a point-in-time view of the session for status endpoints.
type Status struct {
	SessionID     string     `json:"session_id"`
	Channel       string     `json:"channel"`
	Attempts      int        `json:"reconnect_attempts"`
	User          *wire.User `json:"user,omitempty"`
	FaceDetected  bool       `json:"face_detected"`
	CartStatus    string     `json:"cart_status"`
	Cart          wire.Cart  `json:"cart"`
	Emitting      bool       `json:"emitting"`
	CameraRunning bool       `json:"camera_running"`
}

// Session is one kiosk session from first connect to teardown.
type Session struct {
	id       string
	clock    loop.Clock
	loop     *loop.Loop
	channel  *channel.Channel
	source   *camera.Source
	emitter  *emitter.Emitter
	cart     *cart.State
	renderer *overlay.Renderer
	surface  *overlay.LatestSurface
	notifier ui.Notifier
	api      api.Client
	logger   *slog.Logger
	metrics  metrics.Collector

	// Owned by the loop.
	user      *wire.User
	face      bool
	prevState channel.State

	status atomic.Pointer[Status]

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	closed   chan struct{}
	tornDown sync.Once
}

// New assembles a session around device. Nothing is started until Run.
func New(cfg Config, device camera.Device, constraints camera.Constraints, client api.Client, notifier ui.Notifier, opts ...Option) (*Session, error) {
	s := &Session{
		id:       cfg.ID,
		clock:    loop.RealClock(),
		surface:  &overlay.LatestSurface{},
		notifier: notifier,
		api:      client,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:  metrics.Nop{},
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = NewID()
	}
	s.logger = s.logger.With("session_id", s.id)

	url, err := channel.URL(cfg.BaseURL, s.id)
	if err != nil {
		return nil, err
	}

	r, err := s.routes().Build()
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	s.loop = loop.New(s.clock)
	s.source = camera.NewSource(device, constraints, s.logger)
	s.source.OnFailure(func(cerr *camera.Error) {
		s.post(func() {
			s.notifier.Notify(ui.Error, cerr.Kind.Message())
			s.publish()
		})
	})

	chCfg := cfg.Channel
	chCfg.URL = url
	s.channel = channel.New(chCfg, s.loop, r,
		channel.WithLogger(s.logger),
		channel.WithMetrics(s.metrics),
		channel.WithStatus(s.onChannelState),
	)
	s.cart = cart.New(s.channel, s.logger, s.metrics)
	s.cart.OnChange(s.onCartChange)
	s.emitter = emitter.New(cfg.Emitter, s.loop, s.source, s.channel, s.logger, s.metrics)
	s.renderer = overlay.NewRenderer(s.source, s.surface, s.logger, s.metrics)

	s.publish()
	return s, nil
}

// routes registers one handler per inbound message type.
func (s *Session) routes() *router.Builder {
	b := router.NewBuilder()
	router.On(b, wire.TypeUserInfo, s.handleUserInfo)
	router.On(b, wire.TypeUserLogin, s.handleUserLogin)
	router.On(b, wire.TypeFaceDetected, s.handleFaceDetected)
	router.On(b, wire.TypeFaceStatus, s.handleFaceStatus)
	router.On(b, wire.TypeCartUpdate, s.handleCartUpdate)
	router.On(b, wire.TypeCartUpdated, s.handleCartUpdate)
	router.On(b, wire.TypeProductAdded, s.handleProductAdded)
	router.On(b, wire.TypeDetections, s.handleDetections)
	router.On(b, wire.TypeProductDetected, s.handleProductDetected)
	router.On(b, wire.TypeError, s.handleError)
	return b
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Preview exposes the latest overlay composite.
func (s *Session) Preview() *overlay.LatestSurface { return s.surface }

// Status returns the last published view of the session.
func (s *Session) Status() Status {
	st := *s.status.Load()
	st.CameraRunning = s.source.Running()
	return st
}

// ChannelState reports the channel state. Safe from any goroutine.
func (s *Session) ChannelState() channel.State { return s.channel.State() }

// CameraRunning reports whether the capture device is held.
func (s *Session) CameraRunning() bool { return s.source.Running() }

// Run acquires the camera, connects the channel, starts the emitter and
// processes events until ctx is done or Close is called. Everything is torn
// down before Run returns. A session runs at most once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	switch {
	case s.isClosed():
		s.mu.Unlock()
		return ErrClosed
	case s.running:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()
	defer close(done)
	defer s.teardown()

	s.logger.Info("session starting")
	if err := s.source.Start(ctx); err != nil {
		var cerr *camera.Error
		if errors.As(err, &cerr) {
			s.notifier.Notify(ui.Error, cerr.Kind.Message())
		} else {
			s.notifier.Notify(ui.Error, camera.KindUnknown.Message())
		}
		return fmt.Errorf("start camera: %w", err)
	}

	s.loop.Post(func() {
		s.channel.Connect()
		s.emitter.Start()
		s.publish()
	})

	_ = s.loop.Run(ctx)
	s.logger.Info("session stopped")
	return nil
}

// Close stops a running session and waits for its teardown. It is safe to
// call more than once and before Run.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	running := s.running
	s.running = false
	s.mu.Unlock()

	if running && cancel != nil {
		cancel()
		<-done
		return
	}
	s.teardown()
}

// teardown cancels every timer and releases the device. The loop must not
// be running.
func (s *Session) teardown() {
	s.tornDown.Do(func() {
		s.loop.Stop()
		s.emitter.Stop()
		s.channel.Close()
		if err := s.source.Stop(); err != nil {
			s.logger.Warn("release camera", "error", err)
		}
		s.publish()
		close(s.closed)
	})
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// do runs fn on the loop and waits for it. Before Run starts the task
// stays queued until the loop comes up or ctx ends.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.loop.Post(func() { fn(); close(finished) }) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconnect restarts the channel after it gave up.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.do(ctx, s.channel.Connect)
}

// RemoveItem asks the server to drop cart line index.
func (s *Session) RemoveItem(ctx context.Context, index int) error {
	var err error
	if derr := s.do(ctx, func() { err = s.cart.RequestRemoval(index) }); derr != nil {
		return derr
	}
	if err != nil {
		s.post(func() { s.notifier.Notify(ui.Warning, "That item is no longer in the cart") })
	}
	return err
}

// Logout forgets the customer and clears the local cart.
func (s *Session) Logout(ctx context.Context) error {
	return s.do(ctx, func() {
		s.user = nil
		s.face = false
		s.notifier.SetFaceDetected(false)
		s.cart.Clear()
		s.notifier.Notify(ui.Info, "Logged out")
		s.logger.Info("customer logged out")
	})
}

// Checkout settles the cart through the collaborator API. The local cart is
// not touched; the server pushes the emptied cart over the channel.
func (s *Session) Checkout(ctx context.Context) (*wire.CheckoutResponse, error) {
	var (
		user *wire.User
		snap cart.Snapshot
	)
	if err := s.do(ctx, func() { user, snap = s.user, s.cart.Snapshot() }); err != nil {
		return nil, err
	}
	switch {
	case user == nil:
		s.post(func() { s.notifier.Notify(ui.Error, "Please log in with face recognition first") })
		return nil, ErrNotLoggedIn
	case snap.IsEmpty():
		s.post(func() { s.notifier.Notify(ui.Error, "The cart is empty") })
		return nil, ErrEmptyCart
	}

	resp, err := s.api.Checkout(ctx, s.id)
	if err != nil {
		s.logger.Warn("checkout failed", "error", err)
		s.post(func() { s.notifier.Notify(ui.Error, "Checkout failed: "+reason(err)) })
		return nil, err
	}
	s.logger.Info("checkout complete", "transaction_id", resp.TransactionID, "total_amount", resp.TotalAmount)
	s.post(func() {
		s.notifier.Notify(ui.Success, fmt.Sprintf("Checkout complete, total %.2f. Thank you!", resp.TotalAmount))
	})
	return resp, nil
}

// Register signs up the face currently in front of the camera. The login
// itself arrives over the channel as user_login.
func (s *Session) Register(ctx context.Context, name, phone string) (*wire.User, error) {
	user, err := s.api.Register(ctx, wire.RegisterRequest{SessionID: s.id, Name: name, Phone: phone})
	if err != nil {
		s.logger.Warn("registration failed", "error", err)
		s.post(func() { s.notifier.Notify(ui.Error, "Registration failed, please try again later") })
		return nil, err
	}
	return user, nil
}

// History fetches the logged-in customer's transactions.
func (s *Session) History(ctx context.Context) (*wire.TransactionsResponse, error) {
	var user *wire.User
	if err := s.do(ctx, func() { user = s.user }); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	return s.api.UserTransactions(ctx, user.ID)
}

// post queues fn on the loop, dropping it once the session has ended.
func (s *Session) post(fn func()) {
	s.loop.Post(fn)
}

func reason(err error) string {
	var aerr *api.Error
	if errors.As(err, &aerr) && aerr.Message != "" {
		return aerr.Message
	}
	return "please try again later"
}

func (s *Session) publish() {
	snap := s.cart.Snapshot()
	st := &Status{
		SessionID:    s.id,
		Channel:      s.channel.State().String(),
		FaceDetected: s.face,
		CartStatus:   s.cart.Status().String(),
		Cart:         snap.Wire(),
		Attempts:     s.channel.Attempts(),
		Emitting:     s.emitter.Running(),
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	s.status.Store(st)
}
