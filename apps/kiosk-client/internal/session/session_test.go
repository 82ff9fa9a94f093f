package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/api"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/cart"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/channel"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/emitter"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop/looptest"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/ui"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	paths    chan string
	reject   atomic.Bool
	dials    atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 16),
		received: make(chan []byte, 64),
		paths:    make(chan string, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.dials.Add(1)
		if ts.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.paths <- r.URL.Path
		ts.conns <- conn
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				ts.received <- data
			}
		}()
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	sink    camera.Sink
	closed  int
}

func (d *fakeDevice) Open(_ context.Context, _ camera.Constraints, sink camera.Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.sink = sink
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDevice) deliver(b []byte) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink.Frame != nil {
		sink.Frame(b)
	}
}

func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink.Fail != nil {
		sink.Fail(err)
	}
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fixture struct {
	ts    *testServer
	clock *looptest.Clock
	dev   *fakeDevice
	rec   *ui.Recorder
	api   *api.MockClient
	s     *Session
	errc  chan error
}

func newFixture(t *testing.T, modify func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		ts:    newTestServer(t),
		clock: looptest.NewClock(time.Unix(1700000000, 0)),
		dev:   &fakeDevice{},
		rec:   &ui.Recorder{},
		api:   &api.MockClient{},
		errc:  make(chan error, 1),
	}
	cfg := Config{
		ID:      "session_test",
		BaseURL: f.ts.URL + "/ws",
		Channel: channel.Config{BaseDelay: time.Second, MaxAttempts: 5},
		Emitter: emitter.Config{Period: time.Hour},
	}
	if modify != nil {
		modify(&cfg)
	}
	s, err := New(cfg, f.dev, camera.DefaultConstraints(), f.api, f.rec, WithClock(f.clock))
	require.NoError(t, err)
	f.s = s
	return f
}

// start runs the session and waits for the server side of the socket.
func (f *fixture) start(t *testing.T) *websocket.Conn {
	t.Helper()
	go func() { f.errc <- f.s.Run(context.Background()) }()
	t.Cleanup(func() {
		f.s.Close()
		select {
		case err := <-f.errc:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("Run did not return after Close")
		}
	})

	var conn *websocket.Conn
	select {
	case conn = <-f.ts.conns:
	case <-time.After(waitFor):
		t.Fatal("session never connected")
	}
	require.Eventually(t, func() bool { return f.s.ChannelState() == channel.Connected }, waitFor, tick)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// retryPending lists the short timers, leaving out the emitter's hour tick.
func retryPending(clock *looptest.Clock) []time.Duration {
	var out []time.Duration
	for _, d := range clock.Pending() {
		if d < time.Minute {
			out = append(out, d)
		}
	}
	return out
}

const (
	loginMsg = `{"type":"user_login","user":{"id":"u1","name":"Ann"},"is_new":false}`
	cartMsg  = `{"type":"cart_updated","cart":{"items":[{"product_id":"p1","name":"Cola","unit_price":3.5,"quantity":2,"subtotal":7}],"total_quantity":2,"total_amount":7},"added_product":"Cola"}`
)

func TestConnectsWithSessionPath(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t)

	assert.Equal(t, "/ws/session_test", <-f.ts.paths)
	st := f.s.Status()
	assert.Equal(t, "session_test", st.SessionID)
	assert.True(t, st.CameraRunning)
}

func TestLoginCartAndOverlay(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)
	f.dev.deliver(testJPEG(t, 320, 240))

	send(t, conn, loginMsg)
	send(t, conn, cartMsg)
	send(t, conn, `{"type":"detections","detections":[{"bbox":[10,40,100,120],"class_name":"cola","product":{"id":"p1","name":"Cola","price":3.5},"confidence":0.9}]}`)

	require.Eventually(t, func() bool {
		_, boxes, _, ok := f.s.Preview().Latest()
		return ok && len(boxes) == 1
	}, waitFor, tick)

	st := f.s.Status()
	require.NotNil(t, st.User)
	assert.Equal(t, "Ann", st.User.Name)
	assert.True(t, st.FaceDetected)
	assert.Equal(t, 2, st.Cart.TotalQuantity)
	assert.Equal(t, "non-empty", st.CartStatus)

	_, boxes, _, _ := f.s.Preview().Latest()
	assert.Equal(t, "Cola (90%)", boxes[0].Label)
	assert.Equal(t, image.Rect(10, 40, 100, 120), boxes[0].Rect)

	assert.True(t, f.rec.Has(ui.Success, "Welcome back, Ann!"))
	assert.True(t, f.rec.Has(ui.Info, "Added: Cola"))
}

func TestCartSnapshotsReplace(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)

	send(t, conn, cartMsg)
	send(t, conn, `{"type":"cart_update","cart":{"items":[{"product_id":"p2","name":"Chips","unit_price":2,"quantity":1,"subtotal":2}],"total_quantity":1,"total_amount":2}}`)

	require.Eventually(t, func() bool { return f.s.Status().Cart.TotalQuantity == 1 }, waitFor, tick)
	items := f.s.Status().Cart.Items
	require.Len(t, items, 1)
	assert.Equal(t, "Chips", items[0].Name)

	send(t, conn, `{"type":"cart_updated","cart":{"items":[],"total_quantity":0,"total_amount":0}}`)
	require.Eventually(t, func() bool { return f.s.Status().CartStatus == "empty" }, waitFor, tick)
}

func TestBadMessagesDoNotStopDispatch(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)

	send(t, conn, `{not json`)
	send(t, conn, `{"type":"cart_updated","cart":"nope"}`)
	send(t, conn, `{"type":"user_info"}`)
	send(t, conn, `{"type":"mystery"}`)
	send(t, conn, `{"type":"face_status","detected":true}`)

	require.Eventually(t, func() bool { return f.s.Status().FaceDetected }, waitFor, tick)
	assert.Equal(t, channel.Connected, f.s.ChannelState())
	assert.Nil(t, f.s.Status().User)
}

func TestRegisterPromptAndServerError(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)

	send(t, conn, `{"type":"face_detected","action":"register_prompt"}`)
	send(t, conn, `{"type":"error","message":"Face service unavailable"}`)

	require.Eventually(t, func() bool { return f.rec.Has(ui.Error, "Face service unavailable") }, waitFor, tick)
	assert.Equal(t, 1, f.rec.Prompts)
	assert.True(t, f.s.Status().FaceDetected)
}

func TestFramesEmittedWhileConnected(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Emitter.Period = 500 * time.Millisecond })
	f.start(t)
	frame := testJPEG(t, 16, 16)
	f.dev.deliver(frame)

	require.Eventually(t, func() bool { return f.s.Status().Emitting }, waitFor, tick)
	f.clock.Advance(500 * time.Millisecond)

	select {
	case data := <-f.ts.received:
		var msg wire.Frame
		require.NoError(t, json.Unmarshal(data, &msg))
		typ, err := wire.PeekType(data)
		require.NoError(t, err)
		assert.Equal(t, wire.TypeFrame, typ)
		assert.Equal(t, base64.StdEncoding.EncodeToString(frame), msg.Frame)
	case <-time.After(waitFor):
		t.Fatal("no frame received")
	}
}

// nextFrame fires the emitter once and returns what the server received.
func (f *fixture) nextFrame(t *testing.T, period time.Duration) wire.Frame {
	t.Helper()
	require.Eventually(t, func() bool {
		p := f.clock.Pending()
		return len(p) == 1 && p[0] == period
	}, waitFor, tick)
	f.clock.Advance(period)

	select {
	case data := <-f.ts.received:
		typ, err := wire.PeekType(data)
		require.NoError(t, err)
		require.Equal(t, wire.TypeFrame, typ)
		var msg wire.Frame
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(waitFor):
		t.Fatal("no frame received")
		return wire.Frame{}
	}
}

func TestCartFollowsServerAcrossFrames(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Emitter.Period = time.Second })
	conn := f.start(t)
	f.dev.deliver(testJPEG(t, 16, 16))
	require.Eventually(t, func() bool { return f.s.Status().Emitting }, waitFor, tick)

	f.nextFrame(t, time.Second)
	assert.Equal(t, "empty", f.s.Status().CartStatus)

	f.nextFrame(t, time.Second)
	send(t, conn, `{"type":"cart_update","cart":{"items":[{"product_id":"p1","name":"Cola","unit_price":50,"quantity":2,"subtotal":100}],"total_quantity":2,"total_amount":100}}`)
	require.Eventually(t, func() bool { return f.s.Status().CartStatus == "non-empty" }, waitFor, tick)

	want := wire.Cart{
		Items:         []wire.CartItem{{ProductID: "p1", Name: "Cola", UnitPrice: 50, Quantity: 2, Subtotal: 100}},
		TotalQuantity: 2,
		TotalAmount:   100,
	}
	assert.Equal(t, want, f.s.Status().Cart)

	f.nextFrame(t, time.Second)
	time.Sleep(50 * time.Millisecond)
	st := f.s.Status()
	assert.Equal(t, "non-empty", st.CartStatus)
	assert.Equal(t, want, st.Cart)
}

func TestCameraFailureMidStream(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Emitter.Period = time.Second })
	f.start(t)
	f.dev.deliver(testJPEG(t, 16, 16))
	require.Eventually(t, func() bool { return f.s.Status().Emitting }, waitFor, tick)
	f.nextFrame(t, time.Second)

	f.dev.fail(fmt.Errorf("v4l2: %w", syscall.ENODEV))
	require.Eventually(t, func() bool { return f.rec.Has(ui.Error, camera.KindNotFound.Message()) }, waitFor, tick)
	assert.False(t, f.s.CameraRunning())
	assert.False(t, f.s.Status().CameraRunning)

	// The emitter keeps ticking but has nothing to send.
	require.Eventually(t, func() bool { return len(f.clock.Pending()) == 1 }, waitFor, tick)
	f.clock.Advance(time.Second)
	select {
	case data := <-f.ts.received:
		t.Fatalf("stale frame uploaded: %.40s", data)
	case <-time.After(100 * time.Millisecond):
	}

	f.s.Close()
	assert.Equal(t, 1, f.dev.closeCount())
}

func TestReconnectBackoffThenExhausted(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)

	f.ts.reject.Store(true)
	require.NoError(t, conn.Close())

	for attempt := 1; attempt <= 5; attempt++ {
		delay := time.Duration(attempt) * time.Second
		require.Eventually(t, func() bool {
			p := retryPending(f.clock)
			return len(p) == 1 && p[0] == delay
		}, waitFor, tick, "attempt %d", attempt)
		assert.Equal(t, channel.Disconnected, f.s.ChannelState())

		f.clock.Advance(delay)
		require.Eventually(t, func() bool { return f.ts.dials.Load() == int32(1+attempt) }, waitFor, tick)
	}

	require.Eventually(t, func() bool { return f.s.ChannelState() == channel.Exhausted }, waitFor, tick)
	assert.Empty(t, retryPending(f.clock))
	assert.True(t, f.rec.Has(ui.Warning, "Connection interrupted, reconnecting"))
	require.Eventually(t, func() bool { return f.rec.Has(ui.Error, "Connection lost, please reload") }, waitFor, tick)

	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 6, f.ts.dials.Load())
}

func TestReconnectAfterExhaustion(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Channel.MaxAttempts = 1 })
	conn := f.start(t)

	f.ts.reject.Store(true)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(retryPending(f.clock)) == 1 }, waitFor, tick)
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.s.ChannelState() == channel.Exhausted }, waitFor, tick)

	f.ts.reject.Store(false)
	require.NoError(t, f.s.Reconnect(context.Background()))
	require.Eventually(t, func() bool { return f.s.ChannelState() == channel.Connected }, waitFor, tick)
	assert.Zero(t, f.s.Status().Attempts)
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)

	f.ts.reject.Store(true)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(retryPending(f.clock)) == 1 }, waitFor, tick)

	f.s.Close()
	assert.Empty(t, f.clock.Pending())
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.EqualValues(t, 1, f.ts.dials.Load())
	assert.Equal(t, channel.Closed, f.s.ChannelState())
	assert.False(t, f.s.CameraRunning())
	assert.Equal(t, 1, f.dev.closeCount())

	_, err := f.s.Checkout(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCheckoutRequiresUserAndItems(t *testing.T) {
	f := newFixture(t, nil)
	var gotSession atomic.Value
	f.api.CheckoutFunc = func(_ context.Context, sessionID string) (*wire.CheckoutResponse, error) {
		gotSession.Store(sessionID)
		return &wire.CheckoutResponse{Response: wire.Response{Success: true}, TransactionID: "t1", TotalAmount: 7}, nil
	}
	conn := f.start(t)
	ctx := context.Background()

	_, err := f.s.Checkout(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	send(t, conn, loginMsg)
	require.Eventually(t, func() bool { return f.s.Status().User != nil }, waitFor, tick)
	_, err = f.s.Checkout(ctx)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Nil(t, gotSession.Load())

	send(t, conn, cartMsg)
	require.Eventually(t, func() bool { return f.s.Status().Cart.TotalQuantity == 2 }, waitFor, tick)
	resp, err := f.s.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TransactionID)
	assert.Equal(t, "session_test", gotSession.Load())

	// The server owns the cart; it stays until the next snapshot arrives.
	assert.Equal(t, 2, f.s.Status().Cart.TotalQuantity)
	require.Eventually(t, func() bool { return f.rec.Has(ui.Success, "Checkout complete, total 7.00. Thank you!") }, waitFor, tick)
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	f := newFixture(t, nil)
	f.api.CheckoutFunc = func(context.Context, string) (*wire.CheckoutResponse, error) {
		return nil, &api.Error{StatusCode: http.StatusBadRequest, Message: "Payment declined"}
	}
	conn := f.start(t)
	send(t, conn, loginMsg)
	send(t, conn, cartMsg)
	require.Eventually(t, func() bool { return f.s.Status().Cart.TotalQuantity == 2 }, waitFor, tick)

	_, err := f.s.Checkout(context.Background())
	var aerr *api.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 2, f.s.Status().Cart.TotalQuantity)
	require.Eventually(t, func() bool { return f.rec.Has(ui.Error, "Checkout failed: Payment declined") }, waitFor, tick)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)
	send(t, conn, cartMsg)
	require.Eventually(t, func() bool { return f.s.Status().Cart.TotalQuantity == 2 }, waitFor, tick)
	ctx := context.Background()

	assert.ErrorIs(t, f.s.RemoveItem(ctx, 3), cart.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.s.RemoveItem(ctx, -1), cart.ErrIndexOutOfRange)
	require.NoError(t, f.s.RemoveItem(ctx, 0))

	select {
	case data := <-f.ts.received:
		assert.JSONEq(t, `{"type":"cart_remove","index":0}`, string(data))
	case <-time.After(waitFor):
		t.Fatal("no cart_remove received")
	}
	// Nothing changes locally until the server answers.
	assert.Equal(t, 2, f.s.Status().Cart.TotalQuantity)
}

func TestLogoutClearsUserAndCart(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.start(t)
	send(t, conn, loginMsg)
	send(t, conn, cartMsg)
	require.Eventually(t, func() bool { return f.s.Status().Cart.TotalQuantity == 2 }, waitFor, tick)

	require.NoError(t, f.s.Logout(context.Background()))
	st := f.s.Status()
	assert.Nil(t, st.User)
	assert.Equal(t, "empty", st.CartStatus)
	assert.False(t, st.FaceDetected)

	_, err := f.s.History(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRegisterAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	var got wire.RegisterRequest
	f.api.RegisterFunc = func(_ context.Context, req wire.RegisterRequest) (*wire.User, error) {
		got = req
		return &wire.User{ID: "u9", Name: req.Name}, nil
	}
	var historyFor string
	f.api.UserTransactionsFunc = func(_ context.Context, userID string) (*wire.TransactionsResponse, error) {
		historyFor = userID
		return &wire.TransactionsResponse{}, nil
	}
	conn := f.start(t)

	user, err := f.s.Register(context.Background(), "Bo", "5551234")
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)
	assert.Equal(t, wire.RegisterRequest{SessionID: "session_test", Name: "Bo", Phone: "5551234"}, got)

	send(t, conn, loginMsg)
	require.Eventually(t, func() bool { return f.s.Status().User != nil }, waitFor, tick)
	_, err = f.s.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", historyFor)
}

func TestCameraFailureAbortsRun(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.openErr = fs.ErrPermission

	err := f.s.Run(context.Background())
	var cerr *camera.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, camera.KindPermissionDenied, cerr.Kind)
	assert.True(t, f.rec.Has(ui.Error, camera.KindPermissionDenied.Message()))
	assert.Zero(t, f.ts.dials.Load())
	assert.Equal(t, channel.Closed, f.s.ChannelState())

	assert.ErrorIs(t, f.s.Run(context.Background()), ErrClosed)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^session_[0-9a-f-]{36}$`, a)
}
