package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop/looptest"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/router"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	reject   atomic.Bool
	// silent peers accept the upgrade and never read again.
	silent atomic.Bool
	dials  atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 16),
		received: make(chan []byte, 64),
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
		ts.conns <- conn
		if ts.silent.Load() {
			return
		}
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

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/session_test"
}

// pump steps the loop until cond holds.
func pump(t *testing.T, l *loop.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		l.RunPending()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func pendingIs(clock *looptest.Clock, want ...time.Duration) func() bool {
	return func() bool {
		got := clock.Pending()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

type fixture struct {
	ts     *testServer
	clock  *looptest.Clock
	loop   *loop.Loop
	ch     *Channel
	states []State
}

func newFixture(t *testing.T, b *router.Builder, cfg Config) *fixture {
	t.Helper()
	if b == nil {
		b = router.NewBuilder()
	}
	r, err := b.Build()
	require.NoError(t, err)

	f := &fixture{ts: newTestServer(t), clock: looptest.NewClock(time.Unix(0, 0))}
	f.loop = loop.New(f.clock)
	cfg.URL = f.ts.wsURL()
	f.ch = New(cfg, f.loop, r, WithStatus(func(s State) { f.states = append(f.states, s) }))
	t.Cleanup(func() { f.ch.Close(); f.loop.RunPending() })
	return f
}

func (f *fixture) connected() bool { return f.ch.State() == Connected }

func TestConnectAndDispatchInOrder(t *testing.T) {
	b := router.NewBuilder()
	var seen []bool
	router.On(b, wire.TypeFaceStatus, func(m wire.FaceStatus) error {
		seen = append(seen, m.Detected)
		return nil
	})
	f := newFixture(t, b, Config{})

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	srv := <-f.ts.conns

	for _, msg := range []string{
		`{"type":"face_status","detected":true}`,
		`{{ not json`,
		`{"type":"pong"}`,
		`{"type":"face_status","detected":"yes"}`,
		`{"type":"face_status","detected":false}`,
	} {
		require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	pump(t, f.loop, func() bool { return len(seen) == 2 })
	assert.Equal(t, []bool{true, false}, seen)
	assert.Equal(t, Connected, f.ch.State())
	assert.Equal(t, []State{Connecting, Connected}, f.states)
}

func TestConnectIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, Config{})

	f.ch.Connect()
	f.ch.Connect()
	pump(t, f.loop, f.connected)
	f.ch.Connect()

	time.Sleep(50 * time.Millisecond)
	f.loop.RunPending()
	assert.EqualValues(t, 1, f.ts.dials.Load())
}

func TestSendDropsWhenNotConnected(t *testing.T) {
	f := newFixture(t, nil, Config{})

	assert.False(t, f.ch.Send(wire.CartRemove{Index: 0}))

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	require.True(t, f.ch.Send(wire.CartRemove{Index: 3}))

	select {
	case data := <-f.ts.received:
		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "cart_remove", got["type"])
		assert.EqualValues(t, 3, got["index"])
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive message")
	}

	select {
	case data := <-f.ts.received:
		t.Fatalf("unexpected extra message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectBackoffIsLinearAndBounded(t *testing.T) {
	f := newFixture(t, nil, Config{BaseDelay: time.Second, MaxAttempts: 5})
	f.ts.reject.Store(true)

	f.ch.Connect()
	for n := 1; n <= 5; n++ {
		delay := time.Duration(n) * time.Second
		pump(t, f.loop, pendingIs(f.clock, delay))
		assert.Equal(t, n, f.ch.Attempts())

		f.clock.Advance(delay - time.Millisecond)
		f.loop.RunPending()
		assert.EqualValues(t, n, f.ts.dials.Load(), "attempt %d fired early", n)
		f.clock.Advance(time.Millisecond)
	}

	pump(t, f.loop, func() bool { return f.ch.State() == Exhausted })
	assert.Empty(t, f.clock.Pending())
	assert.EqualValues(t, 6, f.ts.dials.Load())

	f.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	f.loop.RunPending()
	assert.EqualValues(t, 6, f.ts.dials.Load())
	assert.Equal(t, Exhausted, f.states[len(f.states)-1])

	// A manual connect after giving up starts a fresh budget.
	f.ts.reject.Store(false)
	f.ch.Connect()
	pump(t, f.loop, f.connected)
	assert.Equal(t, 0, f.ch.Attempts())
}

func TestAttemptCounterResetsAfterSuccess(t *testing.T) {
	f := newFixture(t, nil, Config{BaseDelay: time.Second, MaxAttempts: 5})
	f.ts.reject.Store(true)

	f.ch.Connect()
	pump(t, f.loop, pendingIs(f.clock, time.Second))
	f.clock.Advance(time.Second)
	pump(t, f.loop, pendingIs(f.clock, 2*time.Second))

	f.ts.reject.Store(false)
	f.clock.Advance(2 * time.Second)
	pump(t, f.loop, f.connected)
	assert.Equal(t, 0, f.ch.Attempts())

	srv := <-f.ts.conns
	require.NoError(t, srv.Close())

	pump(t, f.loop, pendingIs(f.clock, time.Second))
	assert.Equal(t, 1, f.ch.Attempts())
}

func TestCloseCancelsPendingRetry(t *testing.T) {
	f := newFixture(t, nil, Config{BaseDelay: time.Second})
	f.ts.reject.Store(true)

	f.ch.Connect()
	pump(t, f.loop, pendingIs(f.clock, time.Second))

	f.ch.Close()
	assert.Empty(t, f.clock.Pending())
	assert.Equal(t, Closed, f.ch.State())

	f.clock.Advance(time.Minute)
	f.ch.Connect()
	time.Sleep(20 * time.Millisecond)
	f.loop.RunPending()
	assert.EqualValues(t, 1, f.ts.dials.Load())
	assert.Equal(t, Closed, f.ch.State())
}

func TestCloseStopsDispatch(t *testing.T) {
	b := router.NewBuilder()
	calls := 0
	router.On(b, wire.TypeError, func(wire.Error) error {
		calls++
		return nil
	})
	f := newFixture(t, b, Config{})

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	srv := <-f.ts.conns
	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"late"}`)))
	time.Sleep(50 * time.Millisecond)

	f.ch.Close()
	f.loop.RunPending()
	assert.Zero(t, calls)
}

func TestHeartbeatSendsPing(t *testing.T) {
	f := newFixture(t, nil, Config{HeartbeatInterval: 5 * time.Second})

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	f.clock.Advance(5 * time.Second)
	f.loop.RunPending()

	select {
	case data := <-f.ts.received:
		want := `{"type":"ping","timestamp":"` + f.clock.Now().UTC().Format(wire.TimeLayout) + `"}`
		assert.JSONEq(t, want, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestWriteFailureSchedulesReconnect(t *testing.T) {
	f := newFixture(t, nil, Config{BaseDelay: time.Second, WriteWait: 50 * time.Millisecond})
	f.ts.silent.Store(true)

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	<-f.ts.conns

	frame := wire.Frame{Frame: strings.Repeat("A", 1<<20)}
	sent := 0
	for f.ch.Send(frame) {
		sent++
		require.Less(t, sent, 512, "peer never pushed back")
	}

	pump(t, f.loop, pendingIs(f.clock, time.Second))
	assert.Equal(t, Disconnected, f.ch.State())
	assert.Equal(t, 1, f.ch.Attempts())
	assert.False(t, f.ch.Send(wire.Ping{}))

	f.clock.Advance(time.Second)
	pump(t, f.loop, f.connected)
	assert.EqualValues(t, 2, f.ts.dials.Load())
}

func TestUnansweredPingsDropConnection(t *testing.T) {
	f := newFixture(t, nil, Config{
		BaseDelay:  time.Second,
		PingPeriod: 20 * time.Millisecond,
		PongWait:   150 * time.Millisecond,
	})
	f.ts.silent.Store(true)

	f.ch.Connect()
	pump(t, f.loop, f.connected)
	<-f.ts.conns

	pump(t, f.loop, func() bool { return f.ch.State() == Disconnected })
	assert.Equal(t, []State{Connecting, Connected, Disconnected}, f.states)
	assert.Equal(t, 1, f.ch.Attempts())
}

func TestAnsweredPingsKeepConnection(t *testing.T) {
	f := newFixture(t, nil, Config{
		PingPeriod: 20 * time.Millisecond,
		PongWait:   150 * time.Millisecond,
	})

	f.ch.Connect()
	pump(t, f.loop, f.connected)

	time.Sleep(400 * time.Millisecond)
	f.loop.RunPending()
	assert.Equal(t, Connected, f.ch.State())
}

func TestURL(t *testing.T) {
	tests := []struct {
		base, id, want string
		wantErr        bool
	}{
		{"http://kiosk.local:8000/ws", "session_1", "ws://kiosk.local:8000/ws/session_1", false},
		{"https://kiosk.example.com/ws/", "s2", "wss://kiosk.example.com/ws/s2", false},
		{"wss://kiosk.example.com/ws?x=1", "s3", "wss://kiosk.example.com/ws/s3", false},
		{"ftp://kiosk.example.com/ws", "s4", "", true},
		{"http://kiosk.local/ws", "", "", true},
		{"/ws", "s5", "", true},
	}
	for _, tt := range tests {
		got, err := URL(tt.base, tt.id)
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got)
	}
}
