package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/metrics"
)

type recorder struct {
	mu           sync.Mutex
	connected    []string
	messages     []string
	disconnected chan string
	hub          *Hub
}

func (r *recorder) Connected(id string) {
	r.mu.Lock()
	r.connected = append(r.connected, id)
	r.mu.Unlock()
}

// HandleMessage echoes every message back to the session.
func (r *recorder) HandleMessage(id string, data []byte) {
	r.mu.Lock()
	r.messages = append(r.messages, string(data))
	r.mu.Unlock()
	r.hub.Send(id, data)
}

func (r *recorder) Disconnected(id string) { r.disconnected <- id }

func testConfig() Config {
	return Config{
		MaxMessageSize: 1 << 20,
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		SendBuffer:     8,
	}
}

func startHub(t *testing.T) (*Hub, *recorder, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.Nop{})
	go h.Run(ctx)

	rec := &recorder{disconnected: make(chan string, 4), hub: h}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := h.Register(conn, strings.TrimPrefix(r.URL.Path, "/"), rec); err != nil {
			conn.Close()
		}
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, rec, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubEchoesThroughSession(t *testing.T) {
	h, rec, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/kiosk_1", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := `{"type":"ping"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, msg, string(data))

	assert.True(t, h.Connected("kiosk_1"))
	assert.Equal(t, 1, h.Sessions())
	rec.mu.Lock()
	assert.Equal(t, []string{"kiosk_1"}, rec.connected)
	rec.mu.Unlock()
}

func TestHubUnregistersOnClose(t *testing.T) {
	h, rec, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/kiosk_2", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Connected("kiosk_2") }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	select {
	case id := <-rec.disconnected:
		assert.Equal(t, "kiosk_2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.Eventually(t, func() bool { return !h.Connected("kiosk_2") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.Send("kiosk_2", []byte(`{"type":"pong"}`)))
}

func TestRegisterAfterStop(t *testing.T) {
	h := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := h.Register(nil, "kiosk_3", &recorder{})
	assert.ErrorIs(t, err, ErrStopped)
}
