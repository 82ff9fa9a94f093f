package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/overlay"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/session"
	"github.com/Harshitk-cp/smartcart/libs/health"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

type fakeSource struct {
	status  session.Status
	preview *overlay.LatestSurface
}

func (f *fakeSource) Status() session.Status          { return f.status }
func (f *fakeSource) Preview() *overlay.LatestSurface { return f.preview }

func newTestHandler(t *testing.T, src *fakeSource) (http.Handler, *bytes.Buffer) {
	t.Helper()
	checker := health.NewChecker(time.Second)
	checker.Register("channel", health.Bool(func() bool { return src.status.Channel == "connected" }, nil))
	checker.CheckNow(context.Background())

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "kiosk_frames_emitted_total 3\n")
	})
	var access bytes.Buffer
	h := NewHTTPHandler(src, checker, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h.Router(&access), &access
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{
		status: session.Status{
			SessionID:  "session_1",
			Channel:    "connected",
			User:       &wire.User{ID: "u1", Name: "Ann"},
			CartStatus: "non-empty",
			Cart:       wire.Cart{TotalQuantity: 2, TotalAmount: 7},
		},
		preview: &overlay.LatestSurface{},
	}
	h, access := newTestHandler(t, src)

	rec := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "session_1", got.SessionID)
	assert.Equal(t, 2, got.Cart.TotalQuantity)
	assert.Equal(t, "Ann", got.User.Name)
	assert.Contains(t, access.String(), "GET /status")
}

func TestHealthAndMetrics(t *testing.T) {
	src := &fakeSource{status: session.Status{Channel: "connected"}, preview: &overlay.LatestSurface{}}
	h, _ := newTestHandler(t, src)

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	assert.Contains(t, get(t, h, "/metrics").Body.String(), "kiosk_frames_emitted_total")

	down := &fakeSource{status: session.Status{Channel: "exhausted"}, preview: &overlay.LatestSurface{}}
	h, _ = newTestHandler(t, down)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/health").Code)
}

func TestPreview(t *testing.T) {
	surface := &overlay.LatestSurface{}
	src := &fakeSource{preview: surface}
	h, _ := newTestHandler(t, src)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/preview.jpg").Code)
	rec := get(t, h, "/preview/boxes")
	assert.JSONEq(t, `{"boxes":[]}`, rec.Body.String())

	surface.Present(image.NewRGBA(image.Rect(0, 0, 32, 24)), []overlay.Box{{
		Rect:      image.Rect(1, 30, 20, 40),
		LabelRect: image.Rect(1, 5, 30, 30),
		Label:     "Cola",
	}})

	rec = get(t, h, "/preview.jpg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	img, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	rec = get(t, h, "/preview/boxes")
	var boxes struct {
		Boxes []struct {
			Label string `json:"label"`
			Rect  [4]int `json:"rect"`
		} `json:"boxes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &boxes))
	require.Len(t, boxes.Boxes, 1)
	assert.Equal(t, "Cola", boxes.Boxes[0].Label)
	assert.Equal(t, [4]int{1, 30, 20, 40}, boxes.Boxes[0].Rect)
}

func TestUnknownRoute(t *testing.T) {
	src := &fakeSource{preview: &overlay.LatestSurface{}}
	h, _ := newTestHandler(t, src)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}
