// Package handler serves the kiosk's local status endpoints.
package handler

import (
	"encoding/json"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/overlay"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/session"
	"github.com/Harshitk-cp/smartcart/libs/health"
)

const previewQuality = 85

// StatusSource is the part of the session the status server reads.
type StatusSource interface {
	Status() session.Status
	Preview() *overlay.LatestSurface
}

// HTTPHandler handles status requests
type HTTPHandler struct {
	source  StatusSource
	checker *health.Checker
	metrics http.Handler
	logger  *slog.Logger
}

// NewHTTPHandler creates a new HTTP handler. A nil metrics handler leaves
// /metrics unrouted.
func NewHTTPHandler(source StatusSource, checker *health.Checker, metrics http.Handler, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		source:  source,
		checker: checker,
		metrics: metrics,
		logger:  logger.With("component", "status-server"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *HTTPHandler) SetupRoutes(r *mux.Router) {
	r.Handle("/health", h.checker.HTTPHandler()).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/preview.jpg", h.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/preview/boxes", h.handleBoxes).Methods(http.MethodGet)
}

// Router returns the routes wrapped with access logging to w, panic
// recovery and response compression.
func (h *HTTPHandler) Router(w io.Writer) http.Handler {
	r := mux.NewRouter()
	h.SetupRoutes(r)

	var chain http.Handler = r
	chain = handlers.CompressHandler(chain)
	chain = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{h.logger}))(chain)
	return handlers.LoggingHandler(w, chain)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.source.Status())
}

func (h *HTTPHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	img, _, updatedAt, ok := h.source.Preview().Latest()
	if !ok {
		http.Error(w, "no overlay rendered yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		h.logger.Warn("encode preview", "error", err)
	}
}

type boxJSON struct {
	Label     string `json:"label"`
	Rect      [4]int `json:"rect"`
	LabelRect [4]int `json:"label_rect"`
}

func (h *HTTPHandler) handleBoxes(w http.ResponseWriter, r *http.Request) {
	_, boxes, updatedAt, ok := h.source.Preview().Latest()
	out := struct {
		Boxes     []boxJSON  `json:"boxes"`
		UpdatedAt *time.Time `json:"updated_at,omitempty"`
	}{Boxes: make([]boxJSON, 0, len(boxes))}
	if ok {
		out.UpdatedAt = &updatedAt
	}
	for _, b := range boxes {
		out.Boxes = append(out.Boxes, boxJSON{
			Label:     b.Label,
			Rect:      [4]int{b.Rect.Min.X, b.Rect.Min.Y, b.Rect.Max.X, b.Rect.Max.Y},
			LabelRect: [4]int{b.LabelRect.Min.X, b.LabelRect.Min.Y, b.LabelRect.Max.X, b.LabelRect.Max.Y},
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

type recoveryLogger struct{ logger *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic in status handler", "panic", v)
}
