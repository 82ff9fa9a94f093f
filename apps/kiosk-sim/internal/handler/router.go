package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/config"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/pkg/middleware"
)

// Routes bundles what the router serves.
type Routes struct {
	Config    *config.Config
	API       *HTTPHandler
	WebSocket *WebSocketHandler
	Metrics   http.Handler
	Registry  prometheus.Registerer
	Logger    *slog.Logger
	AccessLog io.Writer
}

// NewRouter builds the full handler chain: recovery and request metrics on
// every route, then CORS and access logging around the router.
func NewRouter(rt Routes) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(rt.Logger))
	if rt.Registry != nil {
		router.Use(middleware.Metrics(rt.Registry))
	}

	router.Handle(rt.Config.WebSocket.Path+"/{"+SessionVar+"}", rt.WebSocket)
	if rt.Metrics != nil {
		router.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}
	rt.API.SetupRoutes(router)

	var h http.Handler = router
	if rt.Config.HTTP.EnableCORS {
		h = handlers.CORS(
			handlers.AllowedOrigins(rt.Config.HTTP.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
		)(h)
	}
	if rt.AccessLog != nil {
		h = handlers.LoggingHandler(rt.AccessLog, h)
	}
	return h
}
