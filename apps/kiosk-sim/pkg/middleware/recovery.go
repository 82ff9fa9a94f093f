package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// Recovery turns a panicking handler into a 500 with the standard response
// envelope.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("handler panic", "method", r.Method, "path", r.URL.Path,
						"panic", err, "stack", string(debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					response := wire.Response{Success: false, Error: "Internal server error"}
					if encodingErr := json.NewEncoder(w).Encode(response); encodingErr != nil {
						logger.Error("error encoding panic response", "error", encodingErr)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
