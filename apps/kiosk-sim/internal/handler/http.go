package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/service"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const maxBodyBytes = 16 << 20

// Store is the part of the service the HTTP API exposes.
type Store interface {
	Health(ctx context.Context) (*service.Health, error)
	Products() []wire.Product
	FaceLogin(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error)
	FaceRegister(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error)
	Register(ctx context.Context, req wire.RegisterRequest) (*wire.User, error)
	Checkout(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error)
	UserInfo(ctx context.Context, userID string) (*wire.User, error)
	UserTransactions(ctx context.Context, userID string) (*wire.TransactionsResponse, error)
	AdminLogin(req wire.AdminLoginRequest) error
	AdminUsers(ctx context.Context) ([]wire.AdminUser, error)
	AdminUser(ctx context.Context, userID string) (*wire.AdminUser, error)
	UpdateUser(ctx context.Context, userID string, req wire.UpdateUserRequest) error
	DeleteUser(ctx context.Context, userID string) error
	Stats(ctx context.Context) (*wire.Stats, error)
}

type productsResponse struct {
	wire.Response
	Products []wire.Product `json:"products"`
	Count    int            `json:"count"`
}

// HTTPHandler serves the store API
type HTTPHandler struct {
	store  Store
	logger *slog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(store Store, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{store: store, logger: logger}
}

// SetupRoutes sets up the HTTP routes. They hang off the root router so a
// wrong method on a known path answers 405 instead of 404.
func (h *HTTPHandler) SetupRoutes(router *mux.Router) {
	api := func(path string, fn http.HandlerFunc, method string) {
		router.HandleFunc("/api"+path, fn).Methods(method)
	}

	api("/health", h.health, http.MethodGet)
	api("/products", h.products, http.MethodGet)

	api("/face-login", h.faceLogin, http.MethodPost)
	api("/face-register", h.faceRegister, http.MethodPost)
	api("/register", h.register, http.MethodPost)
	api("/checkout", h.checkout, http.MethodPost)

	api("/user/{id}/info", h.userInfo, http.MethodGet)
	api("/user/{id}/transactions", h.userTransactions, http.MethodGet)

	api("/admin-login", h.adminLogin, http.MethodPost)
	api("/admin/users", h.adminUsers, http.MethodGet)
	api("/admin/stats", h.adminStats, http.MethodGet)
	api("/admin/user/{id}", h.adminUser, http.MethodGet)
	api("/admin/user/{id}", h.updateUser, http.MethodPut)
	api("/admin/user/{id}", h.deleteUser, http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusNotFound, wire.Response{Detail: "Not Found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, wire.Response{Detail: "Method Not Allowed"})
	})
}

func (h *HTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	health, err := h.store.Health(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, health)
}

func (h *HTTPHandler) products(w http.ResponseWriter, r *http.Request) {
	products := h.store.Products()
	respondWithJSON(w, http.StatusOK, productsResponse{
		Response: wire.Response{Success: true},
		Products: products,
		Count:    len(products),
	})
}

func (h *HTTPHandler) faceLogin(w http.ResponseWriter, r *http.Request) {
	var req wire.FaceLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.store.FaceLogin(r.Context(), req)
	h.respondWithUser(w, user, "Login successful", err)
}

func (h *HTTPHandler) faceRegister(w http.ResponseWriter, r *http.Request) {
	var req wire.FaceRegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.store.FaceRegister(r.Context(), req)
	h.respondWithUser(w, user, "Registration successful", err)
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.store.Register(r.Context(), req)
	h.respondWithUser(w, user, "", err)
}

func (h *HTTPHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req wire.CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.store.Checkout(r.Context(), req.SessionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) userInfo(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.UserInfo(r.Context(), mux.Vars(r)["id"])
	h.respondWithUser(w, user, "", err)
}

func (h *HTTPHandler) userTransactions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.store.UserTransactions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req wire.AdminLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.AdminLogin(req); err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.Response{Success: true, Message: "Administrator login successful"})
}

func (h *HTTPHandler) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.AdminUsers(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.AdminUsersResponse{
		Response: wire.Response{Success: true},
		Users:    users,
		Count:    len(users),
	})
}

func (h *HTTPHandler) adminUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.AdminUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.AdminUserResponse{Response: wire.Response{Success: true}, User: user})
}

func (h *HTTPHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req wire.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateUser(r.Context(), mux.Vars(r)["id"], req); err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.Response{Success: true, Message: "User updated"})
}

func (h *HTTPHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.Response{Success: true, Message: "User deleted"})
}

func (h *HTTPHandler) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.StatsResponse{Response: wire.Response{Success: true}, Stats: *stats})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respondWithJSON(w, http.StatusBadRequest, wire.Response{Detail: fmt.Sprintf("invalid request: %v", err)})
		return false
	}
	return true
}

func (h *HTTPHandler) respondWithUser(w http.ResponseWriter, user *wire.User, message string, err error) {
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wire.UserResponse{
		Response: wire.Response{Success: true, Message: message},
		User:     user,
	})
}

// respondWithError writes the failure envelope. Ordinary outcomes (status
// 200) carry their reason in message, HTTP errors in detail.
func (h *HTTPHandler) respondWithError(w http.ResponseWriter, err error) {
	status := service.StatusCode(err)

	var e *service.Error
	if !errors.As(err, &e) {
		h.logger.Error("request failed", "error", err)
		respondWithJSON(w, status, wire.Response{Error: "Internal server error"})
		return
	}
	if status == http.StatusOK {
		respondWithJSON(w, status, wire.Response{Message: e.Message})
		return
	}
	respondWithJSON(w, status, wire.Response{Detail: e.Message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
