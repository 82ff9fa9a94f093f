// Package api is the kiosk's client for the backend's HTTP endpoints:
// face login and registration, checkout, purchase history and the admin
// console.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Harshitk-cp/smartcart/libs/validate"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const maxResponseBytes = 4 << 20

var ErrInvalidRequest = errors.New("invalid request")

// Error is a failed call: either the server answered with success=false or
// a non-2xx status, or the request never completed (StatusCode 0).
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("request failed: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	default:
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Client defines the interface for the backend's HTTP endpoints
type Client interface {
	// Customer
	FaceLogin(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error)
	FaceRegister(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error)
	Register(ctx context.Context, req wire.RegisterRequest) (*wire.User, error)
	Checkout(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error)
	UserInfo(ctx context.Context, userID string) (*wire.User, error)
	UserTransactions(ctx context.Context, userID string) (*wire.TransactionsResponse, error)

	// Admin
	AdminLogin(ctx context.Context, req wire.AdminLoginRequest) error
	AdminUsers(ctx context.Context) ([]wire.AdminUser, error)
	AdminUser(ctx context.Context, userID string) (*wire.AdminUser, error)
	UpdateUser(ctx context.Context, userID string, req wire.UpdateUserRequest) error
	DeleteUser(ctx context.Context, userID string) error
	AdminStats(ctx context.Context) (*wire.Stats, error)
}

// HTTPClient is the JSON-over-HTTP implementation of Client
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "api"),
	}
}

var _ Client = (*HTTPClient)(nil)

// FaceLogin identifies the customer in the request image and logs them into the session.
func (c *HTTPClient) FaceLogin(ctx context.Context, req wire.FaceLoginRequest) (*wire.User, error) {
	var out wire.UserResponse
	if err := c.call(ctx, http.MethodPost, "/api/face-login", req, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// FaceRegister creates a customer from a face image and logs them in.
func (c *HTTPClient) FaceRegister(ctx context.Context, req wire.FaceRegisterRequest) (*wire.User, error) {
	var out wire.UserResponse
	if err := c.call(ctx, http.MethodPost, "/api/face-register", req, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Register signs up the face pending in a session.
func (c *HTTPClient) Register(ctx context.Context, req wire.RegisterRequest) (*wire.User, error) {
	var out wire.UserResponse
	if err := c.call(ctx, http.MethodPost, "/api/register", req, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Checkout settles the session's cart. The kiosk's cart view is not touched
// here; the server pushes the emptied cart over the session channel.
func (c *HTTPClient) Checkout(ctx context.Context, sessionID string) (*wire.CheckoutResponse, error) {
	var out wire.CheckoutResponse
	if err := c.call(ctx, http.MethodPost, "/api/checkout", wire.CheckoutRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserInfo fetches a customer profile.
func (c *HTTPClient) UserInfo(ctx context.Context, userID string) (*wire.User, error) {
	var out wire.UserResponse
	if err := c.call(ctx, http.MethodGet, "/api/user/"+url.PathEscape(userID)+"/info", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// UserTransactions lists a customer's purchases, newest first.
func (c *HTTPClient) UserTransactions(ctx context.Context, userID string) (*wire.TransactionsResponse, error) {
	var out wire.TransactionsResponse
	if err := c.call(ctx, http.MethodGet, "/api/user/"+url.PathEscape(userID)+"/transactions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin checks administrator credentials.
func (c *HTTPClient) AdminLogin(ctx context.Context, req wire.AdminLoginRequest) error {
	var out wire.Response
	return c.call(ctx, http.MethodPost, "/api/admin-login", req, &out)
}

// AdminUsers lists every customer with purchase totals.
func (c *HTTPClient) AdminUsers(ctx context.Context) ([]wire.AdminUser, error) {
	var out wire.AdminUsersResponse
	if err := c.call(ctx, http.MethodGet, "/api/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AdminUser fetches one customer with purchase totals.
func (c *HTTPClient) AdminUser(ctx context.Context, userID string) (*wire.AdminUser, error) {
	var out wire.AdminUserResponse
	if err := c.call(ctx, http.MethodGet, "/api/admin/user/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// UpdateUser changes the non-empty fields of req.
func (c *HTTPClient) UpdateUser(ctx context.Context, userID string, req wire.UpdateUserRequest) error {
	var out wire.Response
	return c.call(ctx, http.MethodPut, "/api/admin/user/"+url.PathEscape(userID), req, &out)
}

// DeleteUser removes a customer and their purchases.
func (c *HTTPClient) DeleteUser(ctx context.Context, userID string) error {
	var out wire.Response
	return c.call(ctx, http.MethodDelete, "/api/admin/user/"+url.PathEscape(userID), nil, &out)
}

// AdminStats returns store-wide totals.
func (c *HTTPClient) AdminStats(ctx context.Context) (*wire.Stats, error) {
	var out wire.StatsResponse
	if err := c.call(ctx, http.MethodGet, "/api/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

// call sends in as JSON (if non-nil), decodes the reply into out and maps
// an unsuccessful envelope to *Error.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		if err := validate.Struct(in); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "error", err)
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("request completed", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	var env wire.Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Reason()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
