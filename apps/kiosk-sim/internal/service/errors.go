package service

import (
	"errors"
	"net/http"
)

// Error is a failure reported to HTTP callers with a status code and a
// customer-facing reason.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

var (
	ErrSessionNotFound = newError(http.StatusBadRequest, "Session not found")
	ErrNotLoggedIn     = newError(http.StatusBadRequest, "Customer is not logged in")
	ErrEmptyCart       = newError(http.StatusBadRequest, "Cart is empty")
	ErrNoPendingFace   = newError(http.StatusBadRequest, "No face is waiting to be registered")
	ErrUserNotFound    = newError(http.StatusNotFound, "User not found")
	ErrPhoneTaken      = newError(http.StatusBadRequest, "Phone number already registered")
	ErrBadCredentials  = newError(http.StatusUnauthorized, "Wrong username or password")
	ErrBadImage        = newError(http.StatusBadRequest, "Unable to parse image")
	ErrBadBirthday     = newError(http.StatusBadRequest, "Birthday must be YYYY-MM-DD")

	// A recognition miss is an ordinary outcome, reported with 200 and
	// success=false.
	ErrUnknownFace = newError(http.StatusOK, "Customer not recognised, please register first")
)

func invalidRequest(err error) *Error {
	return newError(http.StatusBadRequest, "Invalid request: "+err.Error())
}

// StatusCode maps err to an HTTP status; unknown errors are internal.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
