package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Kind classifies why a capture device could not be acquired.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindNotFound
	KindBusy
	KindOverconstrained
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	case KindOverconstrained:
		return "overconstrained"
	default:
		return "unknown"
	}
}

// Message is the text shown to the kiosk user.
func (k Kind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Please allow access to the camera"
	case KindNotFound:
		return "Camera device not found"
	case KindBusy:
		return "The camera is in use by another program"
	case KindOverconstrained:
		return "The camera cannot satisfy the requested format"
	default:
		return "Cannot access the camera"
	}
}

// Error is a classified device acquisition failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err in an *Error, inferring the kind from well-known errors
// and, failing that, from the message text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var kind Kind
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, syscall.EBUSY):
		kind = KindBusy
	default:
		kind = ClassifyMessage(err.Error())
	}
	return &Error{Kind: kind, Err: err}
}

// ClassifyMessage maps driver error text to a Kind. Checks run from the most
// specific category to the least.
func ClassifyMessage(parts ...string) Kind {
	text := strings.ToLower(strings.Join(parts, " "))
	switch {
	case containsAny(text, "permission denied", "not permitted", "access denied", "not authorized"):
		return KindPermissionDenied
	case containsAny(text, "busy", "in use", "resource temporarily unavailable"):
		return KindBusy
	case containsAny(text, "not-negotiated", "not negotiated", "negotiation", "caps", "unsupported resolution", "invalid format"):
		return KindOverconstrained
	case containsAny(text, "no such file", "no such device", "not found", "does not exist", "cannot identify device"):
		return KindNotFound
	default:
		return KindUnknown
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
