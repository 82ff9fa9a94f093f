// Package router maps inbound session messages to typed handlers.
//
// Handlers are registered on a Builder while the session is being assembled;
// the resulting Router is immutable. Dispatch never lets a malformed message
// or a failing handler escape: every problem comes back as an error value for
// the caller to log.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

var (
	ErrUnknownType      = errors.New("no handler registered for message type")
	ErrDuplicateHandler = errors.New("handler already registered")
)

// DecodeError means the message could not be parsed.
type DecodeError struct {
	Type wire.Type
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerError wraps a failure (or recovered panic) inside a handler.
type HandlerError struct {
	Type  wire.Type
	Err   error
	Panic bool
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("handler for %s panicked: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("handler for %s: %v", e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type handlerFunc func(raw []byte) error

// Builder collects handlers before the session starts.
type Builder struct {
	handlers map[wire.Type]handlerFunc
	err      error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{handlers: make(map[wire.Type]handlerFunc)}
}

// On registers fn for messages of type t, decoding the payload into T.
// Registering the same type twice is an error reported by Build.
func On[T any](b *Builder, t wire.Type, fn func(T) error) {
	b.add(t, func(raw []byte) error {
		var msg T
		if err := json.Unmarshal(raw, &msg); err != nil {
			return &DecodeError{Type: t, Err: err}
		}
		return fn(msg)
	}, false)
}

// Replace registers fn for t, overriding any earlier registration.
func Replace[T any](b *Builder, t wire.Type, fn func(T) error) {
	b.add(t, func(raw []byte) error {
		var msg T
		if err := json.Unmarshal(raw, &msg); err != nil {
			return &DecodeError{Type: t, Err: err}
		}
		return fn(msg)
	}, true)
}

func (b *Builder) add(t wire.Type, h handlerFunc, replace bool) {
	if _, exists := b.handlers[t]; exists && !replace {
		if b.err == nil {
			b.err = fmt.Errorf("%w: %s", ErrDuplicateHandler, t)
		}
		return
	}
	b.handlers[t] = h
}

// Build freezes the registrations.
func (b *Builder) Build() (*Router, error) {
	if b.err != nil {
		return nil, b.err
	}
	handlers := make(map[wire.Type]handlerFunc, len(b.handlers))
	for t, h := range b.handlers {
		handlers[t] = h
	}
	return &Router{handlers: handlers}, nil
}

// Router dispatches raw messages. It is safe for concurrent use but the
// session only ever calls it from its loop.
type Router struct {
	handlers map[wire.Type]handlerFunc
}

// Dispatch decodes raw and invokes at most one handler synchronously. It
// returns the message type (empty if it could not be read) and any error.
func (r *Router) Dispatch(raw []byte) (t wire.Type, err error) {
	t, err = wire.PeekType(raw)
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	h, ok := r.handlers[t]
	if !ok {
		return t, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Type: t, Err: fmt.Errorf("%v", p), Panic: true}
		}
	}()

	if err := h(raw); err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return t, err
		}
		return t, &HandlerError{Type: t, Err: err}
	}
	return t, nil
}

// Types lists the registered message types in sorted order.
func (r *Router) Types() []wire.Type {
	out := make([]wire.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
