//go:build !cgo || nogst

package main

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
)

// Built without GStreamer: only the dir driver can capture.
func captureDevice() camera.Device {
	return noCapture{}
}

type noCapture struct{}

func (noCapture) Open(context.Context, camera.Constraints, camera.Sink) error {
	return &camera.Error{
		Kind: camera.KindNotFound,
		Err:  errors.New("built without GStreamer support, use camera.driver: dir"),
	}
}

func (noCapture) Close() error { return nil }
