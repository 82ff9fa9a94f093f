//go:build cgo && !nogst

package main

import (
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/camera/gstdevice"
)

func captureDevice() camera.Device {
	return gstdevice.New(logger)
}
