package vnic

import (
	"io"

	"github.com/romshark/ringstack-go/events"
)

var emitter = events.NewEmitter()

const (
	evtDeviceUp     = "DeviceUp"
	evtDeviceClosed = "DeviceClosed"
)

// OnDeviceUp registers a callback for when a device starts serving.
func OnDeviceUp(cb func(name string)) io.Closer {
	return emitter.On(evtDeviceUp, cb)
}

// OnDeviceClosed registers a callback for when a device shuts down.
func OnDeviceClosed(cb func(name string)) io.Closer {
	return emitter.On(evtDeviceClosed, cb)
}
