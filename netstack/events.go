package netstack

import (
	"io"

	"github.com/romshark/ringstack-go/events"
)

var emitter = events.NewEmitter()

const (
	evtPortBound   = "PortBound"
	evtPortUnbound = "PortUnbound"
	evtARPReply    = "ARPReply"
)

// OnPortBound registers a callback for when a port is bound.
func OnPortBound(cb func(dev string, port uint16)) io.Closer {
	return emitter.On(evtPortBound, cb)
}

// OnPortUnbound registers a callback for when a port is unbound.
func OnPortUnbound(cb func(dev string, port uint16)) io.Closer {
	return emitter.On(evtPortUnbound, cb)
}

// OnARPReply registers a callback for the one ARP reply a stack sends.
func OnARPReply(cb func(dev string)) io.Closer {
	return emitter.On(evtARPReply, cb)
}
