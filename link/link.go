// Package link provides wire endpoints a device plugs into: an
// in-process loopback, cross-connected pipe pairs, a pcap capture tee
// and, on Linux, a TAP interface.
package link

import (
	"io"
	"sync"

	"github.com/romshark/ringstack-go/vnic"
)

var (
	_ vnic.Endpoint = (*Loopback)(nil)
	_ vnic.Endpoint = (*PipeEnd)(nil)
)

// Loopback is a wire that hands every written frame straight back to
// its own device.
type Loopback struct {
	mu      sync.Mutex
	deliver func([]byte)
	closed  bool
}

// NewLoopback returns an unattached loopback wire.
func NewLoopback() *Loopback { return &Loopback{} }

// Attach registers the inbound delivery callback.
func (l *Loopback) Attach(deliver func(frame []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliver = deliver
}

// WriteFrame loops the frame back to the attached device. Frames
// written before Attach or after Close are dropped.
func (l *Loopback) WriteFrame(frame []byte) error {
	l.mu.Lock()
	deliver, closed := l.deliver, l.closed
	l.mu.Unlock()
	if closed || deliver == nil {
		return nil
	}
	deliver(frame)
	return nil
}

// Close shuts the wire down.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Pipe returns the two ends of a cross-connected wire: frames written
// to one end are delivered to the device attached at the other.
func Pipe() (*PipeEnd, *PipeEnd) {
	a, b := &PipeEnd{}, &PipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one end of a Pipe. An unattached or closed peer drops
// frames, wire-like.
type PipeEnd struct {
	peer *PipeEnd

	mu      sync.Mutex
	deliver func([]byte)
	closed  bool
}

// Attach registers the inbound delivery callback.
func (e *PipeEnd) Attach(deliver func(frame []byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deliver = deliver
}

// WriteFrame carries the frame over to the peer end.
func (e *PipeEnd) WriteFrame(frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	e.peer.receive(frame)
	return nil
}

func (e *PipeEnd) receive(frame []byte) {
	e.mu.Lock()
	deliver, closed := e.deliver, e.closed
	e.mu.Unlock()
	if closed || deliver == nil {
		return
	}
	deliver(frame)
}

// Close shuts this end down. The peer end keeps working and its
// writes are silently discarded.
func (e *PipeEnd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
