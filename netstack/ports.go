package netstack

import "errors"

var (
	// ErrPortTableFull is returned by Bind when all port table slots
	// are taken.
	ErrPortTableFull = errors.New("port table full")

	// ErrNotBound is returned when the port is not bound, or was
	// unbound while a receiver was waiting on it.
	ErrNotBound = errors.New("port not bound")

	// ErrInvalidPort is returned by Bind for port 0.
	ErrInvalidPort = errors.New("invalid port")
)

// Bind reserves a table slot for port, creating an empty datagram
// queue. Binding an already bound port is a no-op.
func (s *Stack) Bind(port uint16) error {
	if port == 0 {
		return ErrInvalidPort
	}

	s.mu.Lock()
	if s.findPort(port) != nil {
		s.mu.Unlock()
		return nil
	}
	var free *portEntry
	for i := range s.ports {
		if !s.ports[i].bound {
			free = &s.ports[i]
			break
		}
	}
	if free == nil {
		s.mu.Unlock()
		return ErrPortTableFull
	}
	free.bound = true
	free.port = port
	free.gen++
	free.head, free.tail, free.count = 0, 0, 0
	s.mu.Unlock()

	emitter.EmitSync(evtPortBound, s.dev.Name(), port)
	return nil
}

// Unbind releases the port, discards any queued datagrams and wakes
// all receivers blocked on it; they return ErrNotBound.
func (s *Stack) Unbind(port uint16) error {
	s.mu.Lock()
	pe := s.findPort(port)
	if pe == nil {
		s.mu.Unlock()
		return ErrNotBound
	}
	pe.bound = false
	pe.port = 0
	pe.head, pe.tail, pe.count = 0, 0, 0
	pe.ready.Broadcast()
	s.mu.Unlock()

	emitter.EmitSync(evtPortUnbound, s.dev.Name(), port)
	return nil
}
