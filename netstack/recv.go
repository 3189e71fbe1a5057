package netstack

import "github.com/romshark/ringstack-go/header"

// Recv blocks until a datagram arrives on the bound port, then copies
// its payload into buf and reports the sender. Payloads longer than
// buf are truncated to len(buf); n is the number of bytes copied.
// Recv returns ErrNotBound if the port is not bound when called or is
// unbound while waiting.
func (s *Stack) Recv(port uint16, buf []byte) (
	n int, srcIP header.IP4, srcPort uint16, err error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pe := s.findPort(port)
	if pe == nil {
		return 0, 0, 0, ErrNotBound
	}
	gen := pe.gen
	for pe.count == 0 {
		pe.ready.Wait()
		if !pe.bound || pe.port != port || pe.gen != gen {
			return 0, 0, 0, ErrNotBound
		}
	}

	pkt := &pe.queue[pe.head]
	n = copy(buf, pkt.data[:pkt.len])
	srcIP = pkt.srcIP
	srcPort = pkt.srcPort
	pe.head = (pe.head + 1) % QueueSize
	pe.count--

	s.delivered.Add(1)
	s.rxBytes.Add(uint64(pkt.len))
	return n, srcIP, srcPort, nil
}
