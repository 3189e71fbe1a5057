package netstack

import (
	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/header"
)

// HandleFrame classifies one received frame and hands it to the ARP
// responder or the UDP receive path. It owns the frame's DMA page and
// frees it on every path. This is the driver's upward delivery hook
// and runs on the interrupt (device service) goroutine.
func (s *Stack) HandleFrame(page uint64, n int) {
	defer s.mem.FreePage(page)

	// Header fields are read through the full page window, so a frame
	// shorter than the lengths its headers declare yields stale page
	// bytes rather than an out-of-range access. The guards below only
	// ensure the fixed headers themselves were received.
	buf := s.mem.Bytes(page, dma.PageSize)
	eth := header.Ethernet(buf)

	switch {
	case eth.Type() == header.EthTypeARP &&
		n >= header.EthernetMinimumSize+header.ARPSize:
		s.arpRx(buf)
	case eth.Type() == header.EthTypeIP &&
		n >= header.EthernetMinimumSize+header.IPv4MinimumSize:
		s.udpRx(buf)
	default:
		s.rxUnhandled.Add(1)
	}
}

// udpRx delivers one IP frame into the bound port's queue, dropping
// it if the protocol is not UDP, the declared payload does not fit a
// queue slot, no port is bound or the queue is full. The UDP checksum
// is not verified.
func (s *Stack) udpRx(buf []byte) {
	ip := header.IPv4(buf[header.EthernetMinimumSize:])
	if ip.Protocol() != header.IPProtoUDP {
		s.rxUnhandled.Add(1)
		return
	}
	udp := header.UDP(buf[header.EthernetMinimumSize+header.IPv4MinimumSize:])
	plen := int(udp.Length()) - header.UDPMinimumSize
	if plen < 0 || plen > MaxPayload {
		s.rxUnhandled.Add(1)
		return
	}
	payload := buf[header.UDPDatagramOverhead:][:plen]

	s.mu.Lock()
	defer s.mu.Unlock()

	pe := s.findPort(udp.DestinationPort())
	if pe == nil {
		s.rxNoPort.Add(1)
		return
	}
	if pe.count == QueueSize {
		s.rxQueueFull.Add(1)
		return
	}
	pkt := &pe.queue[pe.tail]
	copy(pkt.data[:], payload)
	pkt.len = plen
	pkt.srcIP = ip.SourceAddress()
	pkt.srcPort = udp.SourcePort()
	pe.tail = (pe.tail + 1) % QueueSize
	pe.count++
	pe.ready.Signal()
}
