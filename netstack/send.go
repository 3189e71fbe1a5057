package netstack

import (
	"errors"
	"fmt"

	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
)

// ErrTooLong is returned by Send when headers plus payload exceed one
// DMA page.
var ErrTooLong = errors.New("datagram too long")

// datagramTTL is the time-to-live of every outbound datagram.
const datagramTTL = 100

// Send transmits payload as a UDP datagram from sport to dst:dport,
// framed to the configured gateway MAC. The UDP checksum is left
// zero; the IP header checksum is computed. Send does not block: a
// full transmit ring surfaces as an error wrapping driver.ErrNoTxDesc.
func (s *Stack) Send(sport uint16, dst header.IP4, dport uint16, payload []byte) error {
	total := header.UDPDatagramOverhead + len(payload)
	if total > dma.PageSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(payload))
	}

	page, err := s.mem.AllocPage()
	if err != nil {
		s.txNoMem.Add(1)
		return fmt.Errorf("allocating frame page: %w", err)
	}
	frame := s.mem.Bytes(page, dma.PageSize)
	clear(frame)

	header.Ethernet(frame).Encode(&header.EthernetFields{
		SrcAddr: s.cfg.LocalMAC,
		DstAddr: s.cfg.GatewayMAC,
		Type:    header.EthTypeIP,
	})
	ip := header.IPv4(frame[header.EthernetMinimumSize:])
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(header.IPv4MinimumSize + header.UDPMinimumSize + len(payload)),
		TTL:         datagramTTL,
		Protocol:    header.IPProtoUDP,
		SrcAddr:     s.cfg.LocalIP,
		DstAddr:     dst,
	})
	ip.SetChecksum(ip.CalculateChecksum())
	header.UDP(frame[header.EthernetMinimumSize+header.IPv4MinimumSize:]).Encode(
		&header.UDPFields{
			SrcPort: sport,
			DstPort: dport,
			Length:  uint16(header.UDPMinimumSize + len(payload)),
		})
	copy(frame[header.UDPDatagramOverhead:], payload)

	if err := s.drv.Transmit(page, total); err != nil {
		s.mem.FreePage(page)
		if errors.Is(err, driver.ErrNoTxDesc) {
			s.txNoDesc.Add(1)
		}
		return fmt.Errorf("transmitting datagram: %w", err)
	}
	s.txDatagrams.Add(1)
	s.txBytes.Add(uint64(len(payload)))
	return nil
}
