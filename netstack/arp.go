package netstack

import (
	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/header"
)

// arpRx answers the first ARP packet the stack ever sees and ignores
// every later one. The reply claims the local MAC for the local IP
// and is addressed to the query's Ethernet source; its target IP is
// echoed from the query's sender IP. The reply is best effort: if no
// DMA page is free or the transmit ring is full it is dropped and the
// querier must retry.
func (s *Stack) arpRx(buf []byte) {
	if !s.arpSeen.CompareAndSwap(false, true) {
		return
	}

	eth := header.Ethernet(buf)
	query := header.ARP(buf[header.EthernetMinimumSize:])

	page, err := s.mem.AllocPage()
	if err != nil {
		s.txNoMem.Add(1)
		s.log.Warn("arp reply dropped", zap.Error(err))
		return
	}
	n := header.EthernetMinimumSize + header.ARPSize
	reply := s.mem.Bytes(page, n)
	header.Ethernet(reply).Encode(&header.EthernetFields{
		SrcAddr: s.cfg.LocalMAC,
		DstAddr: eth.SourceAddress(),
		Type:    header.EthTypeARP,
	})
	header.ARP(reply[header.EthernetMinimumSize:]).Encode(&header.ARPFields{
		Op:        header.ARPReply,
		SenderMAC: s.cfg.LocalMAC,
		SenderIP:  s.cfg.LocalIP,
		TargetMAC: eth.SourceAddress(),
		TargetIP:  query.SenderIP(),
	})

	if err := s.drv.Transmit(page, n); err != nil {
		s.mem.FreePage(page)
		s.log.Warn("arp reply dropped", zap.Error(err))
		return
	}
	s.arpReplies.Add(1)
	s.log.Info("arp reply sent",
		zap.String("to", eth.SourceAddress().String()),
		zap.String("ip", s.cfg.LocalIP.String()))
	emitter.EmitSync(evtARPReply, s.dev.Name())
}
