package header

import "encoding/binary"

const (
	arpHrd = 0
	arpPro = 2
	arpHln = 4
	arpPln = 5
	arpOp  = 6
	arpSHA = 8
	arpSIP = 14
	arpTHA = 18
	arpTIP = 24

	// ARPSize is the size of an ARP packet for Ethernet/IPv4.
	ARPSize = 28

	// ARPRequest and ARPReply are the two operation codes the stack
	// understands.
	ARPRequest = 1
	ARPReply   = 2

	arpHrdEthernet = 1
)

// ARPFields contains the fields of an Ethernet/IPv4 ARP packet.
type ARPFields struct {
	Op        uint16
	SenderMAC MAC
	SenderIP  IP4
	TargetMAC MAC
	TargetIP  IP4
}

// ARP is a packet view over raw bytes.
type ARP []byte

// IsValid reports whether the packet declares Ethernet hardware and
// IPv4 protocol addressing.
func (b ARP) IsValid() bool {
	if len(b) < ARPSize {
		return false
	}
	return binary.BigEndian.Uint16(b[arpHrd:]) == arpHrdEthernet &&
		binary.BigEndian.Uint16(b[arpPro:]) == EthTypeIP &&
		b[arpHln] == 6 && b[arpPln] == 4
}

// Op returns the operation code.
func (b ARP) Op() uint16 { return binary.BigEndian.Uint16(b[arpOp:]) }

// SenderMAC returns the sender hardware address.
func (b ARP) SenderMAC() (m MAC) {
	copy(m[:], b[arpSHA:])
	return m
}

// SenderIP returns the sender protocol address in host byte order.
func (b ARP) SenderIP() IP4 {
	return IP4(binary.BigEndian.Uint32(b[arpSIP:]))
}

// TargetMAC returns the target hardware address.
func (b ARP) TargetMAC() (m MAC) {
	copy(m[:], b[arpTHA:])
	return m
}

// TargetIP returns the target protocol address in host byte order.
func (b ARP) TargetIP() IP4 {
	return IP4(binary.BigEndian.Uint32(b[arpTIP:]))
}

// Encode writes all the fields of the ARP packet.
func (b ARP) Encode(f *ARPFields) {
	binary.BigEndian.PutUint16(b[arpHrd:], arpHrdEthernet)
	binary.BigEndian.PutUint16(b[arpPro:], EthTypeIP)
	b[arpHln] = 6
	b[arpPln] = 4
	binary.BigEndian.PutUint16(b[arpOp:], f.Op)
	copy(b[arpSHA:], f.SenderMAC[:])
	binary.BigEndian.PutUint32(b[arpSIP:], uint32(f.SenderIP))
	copy(b[arpTHA:], f.TargetMAC[:])
	binary.BigEndian.PutUint32(b[arpTIP:], uint32(f.TargetIP))
}
