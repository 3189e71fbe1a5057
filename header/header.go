// Package header provides the Ethernet, IPv4, UDP and ARP wire formats
// used by the stack, plus the address types shared across its layers.
//
// All header views are defined over raw frame bytes in network byte
// order; the process-facing types (MAC, IP4) hold host-order values.
package header

const (
	// EthTypeIP is the Ethertype of IPv4.
	EthTypeIP = 0x0800
	// EthTypeARP is the Ethertype of ARP.
	EthTypeARP = 0x0806

	// IPProtoUDP is the IPv4 protocol number of UDP.
	IPProtoUDP = 17
)

// UDPDatagramOverhead is the number of header bytes wrapped around a UDP
// payload on the wire.
const UDPDatagramOverhead = EthernetMinimumSize + IPv4MinimumSize + UDPMinimumSize
