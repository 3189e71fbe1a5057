package header

import (
	"fmt"
	"net"
)

// MAC is an Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is the all-ones Ethernet address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// IsBroadcast reports whether m is the broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsZero reports whether m is the unspecified all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// ParseMAC parses a textual EUI-48 address such as "52:54:00:12:34:56".
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("not a 6-byte hardware address: %q", s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// IP4 is an IPv4 address in host byte order.
type IP4 uint32

// MakeIP4 composes an address from its dotted-quad octets.
func MakeIP4(a, b, c, d byte) IP4 {
	return IP4(a)<<24 | IP4(b)<<16 | IP4(c)<<8 | IP4(d)
}

func (ip IP4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ParseIP4 parses a dotted-quad address such as "10.0.2.15".
func ParseIP4(s string) (IP4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address: %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return MakeIP4(v4[0], v4[1], v4[2], v4[3]), nil
}
