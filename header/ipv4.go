package header

import "encoding/binary"

const (
	verIHL    = 0
	tos       = 1
	totalLen  = 2
	ipID      = 4
	fragOff   = 6
	ttl       = 8
	protocol  = 9
	ipCksum   = 10
	srcAddr   = 12
	dstAddr   = 16

	// IPv4MinimumSize is the size of an IPv4 header with no options.
	// The stack neither emits nor interprets IP options.
	IPv4MinimumSize = 20
)

// IPv4Fields contains the fields of an IPv4 header.
// Version and header length are fixed at 4 and 20 bytes.
type IPv4Fields struct {
	TotalLength uint16
	TTL         uint8
	Protocol    uint8
	SrcAddr     IP4
	DstAddr     IP4
}

// IPv4 is a header view over raw bytes.
type IPv4 []byte

// Protocol returns the transport protocol number.
func (b IPv4) Protocol() uint8 { return b[protocol] }

// TTL returns the "time to live" field.
func (b IPv4) TTL() uint8 { return b[ttl] }

// TotalLength returns the length of header plus payload in bytes.
func (b IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(b[totalLen:])
}

// HeaderLength returns the header length in bytes as declared by the
// IHL field.
func (b IPv4) HeaderLength() int {
	return int(b[verIHL]&0xf) * 4
}

// SourceAddress returns the source address in host byte order.
func (b IPv4) SourceAddress() IP4 {
	return IP4(binary.BigEndian.Uint32(b[srcAddr:]))
}

// DestinationAddress returns the destination address in host byte order.
func (b IPv4) DestinationAddress() IP4 {
	return IP4(binary.BigEndian.Uint32(b[dstAddr:]))
}

// Checksum returns the header checksum field.
func (b IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[ipCksum:])
}

// SetChecksum writes the header checksum field.
func (b IPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[ipCksum:], v)
}

// CalculateChecksum computes the checksum over the 20 header bytes as
// they currently read. The checksum field itself must be zero first.
func (b IPv4) CalculateChecksum() uint16 {
	return Checksum(b[:IPv4MinimumSize])
}

// Encode writes all the fields of the IPv4 header with a zero checksum;
// callers compute and set the checksum after encoding.
func (b IPv4) Encode(f *IPv4Fields) {
	b[verIHL] = 0x45 // version 4, header length 4*5
	b[tos] = 0
	binary.BigEndian.PutUint16(b[totalLen:], f.TotalLength)
	binary.BigEndian.PutUint16(b[ipID:], 0)
	binary.BigEndian.PutUint16(b[fragOff:], 0)
	b[ttl] = f.TTL
	b[protocol] = f.Protocol
	b.SetChecksum(0)
	binary.BigEndian.PutUint32(b[srcAddr:], uint32(f.SrcAddr))
	binary.BigEndian.PutUint32(b[dstAddr:], uint32(f.DstAddr))
}
