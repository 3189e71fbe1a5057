package header

import "encoding/binary"

const (
	udpSrcPort = 0
	udpDstPort = 2
	udpLength  = 4
	udpCksum   = 6

	// UDPMinimumSize is the size of a UDP header.
	UDPMinimumSize = 8
)

// UDPFields contains the fields of a UDP header.
type UDPFields struct {
	SrcPort uint16
	DstPort uint16
	// Length is the length of header plus payload in bytes.
	Length uint16
}

// UDP is a header view over raw bytes.
type UDP []byte

// SourcePort returns the source port.
func (b UDP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[udpSrcPort:])
}

// DestinationPort returns the destination port.
func (b UDP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[udpDstPort:])
}

// Length returns the length of header plus payload in bytes.
func (b UDP) Length() uint16 {
	return binary.BigEndian.Uint16(b[udpLength:])
}

// PayloadLength returns the payload length declared by the header, or 0
// when the length field is shorter than the header itself.
func (b UDP) PayloadLength() int {
	n := int(b.Length())
	if n < UDPMinimumSize {
		return 0
	}
	return n - UDPMinimumSize
}

// Encode writes all the fields of the UDP header. The checksum is left
// zero, meaning "not computed".
func (b UDP) Encode(f *UDPFields) {
	binary.BigEndian.PutUint16(b[udpSrcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[udpDstPort:], f.DstPort)
	binary.BigEndian.PutUint16(b[udpLength:], f.Length)
	binary.BigEndian.PutUint16(b[udpCksum:], 0)
}
