package header

import "encoding/binary"

const (
	dstMAC  = 0
	srcMAC  = 6
	ethType = 12

	// EthernetMinimumSize is the size of an Ethernet frame header.
	EthernetMinimumSize = 14
)

// EthernetFields contains the fields of an Ethernet frame header.
type EthernetFields struct {
	SrcAddr MAC
	DstAddr MAC
	Type    uint16
}

// Ethernet is a frame header view over raw bytes.
type Ethernet []byte

// SourceAddress returns the "MAC source" field.
func (b Ethernet) SourceAddress() (m MAC) {
	copy(m[:], b[srcMAC:])
	return m
}

// DestinationAddress returns the "MAC destination" field.
func (b Ethernet) DestinationAddress() (m MAC) {
	copy(m[:], b[dstMAC:])
	return m
}

// Type returns the "ethertype" field.
func (b Ethernet) Type() uint16 {
	return binary.BigEndian.Uint16(b[ethType:])
}

// Encode writes all the fields of the Ethernet frame header.
func (b Ethernet) Encode(e *EthernetFields) {
	copy(b[dstMAC:][:6], e.DstAddr[:])
	copy(b[srcMAC:][:6], e.SrcAddr[:])
	binary.BigEndian.PutUint16(b[ethType:], e.Type)
}
