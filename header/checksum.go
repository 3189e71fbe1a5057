package header

import "encoding/binary"

// Checksum computes the RFC 1071 one's-complement checksum over buf:
// 16-bit big-endian words are summed into a 32-bit accumulator, an odd
// trailing byte is padded on the right, carries are folded back and the
// result inverted. Placing the result into the checksummed region makes
// a recomputation over it yield zero.
func Checksum(buf []byte) uint16 {
	var sum uint32
	for len(buf) > 1 {
		sum += uint32(binary.BigEndian.Uint16(buf))
		buf = buf[2:]
	}
	if len(buf) > 0 {
		sum += uint32(buf[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
