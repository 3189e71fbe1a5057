package header_test

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/header"
)

func TestMAC(t *testing.T) {
	m, err := header.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)
	assert.Equal(t, header.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}, m)
	assert.Equal(t, "52:54:00:12:34:56", m.String())
	assert.False(t, m.IsBroadcast())
	assert.False(t, m.IsZero())

	assert.True(t, header.BroadcastMAC.IsBroadcast())
	assert.True(t, header.MAC{}.IsZero())

	_, err = header.ParseMAC("not-a-mac")
	assert.Error(t, err)
}

func TestIP4(t *testing.T) {
	ip := header.MakeIP4(10, 0, 2, 15)
	assert.Equal(t, header.IP4(0x0a00020f), ip)
	assert.Equal(t, "10.0.2.15", ip.String())

	parsed, err := header.ParseIP4("10.0.2.15")
	require.NoError(t, err)
	assert.Equal(t, ip, parsed)

	_, err = header.ParseIP4("fe80::1")
	assert.Error(t, err)
	_, err = header.ParseIP4("10.0.2")
	assert.Error(t, err)
}

func TestChecksumKnownVector(t *testing.T) {
	// Worked example from RFC 1071 material: an IPv4 header whose
	// correct checksum is 0xb861.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01,
		0xc0, 0xa8, 0x00, 0xc7,
	}
	assert.Equal(t, uint16(0xb861), header.Checksum(hdr))

	// With the checksum in place the sum over the header is zero.
	hdr[10], hdr[11] = 0xb8, 0x61
	assert.Zero(t, header.Checksum(hdr))
}

func TestChecksumOddLength(t *testing.T) {
	odd := []byte{0x01, 0x02, 0x03}
	padded := []byte{0x01, 0x02, 0x03, 0x00}
	assert.Equal(t, header.Checksum(padded), header.Checksum(odd))
	assert.Equal(t, uint16(0xffff), header.Checksum(nil))
}

func TestEthernetEncode(t *testing.T) {
	src, _ := header.ParseMAC("52:54:00:12:34:56")
	dst, _ := header.ParseMAC("52:55:0a:00:02:02")

	frame := make([]byte, header.EthernetMinimumSize+4)
	eth := header.Ethernet(frame)
	eth.Encode(&header.EthernetFields{
		SrcAddr: src,
		DstAddr: dst,
		Type:    header.EthTypeIP,
	})
	assert.Equal(t, src, eth.SourceAddress())
	assert.Equal(t, dst, eth.DestinationAddress())
	assert.Equal(t, uint16(header.EthTypeIP), eth.Type())
}

func TestIPv4AgainstGopacket(t *testing.T) {
	fields := header.IPv4Fields{
		TotalLength: 40,
		TTL:         100,
		Protocol:    header.IPProtoUDP,
		SrcAddr:     header.MakeIP4(10, 0, 2, 15),
		DstAddr:     header.MakeIP4(10, 0, 2, 2),
	}
	hdr := make(header.IPv4, header.IPv4MinimumSize)
	hdr.Encode(&fields)
	hdr.SetChecksum(hdr.CalculateChecksum())

	ref := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Length:   40,
		TTL:      100,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 2, 15},
		DstIP:    net.IP{10, 0, 2, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, ref.SerializeTo(buf, gopacket.SerializeOptions{
		ComputeChecksums: true,
	}))
	assert.Equal(t, buf.Bytes(), []byte(hdr),
		"encoded header must match the reference encoder byte for byte")

	assert.Equal(t, uint16(40), hdr.TotalLength())
	assert.Equal(t, header.IPv4MinimumSize, hdr.HeaderLength())
	assert.Equal(t, uint8(100), hdr.TTL())
	assert.Equal(t, fields.SrcAddr, hdr.SourceAddress())
	assert.Equal(t, fields.DstAddr, hdr.DestinationAddress())
}

func TestUDPDatagramParse(t *testing.T) {
	payload := []byte("hello")
	src, _ := header.ParseMAC("52:54:00:12:34:56")
	dst, _ := header.ParseMAC("52:55:0a:00:02:02")

	frame := make([]byte, header.UDPDatagramOverhead+len(payload))
	header.Ethernet(frame).Encode(&header.EthernetFields{
		SrcAddr: src,
		DstAddr: dst,
		Type:    header.EthTypeIP,
	})
	ip := header.IPv4(frame[header.EthernetMinimumSize:])
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(header.IPv4MinimumSize + header.UDPMinimumSize + len(payload)),
		TTL:         100,
		Protocol:    header.IPProtoUDP,
		SrcAddr:     header.MakeIP4(10, 0, 2, 15),
		DstAddr:     header.MakeIP4(10, 0, 2, 2),
	})
	ip.SetChecksum(ip.CalculateChecksum())
	udp := header.UDP(frame[header.EthernetMinimumSize+header.IPv4MinimumSize:])
	udp.Encode(&header.UDPFields{
		SrcPort: 2000,
		DstPort: 26999,
		Length:  uint16(header.UDPMinimumSize + len(payload)),
	})
	copy(frame[header.UDPDatagramOverhead:], payload)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer(), "frame must decode cleanly")

	ethL, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, net.HardwareAddr(src[:]), ethL.SrcMAC)
	assert.Equal(t, net.HardwareAddr(dst[:]), ethL.DstMAC)
	assert.Equal(t, layers.EthernetTypeIPv4, ethL.EthernetType)

	ipL, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.True(t, ipL.SrcIP.Equal(net.IP{10, 0, 2, 15}))
	assert.True(t, ipL.DstIP.Equal(net.IP{10, 0, 2, 2}))
	assert.Equal(t, uint8(100), ipL.TTL)

	udpL, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(2000), udpL.SrcPort)
	assert.Equal(t, layers.UDPPort(26999), udpL.DstPort)
	assert.Equal(t, payload, udpL.Payload)

	assert.Equal(t, 26999, int(udp.DestinationPort()))
	assert.Equal(t, len(payload), udp.PayloadLength())
}

func TestUDPPayloadLength(t *testing.T) {
	b := make(header.UDP, header.UDPMinimumSize)
	b.Encode(&header.UDPFields{SrcPort: 1, DstPort: 2, Length: 8 + 5})
	assert.Equal(t, 5, b.PayloadLength())

	// A length field shorter than the header itself yields no payload.
	b.Encode(&header.UDPFields{SrcPort: 1, DstPort: 2, Length: 3})
	assert.Zero(t, b.PayloadLength())
}

func TestARPAgainstGopacket(t *testing.T) {
	sender, _ := header.ParseMAC("52:55:0a:00:02:02")

	pkt := make(header.ARP, header.ARPSize)
	pkt.Encode(&header.ARPFields{
		Op:        header.ARPRequest,
		SenderMAC: sender,
		SenderIP:  header.MakeIP4(10, 0, 2, 2),
		TargetMAC: header.MAC{},
		TargetIP:  header.MakeIP4(10, 0, 2, 15),
	})
	require.True(t, pkt.IsValid())
	assert.Equal(t, uint16(header.ARPRequest), pkt.Op())
	assert.Equal(t, sender, pkt.SenderMAC())
	assert.Equal(t, header.MakeIP4(10, 0, 2, 2), pkt.SenderIP())
	assert.True(t, pkt.TargetMAC().IsZero())
	assert.Equal(t, header.MakeIP4(10, 0, 2, 15), pkt.TargetIP())

	dec := gopacket.NewPacket(pkt, layers.LayerTypeARP, gopacket.Default)
	require.Nil(t, dec.ErrorLayer())
	arpL, ok := dec.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	assert.Equal(t, layers.LinkTypeEthernet, arpL.AddrType)
	assert.Equal(t, layers.EthernetTypeIPv4, arpL.Protocol)
	assert.Equal(t, uint8(6), arpL.HwAddressSize)
	assert.Equal(t, uint8(4), arpL.ProtAddressSize)
	assert.Equal(t, uint16(header.ARPRequest), arpL.Operation)
	assert.Equal(t, sender[:], arpL.SourceHwAddress)
	assert.Equal(t, []byte{10, 0, 2, 2}, arpL.SourceProtAddress)
	assert.Equal(t, []byte{10, 0, 2, 15}, arpL.DstProtAddress)
}

func TestARPIsValid(t *testing.T) {
	assert.False(t, header.ARP(nil).IsValid())
	assert.False(t, header.ARP(make([]byte, header.ARPSize-1)).IsValid())

	pkt := make(header.ARP, header.ARPSize)
	pkt.Encode(&header.ARPFields{Op: header.ARPReply})
	assert.True(t, pkt.IsValid())

	pkt[0] = 0xff // wrong hardware type
	assert.False(t, pkt.IsValid())
}
