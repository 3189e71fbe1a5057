package nic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/nic"
)

func TestRegsWriteHook(t *testing.T) {
	type write struct {
		reg int
		val uint32
	}
	var seen []write
	r := nic.NewRegs(func(reg int, val uint32) {
		seen = append(seen, write{reg, val})
	})

	r.Write(nic.RegTDT, 5)
	assert.Equal(t, uint32(5), r.Read(nic.RegTDT))

	r.Poke(nic.RegTDH, 3)
	assert.Equal(t, uint32(3), r.Read(nic.RegTDH))

	require.Len(t, seen, 1, "Poke must not fire the hook")
	assert.Equal(t, write{nic.RegTDT, 5}, seen[0])
}

func TestRegsNilHook(t *testing.T) {
	r := nic.NewRegs(nil)
	r.Write(nic.RegIMS, nic.ICRRxDW)
	assert.Equal(t, uint32(nic.ICRRxDW), r.Read(nic.RegIMS))
}

func TestRegsICRWriteOneToClear(t *testing.T) {
	r := nic.NewRegs(nil)
	r.Or(nic.RegICR, nic.ICRRxDW|0x2)

	r.Write(nic.RegICR, nic.ICRRxDW)
	assert.Equal(t, uint32(0x2), r.Read(nic.RegICR),
		"only the written bits may clear")

	r.Write(nic.RegICR, ^uint32(0))
	assert.Zero(t, r.Read(nic.RegICR))
}

func TestRegsOrAnd(t *testing.T) {
	r := nic.NewRegs(nil)

	old := r.Or(nic.RegCTL, nic.CTLReset)
	assert.Zero(t, old)
	assert.Equal(t, uint32(nic.CTLReset), r.Read(nic.RegCTL))

	old = r.And(nic.RegCTL, ^uint32(nic.CTLReset))
	assert.Equal(t, uint32(nic.CTLReset), old)
	assert.Zero(t, r.Read(nic.RegCTL))
}

func TestTxDescLayout(t *testing.T) {
	ring := make([]byte, 2*nic.DescSize)
	d := nic.TxDescAt(ring, 1)
	d.SetAddr(0x1122334455667788)
	d.SetLength(0xABCD)
	d.SetCmd(nic.TxCmdEOP | nic.TxCmdRS)
	d.SetStatus(nic.StatDD)

	assert.Equal(t, make([]byte, nic.DescSize), ring[:nic.DescSize],
		"slot 0 must be untouched")
	assert.Equal(t,
		[]byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11},
		ring[16:24], "buffer address is little-endian at offset 0")
	assert.Equal(t, []byte{0xCD, 0xAB}, ring[24:26],
		"length is little-endian at offset 8")
	assert.Equal(t, byte(nic.TxCmdEOP|nic.TxCmdRS), ring[16+11],
		"command byte at offset 11")

	assert.Equal(t, uint64(0x1122334455667788), d.Addr())
	assert.Equal(t, uint16(0xABCD), d.Length())
	assert.Equal(t, byte(nic.TxCmdEOP|nic.TxCmdRS), d.Cmd())
	assert.Equal(t, byte(nic.StatDD), d.Status())
}

func TestRxDescRoundTrip(t *testing.T) {
	ring := make([]byte, 4*nic.DescSize)
	d := nic.RxDescAt(ring, 2)
	d.SetAddr(4096)
	d.SetLength(60)
	d.SetStatus(nic.StatDD | nic.StatEOP)

	assert.Equal(t, uint64(4096), d.Addr())
	assert.Equal(t, uint16(60), d.Length())
	assert.Equal(t, byte(nic.StatDD|nic.StatEOP), d.Status())

	d.SetStatus(0)
	assert.Zero(t, d.Status())
	assert.Equal(t, uint64(4096), d.Addr(),
		"status store must not disturb other fields")
	assert.Equal(t, uint16(60), d.Length())
}
