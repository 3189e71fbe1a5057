package dma_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/dma"
)

func TestNewAligned(t *testing.T) {
	m, err := dma.New(8)
	require.NoError(t, err)

	b := m.Bytes(0, dma.PageSize)
	assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%dma.PageSize)
	assert.Equal(t, 8*dma.PageSize, m.Size())
	assert.Equal(t, 7, m.FreePages()) // page 0 reserved
}

func TestNewDefaults(t *testing.T) {
	m, err := dma.New(0)
	require.NoError(t, err)
	assert.Equal(t, dma.DefaultPages*dma.PageSize, m.Size())

	_, err = dma.New(1)
	assert.Error(t, err)
}

func TestAllocFreeCycle(t *testing.T) {
	m, err := dma.New(4)
	require.NoError(t, err)

	seen := map[uint64]bool{}
	var addrs []uint64
	for i := 0; i < 3; i++ {
		addr, err := m.AllocPage()
		require.NoError(t, err)
		assert.NotZero(t, addr, "page 0 must never be handed out")
		assert.Zero(t, addr%dma.PageSize)
		assert.False(t, seen[addr], "pages must not be handed out twice")
		seen[addr] = true
		addrs = append(addrs, addr)
	}

	_, err = m.AllocPage()
	assert.ErrorIs(t, err, dma.ErrNoMemory)

	for _, addr := range addrs {
		m.FreePage(addr)
	}
	assert.Equal(t, 3, m.FreePages())

	// The pool must be fully reusable after a free.
	addr, err := m.AllocPage()
	require.NoError(t, err)
	m.FreePage(addr)
}

func TestFreePagePanics(t *testing.T) {
	m, err := dma.New(4)
	require.NoError(t, err)

	addr, err := m.AllocPage()
	require.NoError(t, err)
	m.FreePage(addr)

	assert.Panics(t, func() { m.FreePage(addr) }, "double free")
	assert.Panics(t, func() { m.FreePage(addr + 1) }, "misaligned")
	assert.Panics(t, func() { m.FreePage(0) }, "reserved page")
	assert.Panics(t, func() { m.FreePage(1 << 40) }, "out of range")
}

func TestBytesBounds(t *testing.T) {
	m, err := dma.New(4)
	require.NoError(t, err)

	addr, err := m.AllocPage()
	require.NoError(t, err)

	b := m.Bytes(addr, dma.PageSize)
	assert.Len(t, b, dma.PageSize)
	b[0] = 0xAA
	assert.Equal(t, byte(0xAA), m.Bytes(addr, 1)[0])

	assert.Panics(t, func() { m.Bytes(uint64(m.Size()), 1) })
	assert.Panics(t, func() { m.Bytes(addr, dma.PageSize*8) })
}

func TestContains(t *testing.T) {
	m, err := dma.New(4)
	require.NoError(t, err)

	assert.True(t, m.Contains(0, m.Size()))
	assert.True(t, m.Contains(dma.PageSize, 64))
	assert.False(t, m.Contains(uint64(m.Size()), 1))
	assert.False(t, m.Contains(uint64(m.Size())-1, 2))
	assert.False(t, m.Contains(^uint64(0), 16), "wrap-around must not pass")
	assert.False(t, m.Contains(0, -1))
}
