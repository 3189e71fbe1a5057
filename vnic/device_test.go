package vnic_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/nic"
	"github.com/romshark/ringstack-go/vnic"
)

var (
	localMAC = header.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	peerMAC  = header.MAC{0x52, 0x55, 0x0a, 0x00, 0x02, 0x02}
)

// stubWire records outbound frames and lets tests inject inbound ones.
type stubWire struct {
	mu      sync.Mutex
	sent    [][]byte
	deliver func([]byte)
}

func (w *stubWire) Attach(deliver func([]byte)) { w.deliver = deliver }

func (w *stubWire) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, frame)
	return nil
}

func (w *stubWire) Close() error { return nil }

func (w *stubWire) inject(frame []byte) {
	if w.deliver != nil {
		w.deliver(frame)
	}
}

func (w *stubWire) frames() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.sent...)
}

// frame builds a minimal test frame addressed to dst.
func frame(dst header.MAC, payload string) []byte {
	b := make([]byte, header.EthernetMinimumSize+len(payload))
	header.Ethernet(b).Encode(&header.EthernetFields{
		SrcAddr: peerMAC,
		DstAddr: dst,
		Type:    header.EthTypeIP,
	})
	copy(b[header.EthernetMinimumSize:], payload)
	return b
}

type machine struct {
	mem  *dma.Mem
	wire *stubWire
	dev  *vnic.Device
	drv  *driver.Driver

	mu       sync.Mutex
	received [][]byte
}

// newMachine assembles memory, device and driver. If wireInterrupt is
// set, receive interrupts drive the driver drain, landing frames in
// m.received; otherwise interrupts are discarded and the test drains
// by hand.
func newMachine(t *testing.T, pages int, wireInterrupt bool) *machine {
	t.Helper()
	m := &machine{wire: &stubWire{}}

	var err error
	m.mem, err = dma.New(pages)
	require.NoError(t, err)
	m.dev, err = vnic.New(m.mem, vnic.Config{}, m.wire)
	require.NoError(t, err)
	m.drv, err = driver.Attach(m.mem, m.dev.Regs(), driver.Config{MAC: localMAC},
		func(page uint64, n int) {
			data := append([]byte(nil), m.mem.Bytes(page, n)...)
			m.mem.FreePage(page)
			m.mu.Lock()
			m.received = append(m.received, data)
			m.mu.Unlock()
		})
	require.NoError(t, err)
	if wireInterrupt {
		m.dev.SetInterrupt(m.drv.Interrupt)
	} else {
		m.dev.SetInterrupt(func() {})
	}
	m.dev.Start()
	t.Cleanup(func() { _ = m.dev.Close() })
	return m
}

func (m *machine) receivedFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func TestDeviceTransmit(t *testing.T) {
	m := newMachine(t, 64, true)

	want := frame(peerMAC, "over the wire")
	page, err := m.mem.AllocPage()
	require.NoError(t, err)
	copy(m.mem.Bytes(page, len(want)), want)
	require.NoError(t, m.drv.Transmit(page, len(want)))

	require.Eventually(t, func() bool {
		return len(m.wire.frames()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, m.wire.frames()[0])
	assert.Equal(t, uint64(1), m.dev.TxFrames())
	assert.Equal(t, uint64(len(want)), m.dev.TxBytes())

	require.Eventually(t, func() bool {
		return m.dev.Regs().Read(nic.RegTDH) == 1
	}, time.Second, time.Millisecond)
}

func TestDeviceInterruptDelivery(t *testing.T) {
	m := newMachine(t, 64, true)

	want := frame(localMAC, "knock knock")
	m.wire.inject(want)

	require.Eventually(t, func() bool {
		return len(m.receivedFrames()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, m.receivedFrames()[0])
	assert.Equal(t, uint64(1), m.dev.RxFrames())
	assert.Equal(t, uint64(1), m.drv.RxFrames())
}

func TestDeviceMACFilter(t *testing.T) {
	m := newMachine(t, 64, true)

	m.wire.inject(frame(header.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, "not for us"))
	require.Eventually(t, func() bool {
		return m.dev.RxFiltered() == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, m.receivedFrames())

	m.wire.inject(frame(header.BroadcastMAC, "hear ye"))
	m.wire.inject(frame(localMAC, "direct"))
	require.Eventually(t, func() bool {
		return len(m.receivedFrames()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), m.dev.RxFiltered())
}

func TestDeviceOversizeFrame(t *testing.T) {
	m := newMachine(t, 64, true)

	huge := frame(localMAC, string(make([]byte, 2500)))
	m.wire.inject(huge)
	require.Eventually(t, func() bool {
		return m.dev.RxOversize() == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, m.receivedFrames())
	assert.Zero(t, m.dev.RxFrames())
}

func TestDeviceRingOverrun(t *testing.T) {
	m := newMachine(t, 64, false)

	for i := 0; i < 20; i++ {
		m.wire.inject(frame(localMAC, fmt.Sprintf("frame-%02d", i)))
	}
	// 16 descriptors minus the stall slot leave room for 15 frames.
	require.Eventually(t, func() bool {
		return m.dev.RxMissed() == 5
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(15), m.dev.RxFrames())

	m.drv.Interrupt()
	got := m.receivedFrames()
	require.Len(t, got, 15)
	for i, f := range got {
		assert.Equal(t, fmt.Sprintf("frame-%02d", i),
			string(f[header.EthernetMinimumSize:]), "early frames stay intact")
	}
}

func TestDeviceReceiverDisabled(t *testing.T) {
	mem, err := dma.New(64)
	require.NoError(t, err)
	wire := &stubWire{}
	dev, err := vnic.New(mem, vnic.Config{Name: "bare"}, wire)
	require.NoError(t, err)
	dev.Start()
	t.Cleanup(func() { _ = dev.Close() })

	wire.inject(frame(localMAC, "nobody listening"))
	require.Eventually(t, func() bool {
		return dev.RxFiltered() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, dev.RxFrames())
}

func TestDeviceEvents(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(ev string) func(string) {
		return func(name string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev+":"+name)
		}
	}
	defer vnic.OnDeviceUp(record("up")).Close()
	defer vnic.OnDeviceClosed(record("closed")).Close()

	mem, err := dma.New(8)
	require.NoError(t, err)
	dev, err := vnic.New(mem, vnic.Config{Name: "evt0"}, &stubWire{})
	require.NoError(t, err)

	dev.Start()
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close(), "close is idempotent")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"up:evt0", "closed:evt0"}, got)
}
