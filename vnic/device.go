// Package vnic models the adapter itself: a virtual 82540-style NIC
// that serves the descriptor rings the driver programs, copies frames
// between DMA memory and a link endpoint and raises receive interrupts.
//
// The device runs a single service goroutine, its "silicon". That
// goroutine alone advances the head registers and invokes the
// interrupt callback, so the callback executes outside any caller
// context, like a real interrupt handler.
package vnic

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/logging"
	"github.com/romshark/ringstack-go/nic"
)

// rxBufferSize is the only receive buffer size the device supports,
// matching the RCTL size-2048 selector the driver programs.
const rxBufferSize = 2048

// DefaultQueueDepth is the default capacity of the inbound frame
// queue between the wire and the service goroutine.
const DefaultQueueDepth = 64

// Endpoint is one end of the wire a device is plugged into.
//
// WriteFrame takes ownership of the frame slice. Attach registers the
// deliver callback for inbound frames, which likewise hands ownership
// to the callee. Endpoints are a best-effort medium and may drop
// frames silently.
type Endpoint interface {
	Attach(deliver func(frame []byte))
	WriteFrame(frame []byte) error
	Close() error
}

// Config configures a virtual device.
type Config struct {
	// Name identifies the device in logs and events.
	Name string

	// QueueDepth is the capacity of the inbound frame queue.
	QueueDepth int
}

// ValidateAndSetDefaults validates the configuration and
// sets default values where applicable.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Name == "" {
		c.Name = "nic0"
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("queue depth out of range: %d", c.QueueDepth)
	}
	return nil
}

// Device is a virtual adapter bound to one endpoint.
type Device struct {
	log  *zap.Logger
	name string
	mem  *dma.Mem
	regs *nic.Regs
	ep   Endpoint
	intr func()

	doorbell chan struct{}
	inbound  chan []byte
	quit     chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error

	txFrames  atomic.Uint64
	txBytes   atomic.Uint64
	txBadDesc atomic.Uint64
	rxFrames  atomic.Uint64
	rxBytes   atomic.Uint64
	rxMissed  atomic.Uint64
	rxFilter  atomic.Uint64
	rxOversz  atomic.Uint64
	rxOverrun atomic.Uint64
	rxBadDesc atomic.Uint64
}

// New builds a device plugged into ep. The device is inert until
// Start; its register file is available immediately so a driver can
// be attached first.
func New(mem *dma.Mem, cfg Config, ep Endpoint) (*Device, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if ep == nil {
		return nil, errors.New("endpoint required")
	}
	d := &Device{
		log:      logging.New("vnic").With(zap.String("dev", cfg.Name)),
		name:     cfg.Name,
		mem:      mem,
		ep:       ep,
		doorbell: make(chan struct{}, 1),
		inbound:  make(chan []byte, cfg.QueueDepth),
		quit:     make(chan struct{}),
	}
	d.regs = nic.NewRegs(d.mmioWrite)
	return d, nil
}

// Regs returns the device's register file, the block a driver attaches
// to.
func (d *Device) Regs() *nic.Regs { return d.regs }

// Name returns the configured device name.
func (d *Device) Name() string { return d.name }

// SetInterrupt installs the interrupt callback, the device's line to
// the CPU. It is invoked on the service goroutine and must be set
// before Start.
func (d *Device) SetInterrupt(fn func()) { d.intr = fn }

// Start attaches to the endpoint and brings up the service goroutine.
func (d *Device) Start() {
	d.startOnce.Do(func() {
		d.ep.Attach(d.deliverInbound)
		d.wg.Add(1)
		go d.run()
		emitter.EmitSync(evtDeviceUp, d.name)
		d.log.Info("device up")
	})
}

// Close stops the service goroutine and closes the endpoint.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
		d.wg.Wait()
		d.closeErr = d.ep.Close()
		emitter.EmitSync(evtDeviceClosed, d.name)
		d.log.Info("device closed")
	})
	return d.closeErr
}

// mmioWrite observes driver-side register writes. A TDT store is the
// transmit doorbell; a CTL store with the reset bit set resets the
// device.
func (d *Device) mmioWrite(reg int, val uint32) {
	switch reg {
	case nic.RegTDT:
		select {
		case d.doorbell <- struct{}{}:
		default:
		}
	case nic.RegCTL:
		if val&nic.CTLReset != 0 {
			d.reset()
		}
	}
}

// reset clears the device-owned register state and the RST bit. The
// driver only resets before enabling traffic, so running on the
// writer's goroutine cannot race the rings.
func (d *Device) reset() {
	for _, reg := range []int{
		nic.RegICR, nic.RegIMS, nic.RegTCTL, nic.RegRCTL,
		nic.RegTDBAL, nic.RegTDLEN, nic.RegTDH, nic.RegTDT,
		nic.RegRDBAL, nic.RegRDLEN, nic.RegRDH, nic.RegRDT,
	} {
		d.regs.Poke(reg, 0)
	}
	d.regs.And(nic.RegCTL, ^uint32(nic.CTLReset))
}

// deliverInbound accepts a frame from the endpoint. It never blocks
// the wire; frames beyond the queue capacity are dropped.
func (d *Device) deliverInbound(frame []byte) {
	select {
	case d.inbound <- frame:
	default:
		d.rxOverrun.Add(1)
	}
}

func (d *Device) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case <-d.doorbell:
			d.serviceTX()
		case frame := <-d.inbound:
			wrote := d.serviceRX(frame)
			// Drain whatever else is already queued so one interrupt
			// covers the whole burst.
			for more := true; more; {
				select {
				case f := <-d.inbound:
					if d.serviceRX(f) {
						wrote = true
					}
				default:
					more = false
				}
			}
			if wrote {
				d.raiseRxInterrupt()
			}
		}
	}
}

func (d *Device) raiseRxInterrupt() {
	d.regs.Or(nic.RegICR, nic.ICRRxDW)
	if d.regs.Read(nic.RegIMS)&nic.ICRRxDW != 0 && d.intr != nil {
		d.intr()
	}
}

// serviceTX consumes descriptors from TDH up to TDT, writing each
// frame to the endpoint and completing the descriptor.
func (d *Device) serviceTX() {
	tdlen := d.regs.Read(nic.RegTDLEN)
	if tdlen < nic.DescSize || d.regs.Read(nic.RegTCTL)&nic.TCTLEnable == 0 {
		return
	}
	base := uint64(d.regs.Read(nic.RegTDBAL))
	if !d.mem.Contains(base, int(tdlen)) {
		return
	}
	ring := d.mem.Bytes(base, int(tdlen))
	capacity := tdlen / nic.DescSize

	// The tail is snapshotted once, clamped into the ring, so a pass
	// is bounded even against a garbage TDT. A store racing this pass
	// re-kicks the doorbell and is picked up by the next one.
	head := d.regs.Read(nic.RegTDH)
	tail := d.regs.Read(nic.RegTDT) % capacity
	for head != tail {
		desc := nic.TxDescAt(ring, int(head))
		addr, n := desc.Addr(), int(desc.Length())
		if n > 0 && d.mem.Contains(addr, n) {
			frame := make([]byte, n)
			copy(frame, d.mem.Bytes(addr, n))
			d.txFrames.Add(1)
			d.txBytes.Add(uint64(n))
			if err := d.ep.WriteFrame(frame); err != nil {
				d.log.Debug("endpoint write failed", zap.Error(err))
			}
		} else {
			d.txBadDesc.Add(1)
		}
		if desc.Cmd()&nic.TxCmdRS != 0 {
			desc.SetStatus(nic.StatDD)
		}
		head = (head + 1) % capacity
		d.regs.Poke(nic.RegTDH, head)
	}
}

// serviceRX accepts one frame from the wire into the receive ring.
// It reports whether a descriptor was written back.
func (d *Device) serviceRX(frame []byte) bool {
	rctl := d.regs.Read(nic.RegRCTL)
	if rctl&nic.RCTLEnable == 0 || len(frame) < header.EthernetMinimumSize {
		d.rxFilter.Add(1)
		return false
	}

	var dst header.MAC
	copy(dst[:], frame)
	switch {
	case dst.IsBroadcast():
		if rctl&nic.RCTLBroadcast == 0 {
			d.rxFilter.Add(1)
			return false
		}
	case d.isLocalMAC(dst):
	default:
		d.rxFilter.Add(1)
		return false
	}

	if len(frame) > rxBufferSize {
		d.rxOversz.Add(1)
		return false
	}

	rdlen := d.regs.Read(nic.RegRDLEN)
	if rdlen < nic.DescSize {
		d.rxMissed.Add(1)
		return false
	}
	base := uint64(d.regs.Read(nic.RegRDBAL))
	if !d.mem.Contains(base, int(rdlen)) {
		d.rxBadDesc.Add(1)
		return false
	}
	ring := d.mem.Bytes(base, int(rdlen))
	capacity := rdlen / nic.DescSize

	// Hardware owns (RDH..RDT] and stalls when the head catches the
	// tail, losing frames until software returns descriptors.
	head := d.regs.Read(nic.RegRDH)
	if head == d.regs.Read(nic.RegRDT) {
		d.rxMissed.Add(1)
		return false
	}
	desc := nic.RxDescAt(ring, int(head))
	addr := desc.Addr()
	if !d.mem.Contains(addr, len(frame)) {
		d.rxBadDesc.Add(1)
		return false
	}
	copy(d.mem.Bytes(addr, len(frame)), frame)
	desc.SetLength(uint16(len(frame)))
	desc.SetStatus(nic.StatDD | nic.StatEOP)
	d.regs.Poke(nic.RegRDH, (head+1)%capacity)

	d.rxFrames.Add(1)
	d.rxBytes.Add(uint64(len(frame)))
	return true
}

// isLocalMAC checks dst against the receive-address filter.
func (d *Device) isLocalMAC(dst header.MAC) bool {
	ral := d.regs.Read(nic.RegRA)
	rah := d.regs.Read(nic.RegRA + 1)
	if rah&(1<<31) == 0 {
		return false
	}
	return dst == header.MAC{
		byte(ral), byte(ral >> 8), byte(ral >> 16), byte(ral >> 24),
		byte(rah), byte(rah >> 8),
	}
}

// TxFrames returns the number of frames the device read off the ring.
func (d *Device) TxFrames() uint64 { return d.txFrames.Load() }

// TxBytes returns the number of frame bytes the device read off the ring.
func (d *Device) TxBytes() uint64 { return d.txBytes.Load() }

// TxBadDesc returns the number of malformed transmit descriptors skipped.
func (d *Device) TxBadDesc() uint64 { return d.txBadDesc.Load() }

// RxFrames returns the number of frames written into the receive ring.
func (d *Device) RxFrames() uint64 { return d.rxFrames.Load() }

// RxBytes returns the number of frame bytes written into the receive ring.
func (d *Device) RxBytes() uint64 { return d.rxBytes.Load() }

// RxMissed returns the number of frames lost to a full or unprogrammed
// receive ring.
func (d *Device) RxMissed() uint64 { return d.rxMissed.Load() }

// RxFiltered returns the number of frames the receiver refused:
// receiver disabled, runt frame or address filter mismatch.
func (d *Device) RxFiltered() uint64 { return d.rxFilter.Load() }

// RxOversize returns the number of frames too large for a receive buffer.
func (d *Device) RxOversize() uint64 { return d.rxOversz.Load() }

// RxOverrun returns the number of frames dropped at the inbound queue.
func (d *Device) RxOverrun() uint64 { return d.rxOverrun.Load() }

// RxBadDesc returns the number of frames dropped on malformed receive
// descriptors.
func (d *Device) RxBadDesc() uint64 { return d.rxBadDesc.Load() }
