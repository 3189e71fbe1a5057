// Package netstack is the UDP layer over one driver/device pair: it
// demultiplexes received datagrams into per-port queues, blocks
// readers until data arrives, sends datagrams through a fixed gateway
// and answers the peer's first ARP query.
//
// A single registry mutex guards the port table and all delivery;
// per-port condition variables bound to it implement the blocking
// receive. The only other lock in the hot path is the driver's
// transmit mutex, and the two are never held together.
package netstack

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/logging"
	"github.com/romshark/ringstack-go/nicstat"
	"github.com/romshark/ringstack-go/vnic"
)

const (
	// NumPorts is the size of the port table.
	NumPorts = 32

	// QueueSize is the per-port datagram queue depth.
	QueueSize = 16

	// MaxPayload is the largest UDP payload a queue slot can hold;
	// larger datagrams are dropped on receive.
	MaxPayload = 2048
)

// Default identities of the QEMU user-network setup the reference
// deployment runs under.
var (
	DefaultLocalMAC   = header.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	DefaultLocalIP    = header.MakeIP4(10, 0, 2, 15)
	DefaultGatewayMAC = header.MAC{0x52, 0x55, 0x0a, 0x00, 0x02, 0x02}
)

// Config configures a Stack.
type Config struct {
	// LocalMAC is programmed into the device's address filter and
	// used as the source of all outbound frames.
	LocalMAC header.MAC

	// LocalIP is the source address of outbound datagrams and the
	// address advertised by the ARP responder.
	LocalIP header.IP4

	// GatewayMAC is the fixed next hop all datagrams are framed to.
	GatewayMAC header.MAC

	// DMAPages sizes the DMA arena. Zero selects the dma default.
	DMAPages int

	// TxRingSize and RxRingSize size the descriptor rings. Zero
	// selects the driver default.
	TxRingSize int
	RxRingSize int

	// DeviceName names the device in logs and events.
	DeviceName string

	// QueueDepth is the device's inbound frame queue capacity.
	QueueDepth int
}

// ValidateAndSetDefaults validates the configuration and
// sets default values where applicable.
func (c *Config) ValidateAndSetDefaults() error {
	if c.LocalMAC.IsZero() {
		c.LocalMAC = DefaultLocalMAC
	}
	if c.LocalIP == 0 {
		c.LocalIP = DefaultLocalIP
	}
	if c.GatewayMAC.IsZero() {
		c.GatewayMAC = DefaultGatewayMAC
	}
	return nil
}

// packet is one queued datagram.
type packet struct {
	data    [MaxPayload]byte
	len     int
	srcIP   header.IP4
	srcPort uint16
}

// portEntry is one slot of the port table. ready is bound to the
// registry mutex; receivers wait on it, delivery signals it. gen
// increments on every bind so a waiter can tell its binding was
// replaced rather than refilled.
type portEntry struct {
	bound bool
	port  uint16
	gen   uint64
	queue [QueueSize]packet
	head  int
	tail  int
	count int
	ready sync.Cond
}

// Stack is a running machine: DMA arena, device, driver and the UDP
// port registry on top.
type Stack struct {
	log *zap.Logger
	cfg Config
	mem *dma.Mem
	dev *vnic.Device
	drv *driver.Driver

	mu    sync.Mutex
	ports [NumPorts]portEntry

	arpSeen atomic.Bool

	delivered   atomic.Uint64
	rxBytes     atomic.Uint64
	rxNoPort    atomic.Uint64
	rxQueueFull atomic.Uint64
	rxUnhandled atomic.Uint64
	txDatagrams atomic.Uint64
	txBytes     atomic.Uint64
	txNoDesc    atomic.Uint64
	txNoMem     atomic.Uint64
	arpReplies  atomic.Uint64
}

// New assembles a machine around the endpoint: DMA arena, virtual
// device, driver and the stack itself, wired so that the device's
// interrupt drives the driver drain into the port queues. The
// returned stack is live; Close tears it down along with ep.
func New(cfg Config, ep vnic.Endpoint) (*Stack, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	mem, err := dma.New(cfg.DMAPages)
	if err != nil {
		return nil, fmt.Errorf("allocating dma arena: %w", err)
	}
	dev, err := vnic.New(mem, vnic.Config{
		Name:       cfg.DeviceName,
		QueueDepth: cfg.QueueDepth,
	}, ep)
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	s := &Stack{
		log: logging.New("netstack"),
		cfg: cfg,
		mem: mem,
		dev: dev,
	}
	for i := range s.ports {
		s.ports[i].ready.L = &s.mu
	}

	s.drv, err = driver.Attach(mem, dev.Regs(), driver.Config{
		MAC:        cfg.LocalMAC,
		TxRingSize: cfg.TxRingSize,
		RxRingSize: cfg.RxRingSize,
	}, s.HandleFrame)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("attaching driver: %w", err)
	}
	dev.SetInterrupt(s.drv.Interrupt)
	dev.Start()

	s.log.Info("stack up",
		zap.String("dev", dev.Name()),
		zap.String("mac", cfg.LocalMAC.String()),
		zap.String("ip", cfg.LocalIP.String()),
		zap.String("gw", cfg.GatewayMAC.String()))
	return s, nil
}

// Close shuts the device down and unbinds every port, waking blocked
// receivers with ErrNotBound.
func (s *Stack) Close() error {
	err := s.dev.Close()

	s.mu.Lock()
	for i := range s.ports {
		pe := &s.ports[i]
		if pe.bound {
			pe.bound = false
			pe.port = 0
			pe.head, pe.tail, pe.count = 0, 0, 0
			pe.ready.Broadcast()
		}
	}
	s.mu.Unlock()
	return err
}

// Driver exposes the driver layer for stats and tests.
func (s *Stack) Driver() *driver.Driver { return s.drv }

// Device exposes the device layer for stats and tests.
func (s *Stack) Device() *vnic.Device { return s.dev }

// findPort returns the bound entry for port, or nil.
// The registry mutex must be held.
func (s *Stack) findPort(port uint16) *portEntry {
	for i := range s.ports {
		if s.ports[i].bound && s.ports[i].port == port {
			return &s.ports[i]
		}
	}
	return nil
}

// Delivered returns the number of datagrams handed to receivers.
func (s *Stack) Delivered() uint64 { return s.delivered.Load() }

// RxNoPort returns the number of datagrams dropped for lack of a
// bound port.
func (s *Stack) RxNoPort() uint64 { return s.rxNoPort.Load() }

// RxQueueFull returns the number of datagrams dropped on full queues.
func (s *Stack) RxQueueFull() uint64 { return s.rxQueueFull.Load() }

// RxUnhandled returns the number of received frames discarded by the
// dispatcher: unknown type, short frame, non-UDP or bad UDP length.
func (s *Stack) RxUnhandled() uint64 { return s.rxUnhandled.Load() }

// TxDatagrams returns the number of datagrams sent.
func (s *Stack) TxDatagrams() uint64 { return s.txDatagrams.Load() }

// TxNoDesc returns the number of sends failed on a full transmit ring.
func (s *Stack) TxNoDesc() uint64 { return s.txNoDesc.Load() }

// TxNoMem returns the number of sends and ARP replies dropped because
// the DMA arena was exhausted.
func (s *Stack) TxNoMem() uint64 { return s.txNoMem.Load() }

// ARPReplies returns the number of ARP replies transmitted, 0 or 1.
func (s *Stack) ARPReplies() uint64 { return s.arpReplies.Load() }

// StatProviders returns one live counter source per layer, keyed for
// the stats printer.
func (s *Stack) StatProviders() map[string]nicstat.Source {
	return map[string]nicstat.Source{
		"device": func() nicstat.Values {
			return nicstat.Values{
				nicstat.TxPackets: s.dev.TxFrames(),
				nicstat.TxBytes:   s.dev.TxBytes(),
				nicstat.RxPackets: s.dev.RxFrames(),
				nicstat.RxBytes:   s.dev.RxBytes(),
				nicstat.Drops: s.dev.RxMissed() + s.dev.RxFiltered() +
					s.dev.RxOversize() + s.dev.RxOverrun() +
					s.dev.RxBadDesc() + s.dev.TxBadDesc(),
			}
		},
		"driver": func() nicstat.Values {
			return nicstat.Values{
				nicstat.TxPackets: s.drv.TxFrames(),
				nicstat.TxBytes:   s.drv.TxBytes(),
				nicstat.RxPackets: s.drv.RxFrames(),
				nicstat.RxBytes:   s.drv.RxBytes(),
				nicstat.Drops:     s.drv.TxNoDesc() + s.drv.RxNoBuf(),
			}
		},
		"udp": func() nicstat.Values {
			return nicstat.Values{
				nicstat.TxPackets: s.TxDatagrams(),
				nicstat.TxBytes:   s.txBytes.Load(),
				nicstat.RxPackets: s.Delivered(),
				nicstat.RxBytes:   s.rxBytes.Load(),
				nicstat.Drops: s.RxNoPort() + s.RxQueueFull() +
					s.RxUnhandled() + s.TxNoDesc() + s.TxNoMem(),
			}
		},
	}
}
