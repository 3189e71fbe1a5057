//go:build linux

package link

import (
	"fmt"
	"sync"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/logging"
	"github.com/romshark/ringstack-go/vnic"
)

var _ vnic.Endpoint = (*Tap)(nil)

// Tap bridges a device to a host TAP interface.
type Tap struct {
	log  *zap.Logger
	ifce *water.Interface
	quit chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewTap opens the named TAP interface, creating it if needed, and
// sets the link up. An empty name lets the kernel pick one.
func NewTap(name string) (*Tap, error) {
	ifce, err := water.New(water.Config{
		DeviceType: water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening tap %q: %w", name, err)
	}
	lk, err := netlink.LinkByName(ifce.Name())
	if err != nil {
		_ = ifce.Close()
		return nil, fmt.Errorf("looking up link %q: %w", ifce.Name(), err)
	}
	if err := netlink.LinkSetUp(lk); err != nil {
		_ = ifce.Close()
		return nil, fmt.Errorf("bringing up link %q: %w", ifce.Name(), err)
	}
	return &Tap{
		log:  logging.New("link").With(zap.String("tap", ifce.Name())),
		ifce: ifce,
		quit: make(chan struct{}),
	}, nil
}

// Name returns the host interface name.
func (t *Tap) Name() string { return t.ifce.Name() }

// Attach starts the reader goroutine delivering host frames.
func (t *Tap) Attach(deliver func(frame []byte)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		buf := make([]byte, 65536)
		for {
			n, err := t.ifce.Read(buf)
			if err != nil {
				select {
				case <-t.quit:
				default:
					t.log.Warn("tap read failed", zap.Error(err))
				}
				return
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			deliver(frame)
		}
	}()
}

// WriteFrame writes the frame to the host interface.
func (t *Tap) WriteFrame(frame []byte) error {
	_, err := t.ifce.Write(frame)
	return err
}

// Close tears the interface down and stops the reader.
func (t *Tap) Close() error {
	t.closeOnce.Do(func() {
		close(t.quit)
		t.closeErr = t.ifce.Close()
		t.wg.Wait()
	})
	return t.closeErr
}
