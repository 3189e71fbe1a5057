package link

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/logging"
	"github.com/romshark/ringstack-go/vnic"
)

var _ vnic.Endpoint = (*Capture)(nil)

// Capture wraps an endpoint and tees every frame crossing it, in both
// directions, into a pcap file.
type Capture struct {
	log   *zap.Logger
	inner vnic.Endpoint

	mu sync.Mutex
	f  *os.File
	w  *pcapgo.Writer
}

// NewCapture wraps ep, recording all traffic to path.
func NewCapture(ep vnic.Endpoint, path string) (*Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &Capture{
		log:   logging.New("link").With(zap.String("pcap", path)),
		inner: ep,
		f:     f,
		w:     w,
	}, nil
}

// Attach registers the inbound delivery callback, recording inbound
// frames on the way through.
func (c *Capture) Attach(deliver func(frame []byte)) {
	c.inner.Attach(func(frame []byte) {
		c.record(frame)
		deliver(frame)
	})
}

// WriteFrame records the outbound frame and passes it on.
func (c *Capture) WriteFrame(frame []byte) error {
	c.record(frame)
	return c.inner.WriteFrame(frame)
}

func (c *Capture) record(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return
	}
	err := c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
	if err != nil {
		c.log.Warn("dropping capture record", zap.Error(err))
	}
}

// Close closes the wrapped endpoint and the capture file.
func (c *Capture) Close() error {
	err := c.inner.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f != nil {
		err = errors.Join(err, c.f.Close())
		c.f = nil
	}
	return err
}
