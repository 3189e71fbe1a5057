package link_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/link"
)

func TestLoopback(t *testing.T) {
	lo := link.NewLoopback()

	require.NoError(t, lo.WriteFrame([]byte("dropped, nobody attached")))

	var got [][]byte
	lo.Attach(func(frame []byte) { got = append(got, frame) })
	require.NoError(t, lo.WriteFrame([]byte("echo")))
	require.Equal(t, [][]byte{[]byte("echo")}, got)

	require.NoError(t, lo.Close())
	require.NoError(t, lo.WriteFrame([]byte("after close")))
	assert.Len(t, got, 1)
}

func TestPipe(t *testing.T) {
	a, b := link.Pipe()

	var atB [][]byte
	b.Attach(func(frame []byte) { atB = append(atB, frame) })

	require.NoError(t, a.WriteFrame([]byte("a to b")))
	require.Equal(t, [][]byte{[]byte("a to b")}, atB)

	// The other direction drops until a is attached.
	require.NoError(t, b.WriteFrame([]byte("lost")))
	var atA [][]byte
	a.Attach(func(frame []byte) { atA = append(atA, frame) })
	require.NoError(t, b.WriteFrame([]byte("b to a")))
	require.Equal(t, [][]byte{[]byte("b to a")}, atA)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.WriteFrame([]byte("x")), io.ErrClosedPipe)
	require.NoError(t, b.WriteFrame([]byte("into closed peer")))
	assert.Len(t, atA, 1)
}

func TestCaptureRecordsBothDirections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.pcap")
	cw, err := link.NewCapture(link.NewLoopback(), path)
	require.NoError(t, err)

	var delivered int
	cw.Attach(func([]byte) { delivered++ })

	// One write crosses the tee twice: once outbound, once looped
	// back inbound.
	require.NoError(t, cw.WriteFrame([]byte("ping-frame-bytes")))
	require.Equal(t, 1, delivered)
	require.NoError(t, cw.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	var frames [][]byte
	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, len(data), ci.CaptureLength)
		frames = append(frames, data)
	}
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("ping-frame-bytes"), frames[0])
	assert.Equal(t, []byte("ping-frame-bytes"), frames[1])
}
