//go:build linux

// Command udpsend bridges a machine to a TAP interface and sends a
// fixed number of UDP datagrams to one destination, optionally paced.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/link"
	"github.com/romshark/ringstack-go/netstack"
	"github.com/romshark/ringstack-go/nicstat"
	"github.com/romshark/ringstack-go/ratelimit"
	"github.com/romshark/ringstack-go/vnic"
)

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	fIface := flag.String("i", "tap0", "TAP interface name")
	fDstIP := flag.String("D", "", "destination IP")
	fDstPort := flag.Uint("p", 0, "destination port")
	fSrcPort := flag.Uint("s", 3000, "source port")
	fCount := flag.Uint64("n", 1, "datagrams to send")
	fSize := flag.Int("l", 64, "payload size")
	fRate := flag.Uint64("r", 0, "datagrams per second (0 = unpaced)")
	fMAC := flag.String("m", "", "local MAC (default 52:54:00:12:34:56)")
	fIP := flag.String("a", "", "local IP (default 10.0.2.15)")
	fGW := flag.String("g", "", "gateway MAC (default 52:55:0a:00:02:02)")
	fPcap := flag.String("pcap", "", "record the wire to a pcap file")
	flag.Parse()

	dstIP, err := header.ParseIP4(*fDstIP)
	fatalIf(err, "parsing -D")
	if *fDstPort == 0 || *fDstPort > 65535 {
		fmt.Fprint(os.Stderr, "-p must be between 1-65535\n")
		os.Exit(1)
	}
	if *fSrcPort == 0 || *fSrcPort > 65535 {
		fmt.Fprint(os.Stderr, "-s must be between 1-65535\n")
		os.Exit(1)
	}
	if *fSize < 8 {
		fmt.Fprint(os.Stderr, "-l must be >= 8 (sequence number)\n")
		os.Exit(1)
	}
	if *fCount == 0 {
		fmt.Fprint(os.Stderr, "-n must be > 0\n")
		os.Exit(1)
	}

	cfg := netstack.Config{DeviceName: *fIface}
	if *fMAC != "" {
		cfg.LocalMAC, err = header.ParseMAC(*fMAC)
		fatalIf(err, "parsing -m")
	}
	if *fIP != "" {
		cfg.LocalIP, err = header.ParseIP4(*fIP)
		fatalIf(err, "parsing -a")
	}
	if *fGW != "" {
		cfg.GatewayMAC, err = header.ParseMAC(*fGW)
		fatalIf(err, "parsing -g")
	}

	tap, err := link.NewTap(*fIface)
	fatalIf(err, "opening tap %s", *fIface)
	var wire vnic.Endpoint = tap
	if *fPcap != "" {
		wire, err = link.NewCapture(tap, *fPcap)
		fatalIf(err, "opening capture")
	}

	s, err := netstack.New(cfg, wire)
	fatalIf(err, "bringing up stack")

	fmt.Fprintf(os.Stderr,
		"udpsend: iface=%s dst=%s:%d sport=%d count=%d size=%d rate=%d\n",
		tap.Name(), dstIP, *fDstPort, *fSrcPort, *fCount, *fSize, *fRate)

	var interrupted atomic.Bool
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sig
		interrupted.Store(true)
	}()

	lim := ratelimit.New(*fRate)
	payload := make([]byte, *fSize)
	sport, dport := uint16(*fSrcPort), uint16(*fDstPort)

	start := time.Now()
	var sent uint64
	for sent < *fCount && !interrupted.Load() {
		lim.Wait()
		binary.BigEndian.PutUint64(payload, sent)
		err := s.Send(sport, dstIP, dport, payload)
		if errors.Is(err, driver.ErrNoTxDesc) {
			time.Sleep(10 * time.Microsecond)
			continue
		}
		fatalIf(err, "sending datagram")
		sent++
	}
	elapsed := time.Since(start)

	{
		d := 300 * time.Millisecond
		fmt.Fprintf(os.Stderr, "waiting %s for frames to drain...\n", d)
		time.Sleep(d)
	}
	fatalIf(s.Close(), "closing stack")

	udp := s.StatProviders()["udp"]()
	fmt.Fprintf(os.Stderr,
		"finished: sent=%s bytes=%s | duration=%s | rate=%s pps\n",
		humanize.Comma(int64(sent)),
		humanize.Bytes(udp[nicstat.TxBytes]),
		elapsed,
		humanize.Comma(int64(float64(sent)/elapsed.Seconds())),
	)
}
