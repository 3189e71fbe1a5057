//go:build linux

// Command udpecho bridges a machine to a TAP interface, binds one UDP
// port and echoes every datagram back to its sender until interrupted.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/link"
	"github.com/romshark/ringstack-go/netstack"
	"github.com/romshark/ringstack-go/nicstat"
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
	fPort := flag.Uint("p", 7, "UDP port to echo on")
	fMAC := flag.String("m", "", "local MAC (default 52:54:00:12:34:56)")
	fIP := flag.String("a", "", "local IP (default 10.0.2.15)")
	fGW := flag.String("g", "", "gateway MAC (default 52:55:0a:00:02:02)")
	fPcap := flag.String("pcap", "", "record the wire to a pcap file")
	flag.Parse()

	if *fPort == 0 || *fPort > 65535 {
		fmt.Fprint(os.Stderr, "-p must be between 1-65535\n")
		os.Exit(1)
	}
	port := uint16(*fPort)

	var err error
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
	fatalIf(cfg.ValidateAndSetDefaults(), "resolving config")

	tap, err := link.NewTap(*fIface)
	fatalIf(err, "opening tap %s", *fIface)
	var wire vnic.Endpoint = tap
	if *fPcap != "" {
		wire, err = link.NewCapture(tap, *fPcap)
		fatalIf(err, "opening capture")
	}

	s, err := netstack.New(cfg, wire)
	fatalIf(err, "bringing up stack")

	fatalIf(s.Bind(port), "binding port %d", port)

	fmt.Fprintf(os.Stderr, "udpecho: iface=%s port=%d mac=%s ip=%s gw=%s\n",
		tap.Name(), port, cfg.LocalMAC, cfg.LocalIP, cfg.GatewayMAC)

	go func() {
		buf := make([]byte, netstack.MaxPayload)
		for {
			n, src, sport, err := s.Recv(port, buf)
			if errors.Is(err, netstack.ErrNotBound) {
				return
			}
			fatalIf(err, "receiving")

			for {
				err := s.Send(port, src, sport, buf[:n])
				if !errors.Is(err, driver.ErrNoTxDesc) {
					if err != nil {
						fmt.Fprintf(os.Stderr, "echo dropped: %v\n", err)
					}
					break
				}
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()

	go func() {
		udp := s.StatProviders()["udp"]

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		last := udp()
		lastTime := time.Now()
		var maxPPS, maxMbps float64

		for range ticker.C {
			now := time.Now()
			elapsed := now.Sub(lastTime).Seconds()
			lastTime = now

			cur := udp()
			pps := float64(cur[nicstat.RxPackets]-last[nicstat.RxPackets]) / elapsed
			mbps := float64((cur[nicstat.RxBytes]-last[nicstat.RxBytes])*8) / elapsed / 1e6
			last = cur

			maxPPS = max(maxPPS, pps)
			maxMbps = max(maxMbps, mbps)

			fmt.Printf(
				"total=%d | cur=%.0f pps %.2f Mbit/s | max=%.0f pps %.2f Mbit/s\n",
				cur[nicstat.RxPackets], pps, mbps, maxPPS, maxMbps,
			)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGINT, unix.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "shutting down")
	fatalIf(s.Unbind(port), "unbinding port")
	fatalIf(s.Close(), "closing stack")

	fmt.Fprintf(os.Stderr, "finished: echoed=%s datagrams, replied arp=%d\n",
		humanize.Comma(int64(s.Delivered())), s.ARPReplies())
}
