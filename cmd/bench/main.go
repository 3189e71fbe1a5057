// Command bench wires two stacks back to back over an in-process pipe
// and pumps UDP datagrams from one into the other, reporting per-layer
// throughput once a second and a final summary.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/romshark/ringstack-go/driver"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/link"
	"github.com/romshark/ringstack-go/netstack"
	"github.com/romshark/ringstack-go/nicstat"
	"github.com/romshark/ringstack-go/ratelimit"
	"github.com/romshark/ringstack-go/vnic"
)

type Config struct {
	Count       uint64 `yaml:"count"`
	PayloadSize int    `yaml:"payload-size"`
	Rate        uint64 `yaml:"rate"` // datagrams per second, 0 = unpaced
	Port        uint16 `yaml:"port"`
	Senders     int    `yaml:"senders"`

	TxRing   int `yaml:"tx-ring"`
	RxRing   int `yaml:"rx-ring"`
	DMAPages int `yaml:"dma-pages"`

	Pcap string `yaml:"pcap"` // record the wire to this file
}

func loadConfig() (*Config, error) {
	fConfig := flag.String("config", "", "path to config YAML file")
	fCount := flag.Uint64("n", 0, "datagram count")
	fSize := flag.Int("l", 0, "payload size")
	fRate := flag.Uint64("r", 0, "datagrams per second (0 = unpaced)")
	fPort := flag.Uint("p", 0, "destination port")
	fSenders := flag.Int("w", 0, "sender goroutines")
	fPcap := flag.String("pcap", "", "record the wire to a pcap file")

	flag.Parse()

	conf := Config{
		Count:       1_000_000,
		PayloadSize: 64,
		Port:        9000,
		Senders:     1,
	}
	if *fConfig != "" {
		b, err := os.ReadFile(*fConfig)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &conf); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	// Apply CLI overrides if necessary.
	if *fCount != 0 {
		conf.Count = *fCount
	}
	if *fSize != 0 {
		conf.PayloadSize = *fSize
	}
	if *fRate != 0 {
		conf.Rate = *fRate
	}
	if *fPort != 0 {
		conf.Port = uint16(*fPort)
	}
	if *fSenders != 0 {
		conf.Senders = *fSenders
	}
	if *fPcap != "" {
		conf.Pcap = *fPcap
	}

	// Validate

	if conf.Count == 0 {
		return nil, errors.New("count must be > 0")
	}
	if conf.PayloadSize < 8 {
		return nil, errors.New("payload-size must be >= 8 (sequence number)")
	}
	if conf.PayloadSize > 2006 {
		return nil, errors.New("payload-size must be <= 2006 (receive buffer limit)")
	}
	if conf.Port == 0 {
		return nil, errors.New("port must be set")
	}
	if conf.Senders < 1 || conf.Senders > 64 {
		return nil, errors.New("senders must be between 1-64")
	}

	return &conf, nil
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	conf, err := loadConfig()
	fatalIf(err, "reading config")

	fmt.Fprintf(os.Stderr, "FINAL CONFIG:\n")
	b, err := yaml.Marshal(conf)
	fatalIf(err, "encoding final YAML config")
	_, _ = os.Stderr.Write(b)
	fmt.Fprintln(os.Stderr)

	defer vnic.OnDeviceUp(func(name string) {
		fmt.Fprintf(os.Stderr, "device up: %s\n", name)
	}).Close()

	ea, eb := link.Pipe()
	var rxWire vnic.Endpoint = eb
	if conf.Pcap != "" {
		cw, err := link.NewCapture(eb, conf.Pcap)
		fatalIf(err, "opening capture")
		rxWire = cw
	}

	tx, err := netstack.New(netstack.Config{
		DeviceName: "tx0",
		TxRingSize: conf.TxRing,
		RxRingSize: conf.RxRing,
		DMAPages:   conf.DMAPages,
	}, ea)
	fatalIf(err, "bringing up tx stack")
	defer func() { _ = tx.Close() }()

	dstIP := header.MakeIP4(10, 0, 2, 2)
	rx, err := netstack.New(netstack.Config{
		LocalMAC:   netstack.DefaultGatewayMAC,
		LocalIP:    dstIP,
		GatewayMAC: netstack.DefaultLocalMAC,
		DeviceName: "rx0",
		TxRingSize: conf.TxRing,
		RxRingSize: conf.RxRing,
		DMAPages:   conf.DMAPages,
	}, rxWire)
	fatalIf(err, "bringing up rx stack")
	defer func() { _ = rx.Close() }()

	fatalIf(rx.Bind(conf.Port), "binding port %d", conf.Port)

	sources := map[string]nicstat.Source{}
	for name, src := range tx.StatProviders() {
		sources["tx/"+name] = src
	}
	for name, src := range rx.StatProviders() {
		sources["rx/"+name] = src
	}

	var recvDone sync.WaitGroup
	recvDone.Add(1)
	go func() {
		defer recvDone.Done()
		buf := make([]byte, netstack.MaxPayload)
		for {
			if _, _, _, err := rx.Recv(conf.Port, buf); err != nil {
				return
			}
		}
	}()

	stopTicker := make(chan struct{})
	var tickerDone sync.WaitGroup
	tickerDone.Add(1)
	go func() {
		defer tickerDone.Done()
		t := time.NewTicker(time.Second)
		defer t.Stop()

		prev := nicstat.Snapshot(sources)
		prevTime := time.Now()

		for {
			select {
			case <-stopTicker:
				return
			case <-t.C:
				now := time.Now()
				dt := now.Sub(prevTime).Seconds()
				prevTime = now

				cur := nicstat.Snapshot(sources)
				d := cur.Since(prev)
				prev = cur

				txd, rxd := d["tx/udp"], d["rx/udp"]
				fmt.Printf(
					"TX=%d RX=%d TX-PPS=%.0f RX-PPS=%.0f TX-Mbps=%.1f RX-Mbps=%.1f\n",
					cur["tx/udp"][nicstat.TxPackets],
					cur["rx/udp"][nicstat.RxPackets],
					float64(txd[nicstat.TxPackets])/dt,
					float64(rxd[nicstat.RxPackets])/dt,
					float64(txd[nicstat.TxBytes]*8)/1e6/dt,
					float64(rxd[nicstat.RxBytes]*8)/1e6/dt,
				)
			}
		}
	}()

	perSender := conf.Count / uint64(conf.Senders)
	var perSenderRate uint64
	if conf.Rate > 0 {
		perSenderRate = max(conf.Rate/uint64(conf.Senders), 1)
	}

	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < conf.Senders; i++ {
		count := perSender
		if i == 0 {
			count += conf.Count % uint64(conf.Senders)
		}
		wg.Add(1)
		go func(id int, count uint64) {
			defer wg.Done()
			lim := ratelimit.New(perSenderRate)
			payload := make([]byte, conf.PayloadSize)
			sport := uint16(20000 + id)

			for seq := uint64(0); seq < count; {
				lim.Wait()
				binary.BigEndian.PutUint64(payload, seq)
				err := tx.Send(sport, dstIP, conf.Port, payload)
				if errors.Is(err, driver.ErrNoTxDesc) {
					time.Sleep(10 * time.Microsecond)
					continue
				}
				fatalIf(err, "sending datagram")
				seq++
			}
		}(i, count)
	}
	wg.Wait()
	elapsed := time.Since(start)

	{
		d := 300 * time.Millisecond
		fmt.Fprintf(os.Stderr, "waiting %s for frames to drain...\n", d)
		time.Sleep(d)
	}
	fatalIf(rx.Unbind(conf.Port), "unbinding port")
	recvDone.Wait()
	close(stopTicker)
	tickerDone.Wait()

	final := nicstat.Snapshot(sources)

	txPackets := final["tx/udp"][nicstat.TxPackets]
	rxPackets := final["rx/udp"][nicstat.RxPackets]
	txBytes := final["tx/udp"][nicstat.TxBytes]
	rxBytes := final["rx/udp"][nicstat.RxBytes]

	drops := txPackets - rxPackets
	seconds := elapsed.Seconds()

	p := message.NewPrinter(language.English)

	p.Print("\nFINAL REPORT\n")
	p.Printf(" Elapsed:           %.3f s\n", seconds)
	p.Printf(" TX:                %d datagrams\n", txPackets)
	p.Printf(" RX:                %d datagrams\n", rxPackets)
	p.Printf(" TX Avg PPS:        %d\n", uint64(float64(txPackets)/seconds))
	p.Printf(" RX Avg PPS:        %d\n", uint64(float64(rxPackets)/seconds))
	p.Printf(" TX Avg rate:       %.1f Mbps\n", float64(txBytes*8)/1e6/seconds)
	p.Printf(" RX Avg rate:       %.1f Mbps\n", float64(rxBytes*8)/1e6/seconds)
	p.Printf(" Dropped:           %d (%.4f%%)\n",
		drops, float64(drops)/float64(txPackets)*100)

	fmt.Println()
	fatalIf(nicstat.Print(os.Stdout, final, map[string]string{
		"tx/device": "tx adapter",
		"tx/driver": "tx e1000 driver",
		"tx/udp":    "tx udp layer",
		"rx/device": "rx adapter",
		"rx/driver": "rx e1000 driver",
		"rx/udp":    "rx udp layer",
	}), "printing stats")
}
