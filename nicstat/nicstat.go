// Package nicstat snapshots, diffs and pretty-prints the counters of
// the stack's layers for periodic and final reports.
package nicstat

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
)

type Counter int

const (
	TxPackets Counter = iota
	TxBytes
	RxPackets
	RxBytes
	Drops
)

func (c Counter) String() string {
	switch c {
	case TxPackets:
		return "tx_packets"
	case TxBytes:
		return "tx_bytes"
	case RxPackets:
		return "rx_packets"
	case RxBytes:
		return "rx_bytes"
	case Drops:
		return "drops"
	}
	return ""
}

// Values holds one layer's counters.
type Values map[Counter]uint64

// Source produces a point-in-time reading of one layer.
type Source func() Values

// Multi-layer stats.
type Stats map[string]Values

// Snapshot reads all sources.
func Snapshot(sources map[string]Source) Stats {
	s := make(Stats, len(sources))
	for name, src := range sources {
		s[name] = src()
	}
	return s
}

// Since computes s(now) - old.
func (s Stats) Since(old Stats) Stats {
	out := make(Stats)
	for layer, now := range s {
		prev := old[layer]
		diff := make(Values, len(now))
		for ctr, v := range now {
			diff[ctr] = v - prev[ctr]
		}
		out[layer] = diff
	}
	return out
}

// Print writes one block per layer. aliases may relabel layer names.
func Print(w io.Writer, s Stats, aliases map[string]string) error {
	layers := make([]string, 0, len(s))
	for layer := range s {
		layers = append(layers, layer)
	}
	slices.Sort(layers)

	for _, layer := range layers {
		stats := s[layer]

		txPkts := stats[TxPackets]
		txBytes := stats[TxBytes]
		rxPkts := stats[RxPackets]
		rxBytes := stats[RxBytes]

		if alias, ok := aliases[layer]; ok {
			fmt.Fprintf(w, "%s (%s):\n", layer, alias)
		} else {
			fmt.Fprintf(w, "%s :\n", layer)
		}

		fmt.Fprintf(w, "  TX   %-12d  ≈ %-8s (%s)\n",
			txPkts, humanize.Bytes(txBytes), humanize.Comma(int64(txBytes)),
		)
		fmt.Fprintf(w, "  RX   %-12d  ≈ %-8s (%s)\n",
			rxPkts, humanize.Bytes(rxBytes), humanize.Comma(int64(rxBytes)),
		)
		if drops := stats[Drops]; drops > 0 {
			fmt.Fprintf(w, "  DROP %-12d\n", drops)
		}
	}

	return nil
}
