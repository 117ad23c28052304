// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"fmt"
	"strings"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// FromGopacket converts a decoded packet into a Record. Packets without a
// network layer yield a record with empty addresses, which the deduplicator
// later drops.
func FromGopacket(pkt gopacket.Packet) Record {
	rec := Record{}

	for _, l := range pkt.Layers() {
		rec.Protocols = append(rec.Protocols, l.LayerType().String())
	}

	if nl := pkt.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		rec.Source = src.String()
		rec.Destination = dst.String()
	}

	// Length is the captured byte count, not the on-wire length.
	rec.Length = len(pkt.Data())
	rec.Timestamp = time.Now()
	if md := pkt.Metadata(); md != nil && !md.Timestamp.IsZero() {
		rec.Timestamp = md.Timestamp
	}

	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		rec.TCP = &TCPInfo{
			SrcPort: uint16(tcp.SrcPort),
			DstPort: uint16(tcp.DstPort),
			Flags:   tcpFlags(tcp),
			Window:  tcp.Window,
		}
	}
	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		rec.UDP = &UDPInfo{
			SrcPort: uint16(udp.SrcPort),
			DstPort: uint16(udp.DstPort),
			Length:  udp.Length,
		}
	}

	rec.Summary = summarize(rec)
	return rec
}

func tcpFlags(tcp *layers.TCP) uint8 {
	var f uint8
	set := func(on bool, bit uint8) {
		if on {
			f |= bit
		}
	}
	set(tcp.FIN, FlagFIN)
	set(tcp.SYN, FlagSYN)
	set(tcp.RST, FlagRST)
	set(tcp.PSH, FlagPSH)
	set(tcp.ACK, FlagACK)
	set(tcp.URG, FlagURG)
	set(tcp.ECE, FlagECE)
	set(tcp.CWR, FlagCWR)
	return f
}

func summarize(r Record) string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Protocols, " / "))
	if r.Source == "" {
		return b.String()
	}
	src, dst := r.Source, r.Destination
	switch {
	case r.TCP != nil:
		src = fmt.Sprintf("%s:%d", src, r.TCP.SrcPort)
		dst = fmt.Sprintf("%s:%d", dst, r.TCP.DstPort)
	case r.UDP != nil:
		src = fmt.Sprintf("%s:%d", src, r.UDP.SrcPort)
		dst = fmt.Sprintf("%s:%d", dst, r.UDP.DstPort)
	}
	fmt.Fprintf(&b, " %s > %s", src, dst)
	return b.String()
}
