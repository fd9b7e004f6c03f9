package decoder

import (
	"fmt"
	"strings"

	"firestige.xyz/fastdrop/internal/core"
)

// DefaultDumpLen is the number of leading frame bytes shown by HexDump when
// the caller passes a non-positive limit.
const DefaultDumpLen = 64

const dumpLineWidth = 16

// Summary returns a one-line description of a parsed packet for logs.
func Summary(p core.ParsedPacket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "eth dst=%s src=%s type=0x%04x",
		core.MACString(p.DstMAC), core.MACString(p.SrcMAC), p.EtherType)

	if p.Network == core.NetworkNone {
		return b.String()
	}
	fmt.Fprintf(&b, " %s src=%s dst=%s ttl=%d", p.Network, p.SrcAddr, p.DstAddr, p.TTL)
	if p.ExtHeaders > 0 {
		fmt.Fprintf(&b, " ext=%d", p.ExtHeaders)
	}

	switch p.L4 {
	case core.L4TCP, core.L4UDP:
		fmt.Fprintf(&b, " %s sport=%d dport=%d", p.L4, p.SrcPort, p.DstPort)
	case core.L4Other:
		fmt.Fprintf(&b, " proto=%d", p.Proto)
	}
	return b.String()
}

// HexDump renders up to limit leading bytes of data as offset, hex and
// printable ASCII columns, 16 bytes per row.
func HexDump(data []byte, limit int) []string {
	if limit <= 0 {
		limit = DefaultDumpLen
	}
	limit = min(limit, len(data))

	rows := make([]string, 0, (limit+dumpLineWidth-1)/dumpLineWidth)
	for off := 0; off < limit; off += dumpLineWidth {
		var b strings.Builder
		fmt.Fprintf(&b, "%04x  ", off)
		for i := 0; i < dumpLineWidth; i++ {
			if off+i < limit {
				fmt.Fprintf(&b, "%02x ", data[off+i])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteByte(' ')
		for i := 0; i < dumpLineWidth && off+i < limit; i++ {
			c := data[off+i]
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		rows = append(rows, b.String())
	}
	return rows
}
