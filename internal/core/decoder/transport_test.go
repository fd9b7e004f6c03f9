package decoder

import (
	"testing"

	"firestige.xyz/fastdrop/internal/core"
)

func TestDecodeTransportTCP(t *testing.T) {
	frame := concat(make([]byte, 34), tcpHeader(5000, 5001))
	pkt := core.ParsedPacket{Proto: protocolTCP}

	if err := decodeTransport(frame, 34, &pkt); err != nil {
		t.Fatalf("decodeTransport failed: %v", err)
	}
	if pkt.L4 != core.L4TCP {
		t.Errorf("Expected L4 TCP, got %v", pkt.L4)
	}
	if pkt.SrcPort != 5000 {
		t.Errorf("Expected SrcPort 5000, got %d", pkt.SrcPort)
	}
	if pkt.DstPort != 5001 {
		t.Errorf("Expected DstPort 5001, got %d", pkt.DstPort)
	}
	if pkt.L4Offset != 34 {
		t.Errorf("Expected L4Offset 34, got %d", pkt.L4Offset)
	}
}

func TestDecodeTransportUDPExactFit(t *testing.T) {
	frame := concat(make([]byte, 34), udpHeader(53, 1024))
	pkt := core.ParsedPacket{Proto: protocolUDP}

	if err := decodeTransport(frame, 34, &pkt); err != nil {
		t.Fatalf("decodeTransport failed: %v", err)
	}
	if pkt.L4 != core.L4UDP {
		t.Errorf("Expected L4 UDP, got %v", pkt.L4)
	}
	if pkt.SrcPort != 53 || pkt.DstPort != 1024 {
		t.Errorf("Expected ports 53->1024, got %d->%d", pkt.SrcPort, pkt.DstPort)
	}
}

func TestDecodeTransportTooShort(t *testing.T) {
	tests := []struct {
		name  string
		proto uint8
		avail int
	}{
		{"tcp 19 bytes", protocolTCP, 19},
		{"tcp empty", protocolTCP, 0},
		{"udp 7 bytes", protocolUDP, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := make([]byte, 34+tt.avail)
			pkt := core.ParsedPacket{Proto: tt.proto}
			if err := decodeTransport(frame, 34, &pkt); err != core.ErrTooShort {
				t.Errorf("Expected ErrTooShort, got %v", err)
			}
			if pkt.L4 != core.L4None {
				t.Errorf("Expected L4 None after failure, got %v", pkt.L4)
			}
		})
	}
}

func TestDecodeTransportOther(t *testing.T) {
	pkt := core.ParsedPacket{Proto: 132} // SCTP
	if err := decodeTransport(make([]byte, 34), 34, &pkt); err != nil {
		t.Fatalf("decodeTransport failed: %v", err)
	}
	if pkt.L4 != core.L4Other {
		t.Errorf("Expected L4 Other, got %v", pkt.L4)
	}
	if pkt.SrcPort != 0 || pkt.DstPort != 0 {
		t.Errorf("Expected zero ports, got %d->%d", pkt.SrcPort, pkt.DstPort)
	}
}
