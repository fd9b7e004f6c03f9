// Package core defines the value types shared by the decoder, the rule engine
// and the workers. It has no dependencies outside the standard library.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// NetworkProtocol is the L3 protocol recognised from the ethertype.
type NetworkProtocol uint8

const (
	NetworkNone NetworkProtocol = iota
	NetworkIPv4
	NetworkIPv6
)

func (n NetworkProtocol) String() string {
	switch n {
	case NetworkIPv4:
		return "IPv4"
	case NetworkIPv6:
		return "IPv6"
	default:
		return "None"
	}
}

// L4Protocol is the transport protocol found after the network header.
type L4Protocol uint8

const (
	L4None L4Protocol = iota
	L4TCP
	L4UDP
	L4Other
)

func (p L4Protocol) String() string {
	switch p {
	case L4TCP:
		return "TCP"
	case L4UDP:
		return "UDP"
	case L4Other:
		return "Other"
	default:
		return "None"
	}
}

// Frame is a received Ethernet frame borrowed from a NIC provider for one
// processing pass. Data is only valid until the frame is released.
type Frame struct {
	Data      []byte    // Frame bytes, Data[:Length] is the captured frame
	Length    int       // Captured length
	Timestamp time.Time // Receive timestamp
	Queue     int       // Receive queue the frame came from
	Slot      int32     // Buffer slot in the provider's pool, -1 if unpooled
}

// ParsedPacket is the result of decoding one frame. Every field is a copy;
// nothing references the frame's buffer.
type ParsedPacket struct {
	Network   NetworkProtocol
	L4        L4Protocol
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16

	SrcAddr netip.Addr // 4-byte for IPv4, 16-byte for IPv6, invalid otherwise
	DstAddr netip.Addr
	TTL     uint8 // IPv4 TTL or IPv6 hop limit
	Proto   uint8 // IPv4 protocol or terminating IPv6 next header

	SrcPort uint16 // Only meaningful when HasPorts is true
	DstPort uint16

	L4Offset   int // Transport header offset from frame start, 0 if none
	ExtHeaders int // IPv6 extension headers walked
}

// HasPorts reports whether the packet carries TCP or UDP ports.
func (p *ParsedPacket) HasPorts() bool {
	return p.L4 == L4TCP || p.L4 == L4UDP
}

// IsTCP reports whether the transport protocol is TCP.
func (p *ParsedPacket) IsTCP() bool {
	return p.L4 == L4TCP
}

// MACString formats a hardware address as upper-case colon separated hex.
func MACString(mac [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
