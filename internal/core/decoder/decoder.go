// Package decoder implements bounds-checked L2-L4 decoding of Ethernet frames.
//
// The decoder reads attacker-controlled bytes: every offset is checked against
// the frame length before it is dereferenced, and the IPv6 extension header
// walk is capped.
package decoder

import "firestige.xyz/fastdrop/internal/core"

// Decoder decodes received frames into parsed packets.
type Decoder interface {
	Decode(frame core.Frame) (core.ParsedPacket, error)
}

// Standard is the stateless Decoder used by the workers.
type Standard struct{}

// Decode implements Decoder.
func (Standard) Decode(frame core.Frame) (core.ParsedPacket, error) {
	return Parse(frame.Data, frame.Length)
}

// Parse decodes the first length bytes of data. A length beyond len(data) is
// clamped to the slice. Unknown ethertypes decode successfully with
// Network=None and L4=None.
func Parse(data []byte, length int) (core.ParsedPacket, error) {
	var pkt core.ParsedPacket
	if length > len(data) {
		length = len(data)
	}
	if length < ethernetHeaderLen {
		return pkt, core.ErrTooShort
	}
	frame := data[:length]

	var (
		off int
		err error
	)
	switch decodeEthernet(frame, &pkt) {
	case etherTypeIPv4:
		off, err = decodeIPv4(frame, &pkt)
	case etherTypeIPv6:
		off, err = decodeIPv6(frame, &pkt)
	default:
		return pkt, nil
	}
	if err != nil {
		return pkt, err
	}

	if err := decodeTransport(frame, off, &pkt); err != nil {
		return pkt, err
	}
	return pkt, nil
}
