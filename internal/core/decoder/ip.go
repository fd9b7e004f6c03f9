package decoder

import (
	"net/netip"

	"firestige.xyz/fastdrop/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40

	// IPv6 extension header types
	extHopByHop    = 0
	extRouting     = 43
	extFragment    = 44
	extAuthHeader  = 51
	extDestOptions = 60

	fragmentHeaderLen = 8

	// MaxExtensionHeaders is the longest IPv6 extension chain accepted.
	MaxExtensionHeaders = 8
)

// decodeIPv4 fills the network fields and returns the transport offset from
// frame start.
func decodeIPv4(frame []byte, pkt *core.ParsedPacket) (int, error) {
	if len(frame) < ethernetHeaderLen+ipv4HeaderMinLen {
		return 0, core.ErrTooShort
	}
	ip := frame[ethernetHeaderLen:]

	// IHL is in 32-bit words
	headerLen := int(ip[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(ip) < headerLen {
		return 0, core.ErrTooShort
	}

	pkt.Network = core.NetworkIPv4
	pkt.TTL = ip[8]
	pkt.Proto = ip[9]
	pkt.SrcAddr = netip.AddrFrom4([4]byte(ip[12:16]))
	pkt.DstAddr = netip.AddrFrom4([4]byte(ip[16:20]))

	return ethernetHeaderLen + headerLen, nil
}

// decodeIPv6 fills the network fields, walks the extension header chain and
// returns the transport offset from frame start.
func decodeIPv6(frame []byte, pkt *core.ParsedPacket) (int, error) {
	if len(frame) < ethernetHeaderLen+ipv6HeaderLen {
		return 0, core.ErrTooShort
	}
	ip := frame[ethernetHeaderLen:]

	pkt.Network = core.NetworkIPv6
	pkt.TTL = ip[7]
	pkt.SrcAddr = netip.AddrFrom16([16]byte(ip[8:24]))
	pkt.DstAddr = netip.AddrFrom16([16]byte(ip[24:40]))

	off, proto, hops, err := walkExtensions(frame, ip[6])
	pkt.ExtHeaders = hops
	if err != nil {
		return 0, err
	}
	pkt.Proto = proto
	return off, nil
}

// walkExtensions follows the next-header chain starting right after the IPv6
// base header. It returns the offset where the chain terminated, the
// terminating protocol number and the number of extension headers skipped.
// Every iteration advances by at least 8 bytes and at most
// MaxExtensionHeaders headers are accepted.
func walkExtensions(frame []byte, next uint8) (off int, proto uint8, hops int, err error) {
	off = ethernetHeaderLen + ipv6HeaderLen
	for {
		var extLen int
		switch next {
		case extHopByHop, extRouting, extDestOptions, extAuthHeader:
			// next header + length byte must be readable
			if off+2 > len(frame) {
				return off, next, hops, core.ErrTruncatedExtension
			}
			// length is in 8-octet units, not counting the first 8
			extLen = (int(frame[off+1]) + 1) * 8
		case extFragment:
			extLen = fragmentHeaderLen
		default:
			return off, next, hops, nil
		}

		if hops == MaxExtensionHeaders {
			return off, next, hops, core.ErrExtChainTooLong
		}
		if off+extLen > len(frame) {
			return off, next, hops, core.ErrTruncatedExtension
		}
		next = frame[off]
		off += extLen
		hops++
	}
}
