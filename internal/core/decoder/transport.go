package decoder

import (
	"encoding/binary"

	"firestige.xyz/fastdrop/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	protocolTCP = 6
	protocolUDP = 17
)

// decodeTransport classifies pkt.Proto and reads the ports. A TCP or UDP
// header that does not fit in the frame fails the decode rather than
// downgrading the packet to Other.
func decodeTransport(frame []byte, off int, pkt *core.ParsedPacket) error {
	var need int
	switch pkt.Proto {
	case protocolTCP:
		need = tcpHeaderMinLen
	case protocolUDP:
		need = udpHeaderLen
	default:
		pkt.L4 = core.L4Other
		pkt.L4Offset = off
		return nil
	}

	if len(frame)-off < need {
		return core.ErrTooShort
	}

	if pkt.Proto == protocolTCP {
		pkt.L4 = core.L4TCP
	} else {
		pkt.L4 = core.L4UDP
	}
	pkt.L4Offset = off
	pkt.SrcPort = binary.BigEndian.Uint16(frame[off : off+2])
	pkt.DstPort = binary.BigEndian.Uint16(frame[off+2 : off+4])
	return nil
}
