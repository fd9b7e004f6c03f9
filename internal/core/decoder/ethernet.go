package decoder

import (
	"encoding/binary"

	"firestige.xyz/fastdrop/internal/core"
)

const (
	ethernetHeaderLen = 14

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// decodeEthernet copies the MAC addresses into pkt and returns the ethertype.
// The caller guarantees len(frame) >= ethernetHeaderLen.
func decodeEthernet(frame []byte, pkt *core.ParsedPacket) uint16 {
	copy(pkt.DstMAC[:], frame[0:6])
	copy(pkt.SrcMAC[:], frame[6:12])
	pkt.EtherType = binary.BigEndian.Uint16(frame[12:14])
	return pkt.EtherType
}
