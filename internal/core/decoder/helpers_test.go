package decoder

import "encoding/binary"

var (
	testDstMAC = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	testSrcMAC = []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
)

func ethHeader(etherType uint16) []byte {
	h := make([]byte, 0, ethernetHeaderLen)
	h = append(h, testDstMAC...)
	h = append(h, testSrcMAC...)
	return binary.BigEndian.AppendUint16(h, etherType)
}

// ipv4Header builds an IPv4 header of ihl words with zero-filled options.
func ipv4Header(ihl int, proto byte, src, dst [4]byte) []byte {
	h := make([]byte, ihl*4)
	h[0] = 0x40 | byte(ihl&0x0F)
	h[8] = 64 // TTL
	h[9] = proto
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	return h
}

func ipv6Header(next byte, src, dst [16]byte) []byte {
	h := make([]byte, ipv6HeaderLen)
	h[0] = 0x60
	h[6] = next
	h[7] = 255 // Hop limit
	copy(h[8:24], src[:])
	copy(h[24:40], dst[:])
	return h
}

// extHeader builds a length-encoded IPv6 extension header of (lenField+1)*8 bytes.
func extHeader(next byte, lenField byte) []byte {
	h := make([]byte, (int(lenField)+1)*8)
	h[0] = next
	h[1] = lenField
	return h
}

func fragHeader(next byte) []byte {
	h := make([]byte, fragmentHeaderLen)
	h[0] = next
	return h
}

func tcpHeader(src, dst uint16) []byte {
	h := make([]byte, tcpHeaderMinLen)
	binary.BigEndian.PutUint16(h[0:2], src)
	binary.BigEndian.PutUint16(h[2:4], dst)
	h[12] = 0x50 // Data offset 5
	h[13] = 0x02 // SYN
	return h
}

func udpHeader(src, dst uint16) []byte {
	h := make([]byte, udpHeaderLen)
	binary.BigEndian.PutUint16(h[0:2], src)
	binary.BigEndian.PutUint16(h[2:4], dst)
	binary.BigEndian.PutUint16(h[4:6], udpHeaderLen)
	return h
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	testSrc4 = [4]byte{10, 0, 0, 1}
	testDst4 = [4]byte{10, 0, 0, 2}
	testSrc6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 15: 0x01}
	testDst6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 15: 0x02}
)
