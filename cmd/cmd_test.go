package cmd

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func udpFrame(t *testing.T, src string, srcPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.IP{192, 0, 2, 1},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("query")))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestRulesValidate(t *testing.T) {
	path := writeRules(t, "rules.json", `[
		{"ip": "10.0.0.1", "comment": "scanner"},
		{"ip": "not-an-ip"},
		{"port": 80, "block": false}
	]`)

	var buf bytes.Buffer
	require.NoError(t, runRulesValidate(path, &buf))
	assert.Equal(t, "VALID: 2 rule(s), 1 blocking, 1 allowing\n", buf.String())
}

func TestRulesValidateInvalid(t *testing.T) {
	path := writeRules(t, "rules.json", `[{"port": 70000}]`)

	var buf bytes.Buffer
	err := runRulesValidate(path, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
	assert.Empty(t, buf.String())
}

func TestRulesShow(t *testing.T) {
	path := writeRules(t, "rules.yaml", `
- ip: 10.0.0.1
  comment: scanner
- port: 80
  block: false
`)

	var buf bytes.Buffer
	require.NoError(t, runRulesShow(path, false, &buf))
	assert.Equal(t, "- Rule 0: scanner\n- Rule 1: (No comment)\n", buf.String())

	buf.Reset()
	require.NoError(t, runRulesShow(path, true, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "- Rule 0: scanner  ["))
}

func TestDecode(t *testing.T) {
	capture := writeCapture(t,
		udpFrame(t, "10.0.0.1", 5353),
		udpFrame(t, "10.0.0.2", 80),
		udpFrame(t, "10.0.0.2", 81),
		make([]byte, 10),
	)
	rules := writeRules(t, "rules.json", `[
		{"ip": "10.0.0.1", "block": true},
		{"port": 80, "block": false}
	]`)

	var buf bytes.Buffer
	require.NoError(t, runDecode(capture, decodeOptions{rules: rules}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "BLOCK")
	assert.Contains(t, lines[0], "src=10.0.0.1")
	assert.Contains(t, lines[1], "ALLOW")
	assert.Contains(t, lines[1], "UDP sport=80 dport=53")
	assert.Contains(t, lines[2], "ALLOW")
	assert.Contains(t, lines[3], "MALFORMED")
	assert.Equal(t, "frames=4 allowed=2 blocked=1 malformed=1", lines[4])
}

func TestDecodeLimitAndHex(t *testing.T) {
	capture := writeCapture(t,
		udpFrame(t, "10.0.0.1", 5353),
		udpFrame(t, "10.0.0.2", 80),
	)
	rules := writeRules(t, "rules.json", `[]`)

	var buf bytes.Buffer
	require.NoError(t, runDecode(capture, decodeOptions{rules: rules, limit: 1, hex: true}, &buf))

	out := buf.String()
	assert.Contains(t, out, "0000  ")
	assert.Contains(t, out, "frames=1 allowed=1 blocked=0 malformed=0")
}

func TestDecodeErrors(t *testing.T) {
	rules := writeRules(t, "rules.json", `[]`)

	var buf bytes.Buffer
	assert.Error(t, runDecode(filepath.Join(t.TempDir(), "missing.pcap"), decodeOptions{rules: rules}, &buf))

	capture := writeCapture(t, udpFrame(t, "10.0.0.1", 1))
	assert.Error(t, runDecode(capture, decodeOptions{rules: filepath.Join(t.TempDir(), "missing.json")}, &buf))
}

func TestSignalCommandsWithoutAgent(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "fastdrop.pid")

	var buf bytes.Buffer
	assert.Error(t, runStop(missing, time.Second, &buf))
	assert.Error(t, runReload(missing, &buf))
	assert.Empty(t, buf.String())
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "stop", "reload", "rules", "decode"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
