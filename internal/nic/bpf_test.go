package nic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"
)

func frameWithEtherType(hi, lo byte) []byte {
	f := make([]byte, 60)
	f[12], f[13] = hi, lo
	return f
}

func TestIPOnlyProgram(t *testing.T) {
	vm, err := bpf.NewVM(ipOnlyProgram(2048))
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
		pass  bool
	}{
		{"ipv4", frameWithEtherType(0x08, 0x00), true},
		{"ipv6", frameWithEtherType(0x86, 0xDD), true},
		{"arp", frameWithEtherType(0x08, 0x06), false},
		{"vlan", frameWithEtherType(0x81, 0x00), false},
		{"truncated", []byte{1, 2, 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.Run(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, got > 0)
		})
	}
}

func TestIPOnlyFilterAssembles(t *testing.T) {
	raw, err := ipOnlyFilter(2048)
	require.NoError(t, err)
	assert.Len(t, raw, 5)
}
