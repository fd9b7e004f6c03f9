package nic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingGeometry(t *testing.T) {
	tests := []struct {
		name     string
		ringMB   int
		snapLen  int
		pageSize int
	}{
		{"default", 64, 2048, 4096},
		{"jumbo", 128, 9000, 4096},
		{"small", 1, 64, 4096},
		{"large pages", 32, 1514, 65536},
		{"odd snap", 16, 65535, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, block, blocks, err := ringGeometry(tt.ringMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)

			assert.Zero(t, frame%tpacketAlignment, "frame size must be aligned")
			assert.GreaterOrEqual(t, frame, tt.snapLen+tpacketHdrLen)
			assert.Zero(t, block%tt.pageSize, "block size must be page aligned")
			assert.Zero(t, block%frame, "block size must hold whole frames")
			assert.GreaterOrEqual(t, blocks, 1)
		})
	}
}

func TestRingGeometryDefault(t *testing.T) {
	frame, block, blocks, err := ringGeometry(64, 2048, 4096)
	require.NoError(t, err)
	assert.Equal(t, 2112, frame)
	assert.Equal(t, 135168, block)
	assert.Equal(t, 496, blocks)
}

func TestRingGeometryInvalid(t *testing.T) {
	_, _, _, err := ringGeometry(0, 2048, 4096)
	assert.Error(t, err)
	_, _, _, err = ringGeometry(64, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = ringGeometry(64, 2048, 1000)
	assert.Error(t, err)
}
