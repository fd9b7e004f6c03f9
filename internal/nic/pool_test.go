package nic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/fastdrop/internal/core"
)

func TestNewPoolInvalid(t *testing.T) {
	tests := []struct {
		name   string
		opts   PoolOptions
		queues int
	}{
		{"zero size", PoolOptions{Size: 0, BufferSize: 64}, 1},
		{"zero buffer", PoolOptions{Size: 4, BufferSize: 0}, 1},
		{"zero queues", PoolOptions{Size: 4, BufferSize: 64}, 0},
		{"cache too big", PoolOptions{Size: 4, BufferSize: 64, Cache: 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.opts, tt.queues)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestPoolGetPut(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 4, BufferSize: 128, Cache: 2}, 1)
	require.NoError(t, err)

	buf, slot, err := p.Get(0)
	require.NoError(t, err)
	assert.Len(t, buf, 128)
	assert.Equal(t, 128, cap(buf), "buffer must not reach into its neighbour")

	s := p.Stats()
	assert.Equal(t, uint64(1), s.InUse)
	assert.Equal(t, uint64(3), s.Free())

	require.NoError(t, p.Put(0, slot))
	s = p.Stats()
	assert.Equal(t, uint64(0), s.InUse)
	assert.Equal(t, uint64(1), s.Allocs)
	assert.Equal(t, uint64(1), s.Releases)
}

func TestPoolExhaustion(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 3, BufferSize: 64, Cache: 2}, 2)
	require.NoError(t, err)

	var slots []int32
	for i := 0; i < 3; i++ {
		_, slot, err := p.Get(i % 2)
		require.NoError(t, err)
		slots = append(slots, slot)
	}

	_, _, err = p.Get(0)
	assert.ErrorIs(t, err, core.ErrPoolExhausted)
	_, _, err = p.Get(1)
	assert.ErrorIs(t, err, core.ErrPoolExhausted)
	assert.Equal(t, uint64(2), p.Stats().Exhausted)

	// A buffer released on one queue flows back to the other through the
	// shared list once the cache overflows.
	for _, slot := range slots {
		require.NoError(t, p.Put(0, slot))
	}
	_, _, err = p.Get(1)
	assert.NoError(t, err)
}

func TestPoolBuffersAreDistinct(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 8, BufferSize: 16, Cache: 4}, 1)
	require.NoError(t, err)

	seen := make(map[int32]bool)
	for i := 0; i < 8; i++ {
		buf, slot, err := p.Get(0)
		require.NoError(t, err)
		require.False(t, seen[slot], "slot %d handed out twice", slot)
		seen[slot] = true
		buf[0] = byte(slot)
	}
	for slot := range seen {
		assert.Equal(t, byte(slot), p.Buffer(slot)[0])
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 2, BufferSize: 64, Cache: 1}, 1)
	require.NoError(t, err)

	_, slot, err := p.Get(0)
	require.NoError(t, err)
	require.NoError(t, p.Put(0, slot))

	err = p.Put(0, slot)
	assert.ErrorIs(t, err, core.ErrDoubleRelease)
	assert.Equal(t, uint64(1), p.Stats().DoubleReleases)
	assert.Equal(t, uint64(1), p.Stats().Releases)
}

func TestPoolPutInvalid(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 2, BufferSize: 64}, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Put(0, 2), core.ErrUnknownBuffer)
	assert.ErrorIs(t, p.Put(0, -1), core.ErrUnknownBuffer)

	_, slot, err := p.Get(0)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Put(3, slot), core.ErrQueueOutOfRange)

	_, _, err = p.Get(1)
	assert.ErrorIs(t, err, core.ErrQueueOutOfRange)
}

func TestPoolZeroCache(t *testing.T) {
	p, err := NewPool(PoolOptions{Size: 1, BufferSize: 64, Cache: 0}, 2)
	require.NoError(t, err)

	_, slot, err := p.Get(0)
	require.NoError(t, err)
	require.NoError(t, p.Put(0, slot))

	_, _, err = p.Get(1)
	assert.NoError(t, err, "with no cache the buffer goes straight back to the shared list")
}

func TestPoolConcurrentQueues(t *testing.T) {
	const queues = 4
	p, err := NewPool(PoolOptions{Size: 64, BufferSize: 32, Cache: 8}, queues)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for q := 0; q < queues; q++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_, slot, err := p.Get(q)
				if err != nil {
					continue
				}
				if err := p.Put(q, slot); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(q)
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, uint64(0), s.InUse)
	assert.Equal(t, s.Allocs, s.Releases)
	assert.Equal(t, uint64(0), s.DoubleReleases)
}
