package nic

import (
	"fmt"
	"sync/atomic"

	"firestige.xyz/fastdrop/internal/core"
)

// Pool is a fixed set of equally sized buffers carved from one slab. Buffers
// move between a shared free list and small per-queue caches; a queue's
// cache is only touched by the goroutine polling that queue.
type Pool struct {
	bufSize   int
	slab      []byte
	inUse     []atomic.Bool
	free      chan int32
	caches    [][]int32
	cacheSize int

	allocs         atomic.Uint64
	releases       atomic.Uint64
	doubleReleases atomic.Uint64
	exhausted      atomic.Uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size           int
	InUse          uint64
	Allocs         uint64
	Releases       uint64
	DoubleReleases uint64
	Exhausted      uint64
}

// Free returns the number of buffers not held by anyone.
func (s PoolStats) Free() uint64 {
	return uint64(s.Size) - s.InUse
}

// NewPool allocates opts.Size buffers for queues receive queues.
func NewPool(opts PoolOptions, queues int) (*Pool, error) {
	if opts.Size < 1 || opts.BufferSize < 1 || queues < 1 {
		return nil, fmt.Errorf("%w: pool size %d, buffer size %d, queues %d",
			core.ErrConfigInvalid, opts.Size, opts.BufferSize, queues)
	}
	if opts.Cache < 0 || opts.Cache > opts.Size {
		return nil, fmt.Errorf("%w: pool cache %d", core.ErrConfigInvalid, opts.Cache)
	}

	p := &Pool{
		bufSize:   opts.BufferSize,
		slab:      make([]byte, opts.Size*opts.BufferSize),
		inUse:     make([]atomic.Bool, opts.Size),
		free:      make(chan int32, opts.Size),
		caches:    make([][]int32, queues),
		cacheSize: opts.Cache,
	}
	for i := 0; i < opts.Size; i++ {
		p.free <- int32(i)
	}
	for q := range p.caches {
		p.caches[q] = make([]int32, 0, opts.Cache+1)
	}
	return p, nil
}

// Get takes a buffer for queue. The returned slice has BufferSize bytes and
// is only valid until Put.
func (p *Pool) Get(queue int) ([]byte, int32, error) {
	if queue < 0 || queue >= len(p.caches) {
		return nil, -1, fmt.Errorf("%w: %d", core.ErrQueueOutOfRange, queue)
	}

	slot, ok := p.take(queue)
	if !ok {
		p.exhausted.Add(1)
		return nil, -1, core.ErrPoolExhausted
	}
	p.inUse[slot].Store(true)
	p.allocs.Add(1)
	return p.Buffer(slot), slot, nil
}

func (p *Pool) take(queue int) (int32, bool) {
	cache := p.caches[queue]
	if n := len(cache); n > 0 {
		slot := cache[n-1]
		p.caches[queue] = cache[:n-1]
		return slot, true
	}

	// Refill half the cache from the shared list, then hand out one.
	want := max(p.cacheSize/2, 1)
refill:
	for len(cache) < want {
		select {
		case slot := <-p.free:
			cache = append(cache, slot)
		default:
			break refill
		}
	}
	if len(cache) == 0 {
		return -1, false
	}
	slot := cache[len(cache)-1]
	p.caches[queue] = cache[:len(cache)-1]
	return slot, true
}

// Put returns slot to queue's cache. A slot that is not currently handed out
// is rejected with core.ErrDoubleRelease and counted.
func (p *Pool) Put(queue int, slot int32) error {
	if slot < 0 || int(slot) >= len(p.inUse) {
		return fmt.Errorf("%w: slot %d", core.ErrUnknownBuffer, slot)
	}
	if queue < 0 || queue >= len(p.caches) {
		return fmt.Errorf("%w: %d", core.ErrQueueOutOfRange, queue)
	}
	if !p.inUse[slot].CompareAndSwap(true, false) {
		p.doubleReleases.Add(1)
		return fmt.Errorf("%w: slot %d", core.ErrDoubleRelease, slot)
	}
	p.releases.Add(1)

	cache := append(p.caches[queue], slot)
	if len(cache) > p.cacheSize {
		// Flush the older half back to the shared list.
		n := len(cache) - p.cacheSize/2
		for _, s := range cache[:n] {
			p.free <- s
		}
		cache = append(cache[:0], cache[n:]...)
	}
	p.caches[queue] = cache
	return nil
}

// Buffer returns the memory of slot.
func (p *Pool) Buffer(slot int32) []byte {
	off := int(slot) * p.bufSize
	return p.slab[off : off+p.bufSize : off+p.bufSize]
}

// BufferSize returns the size of each buffer.
func (p *Pool) BufferSize() int {
	return p.bufSize
}

// Stats returns a snapshot of the pool counters. It is safe to call from any
// goroutine.
func (p *Pool) Stats() PoolStats {
	// Releases first so InUse never goes negative.
	releases := p.releases.Load()
	allocs := p.allocs.Load()
	return PoolStats{
		Size:           len(p.inUse),
		InUse:          allocs - releases,
		Allocs:         allocs,
		Releases:       releases,
		DoubleReleases: p.doubleReleases.Load(),
		Exhausted:      p.exhausted.Load(),
	}
}
