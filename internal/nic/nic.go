// Package nic provides the receive side of a network port: a Provider
// delivering bursts of frames per queue, and the fixed buffer Pool backing
// them.
package nic

import (
	"time"

	"firestige.xyz/fastdrop/internal/core"
)

// Provider delivers received frames. Each queue is polled by exactly one
// worker; RxBurst and Release for a queue are called from that worker only.
type Provider interface {
	// Configure opens queues receive queues. It must be called once before
	// RxBurst.
	Configure(queues int) error

	// RxBurst fills frames with up to len(frames) received frames without
	// blocking and returns how many were filled.
	RxBurst(queue int, frames []core.Frame) int

	// Release hands a frame's buffer back. Every frame returned by RxBurst
	// is released exactly once.
	Release(frame core.Frame)

	// Close releases the queues. No worker may be polling.
	Close() error
}

// PoolOptions sizes the buffer pool a provider allocates on Configure.
type PoolOptions struct {
	Size       int // Number of buffers
	BufferSize int // Bytes per buffer; longer frames are truncated
	Cache      int // Per-queue cache
}

// AFPacketOptions configures the AF_PACKET provider.
type AFPacketOptions struct {
	Interface    string
	SnapLen      int
	RingSizeMB   int           // Ring memory per queue
	BlockTimeout time.Duration // Retire a partly filled block after this long
	PollTimeout  time.Duration // 0 makes RxBurst non-blocking
	FanoutID     uint16
	KernelFilter bool // Drop non-IP frames in the kernel
}

// RxStats are receive counters of a provider.
type RxStats struct {
	Received    uint64 // Frames seen by the kernel sockets
	KernelDrops uint64 // Frames the kernel dropped for lack of ring space
	NoBuffer    uint64 // Frames lost for lack of a pool buffer
	RxErrors    uint64
}
