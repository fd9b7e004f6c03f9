//go:build linux

package nic

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

// AFPacket receives from one interface through TPACKET_V3 rings, one socket
// per queue. With more than one queue the sockets join a hash fanout group so
// the kernel spreads flows across them.
type AFPacket struct {
	opts     AFPacketOptions
	poolOpts PoolOptions

	pool    *Pool
	handles []*afpacket.TPacket

	rxErrors atomic.Uint64
	dropped  atomic.Uint64 // Received but no buffer left
}

// NewAFPacket returns an unconfigured provider.
func NewAFPacket(opts AFPacketOptions, pool PoolOptions) *AFPacket {
	return &AFPacket{opts: opts, poolOpts: pool}
}

// Configure opens queues sockets on the interface.
func (a *AFPacket) Configure(queues int) error {
	if a.handles != nil {
		return fmt.Errorf("afpacket %s: already configured", a.opts.Interface)
	}
	if queues < 1 {
		return fmt.Errorf("%w: %d", core.ErrQueueOutOfRange, queues)
	}

	frameSize, blockSize, numBlocks, err := ringGeometry(a.opts.RingSizeMB, a.opts.SnapLen, os.Getpagesize())
	if err != nil {
		return fmt.Errorf("afpacket %s: %w", a.opts.Interface, err)
	}

	pool, err := NewPool(a.poolOpts, queues)
	if err != nil {
		return err
	}

	handles := make([]*afpacket.TPacket, 0, queues)
	closeAll := func() {
		for _, h := range handles {
			h.Close()
		}
	}
	for q := 0; q < queues; q++ {
		h, err := a.open(frameSize, blockSize, numBlocks)
		if err != nil {
			closeAll()
			return fmt.Errorf("afpacket %s queue %d: %w", a.opts.Interface, q, err)
		}
		handles = append(handles, h)

		if queues > 1 {
			if err := h.SetFanout(afpacket.FanoutHash, a.opts.FanoutID); err != nil {
				closeAll()
				return fmt.Errorf("afpacket %s queue %d: failed to set fanout: %w", a.opts.Interface, q, err)
			}
		}
		if a.opts.KernelFilter {
			prog, err := ipOnlyFilter(uint32(a.opts.SnapLen))
			if err != nil {
				closeAll()
				return fmt.Errorf("afpacket %s: failed to assemble kernel filter: %w", a.opts.Interface, err)
			}
			if err := h.SetBPF(prog); err != nil {
				closeAll()
				return fmt.Errorf("afpacket %s queue %d: failed to attach kernel filter: %w", a.opts.Interface, q, err)
			}
		}
	}

	a.pool = pool
	a.handles = handles
	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  a.opts.Interface,
		"queues":     queues,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
		"fanout_id":  a.opts.FanoutID,
	}).Info("afpacket rings opened")
	return nil
}

func (a *AFPacket) open(frameSize, blockSize, numBlocks int) (*afpacket.TPacket, error) {
	return afpacket.NewTPacket(
		afpacket.OptInterface(a.opts.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptBlockTimeout(a.opts.BlockTimeout),
		afpacket.OptPollTimeout(a.opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
}

// RxBurst copies up to len(frames) ring frames into pool buffers. It returns
// early when the ring has nothing more within the poll timeout or the pool
// has no free buffer.
func (a *AFPacket) RxBurst(queue int, frames []core.Frame) int {
	if queue < 0 || queue >= len(a.handles) {
		return 0
	}
	h := a.handles[queue]

	n := 0
	for n < len(frames) {
		data, ci, err := h.ZeroCopyReadPacketData()
		if err != nil {
			if err != afpacket.ErrTimeout {
				a.rxErrors.Add(1)
			}
			break
		}

		buf, slot, err := a.pool.Get(queue)
		if err != nil {
			a.dropped.Add(1)
			break
		}
		length := copy(buf, data)
		frames[n] = core.Frame{
			Data:      buf,
			Length:    length,
			Timestamp: ci.Timestamp,
			Queue:     queue,
			Slot:      slot,
		}
		n++
	}
	return n
}

// Release returns the frame's buffer to the pool.
func (a *AFPacket) Release(frame core.Frame) {
	if err := a.pool.Put(frame.Queue, frame.Slot); err != nil {
		log.GetLogger().WithError(err).WithField("queue", frame.Queue).Error("buffer release rejected")
	}
}

// Pool returns the buffer pool, nil before Configure.
func (a *AFPacket) Pool() *Pool {
	return a.pool
}

// Stats returns receive counters summed over all queues.
func (a *AFPacket) Stats() RxStats {
	s := RxStats{RxErrors: a.rxErrors.Load(), NoBuffer: a.dropped.Load()}
	for _, h := range a.handles {
		_, v3, err := h.SocketStats()
		if err != nil {
			continue
		}
		s.Received += uint64(v3.Packets())
		s.KernelDrops += uint64(v3.Drops())
	}
	return s
}

// Close closes every queue socket.
func (a *AFPacket) Close() error {
	for _, h := range a.handles {
		h.Close()
	}
	a.handles = nil
	return nil
}
