// Package nictest provides a scripted nic.Provider that accounts for every
// buffer it hands out.
package nictest

import (
	"bytes"
	"sync"

	"firestige.xyz/fastdrop/internal/core"
)

// Provider delivers frames queued with Enqueue and records every allocation
// and release. It is safe for concurrent use.
type Provider struct {
	mu          sync.Mutex
	queues      int
	configured  bool
	closed      bool
	pending     map[int][][]byte
	outstanding map[int32]int // Slot -> queue
	nextSlot    int32
	polls       map[int]int

	allocated      int
	released       int
	doubleReleases int
	wrongQueue     int

	// ConfigureErr is returned by Configure when set.
	ConfigureErr error
}

// New returns an empty provider.
func New() *Provider {
	return &Provider{
		pending:     make(map[int][][]byte),
		outstanding: make(map[int32]int),
		polls:       make(map[int]int),
	}
}

// Enqueue schedules frames for delivery on queue, in order.
func (p *Provider) Enqueue(queue int, frames ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range frames {
		p.pending[queue] = append(p.pending[queue], bytes.Clone(f))
	}
}

func (p *Provider) Configure(queues int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConfigureErr != nil {
		return p.ConfigureErr
	}
	p.queues = queues
	p.configured = true
	return nil
}

func (p *Provider) RxBurst(queue int, frames []core.Frame) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls[queue]++

	n := 0
	for n < len(frames) && len(p.pending[queue]) > 0 {
		data := p.pending[queue][0]
		p.pending[queue] = p.pending[queue][1:]

		slot := p.nextSlot
		p.nextSlot++
		p.outstanding[slot] = queue
		p.allocated++

		frames[n] = core.Frame{Data: data, Length: len(data), Queue: queue, Slot: slot}
		n++
	}
	return n
}

func (p *Provider) Release(frame core.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.outstanding[frame.Slot]
	if !ok {
		p.doubleReleases++
		return
	}
	if q != frame.Queue {
		p.wrongQueue++
	}
	delete(p.outstanding, frame.Slot)
	p.released++
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Allocated returns how many frames RxBurst handed out.
func (p *Provider) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Released returns how many frames were released once.
func (p *Provider) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Outstanding returns how many handed out frames are not released yet.
func (p *Provider) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

// DoubleReleases returns how many releases named a frame that was not
// outstanding.
func (p *Provider) DoubleReleases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doubleReleases
}

// WrongQueueReleases returns how many frames were released with a queue
// other than the one they were received on.
func (p *Provider) WrongQueueReleases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrongQueue
}

// Pending returns how many frames are still queued across all queues.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, frames := range p.pending {
		n += len(frames)
	}
	return n
}

// Polls returns how many times queue was polled.
func (p *Provider) Polls(queue int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls[queue]
}

// Queues returns the configured queue count.
func (p *Provider) Queues() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queues
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
