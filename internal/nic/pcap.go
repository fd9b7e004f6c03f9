package nic

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type recordedFrame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// PcapReplay replays an Ethernet capture file. Frame i is delivered on queue
// i mod queues, each exactly once.
type PcapReplay struct {
	path     string
	poolOpts PoolOptions

	pool      *Pool
	pending   [][]recordedFrame // Per queue, owned by the queue's worker
	delivered atomic.Uint64
}

// NewPcapReplay returns an unconfigured provider for the pcap or pcapng file
// at path.
func NewPcapReplay(path string, pool PoolOptions) *PcapReplay {
	return &PcapReplay{path: path, poolOpts: pool}
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// ReadCapture opens a pcap or pcapng file.
func ReadCapture(r io.Reader) (gopacket.PacketDataSource, error) {
	pr, err := newPacketReader(r)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func newPacketReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var pr packetReader
	if bytes.Equal(magic, pcapngMagic) {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%w: link type %s", core.ErrUnsupported, pr.LinkType())
	}
	return pr, nil
}

// Configure reads the whole capture and splits it across queues.
func (p *PcapReplay) Configure(queues int) error {
	if p.pending != nil {
		return fmt.Errorf("pcap %s: already configured", p.path)
	}
	if queues < 1 {
		return fmt.Errorf("%w: %d", core.ErrQueueOutOfRange, queues)
	}

	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", p.path, err)
	}
	defer f.Close()

	r, err := newPacketReader(f)
	if err != nil {
		return fmt.Errorf("pcap %s: %w", p.path, err)
	}

	pool, err := NewPool(p.poolOpts, queues)
	if err != nil {
		return err
	}

	pending := make([][]recordedFrame, queues)
	total := 0
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("pcap %s: failed to read frame %d: %w", p.path, total, err)
		}
		q := total % queues
		pending[q] = append(pending[q], recordedFrame{data: bytes.Clone(data), ci: ci})
		total++
	}

	p.pool = pool
	p.pending = pending
	log.GetLogger().WithFields(map[string]interface{}{"path": p.path, "frames": total, "queues": queues}).
		Info("pcap replay loaded")
	return nil
}

// RxBurst delivers the next recorded frames of queue. Frames longer than a
// pool buffer are truncated to the buffer size.
func (p *PcapReplay) RxBurst(queue int, frames []core.Frame) int {
	if queue < 0 || queue >= len(p.pending) {
		return 0
	}

	n := 0
	for n < len(frames) && len(p.pending[queue]) > 0 {
		buf, slot, err := p.pool.Get(queue)
		if err != nil {
			break
		}
		rec := p.pending[queue][0]
		p.pending[queue][0] = recordedFrame{}
		p.pending[queue] = p.pending[queue][1:]

		frames[n] = core.Frame{
			Data:      buf,
			Length:    copy(buf, rec.data),
			Timestamp: rec.ci.Timestamp,
			Queue:     queue,
			Slot:      slot,
		}
		n++
	}
	p.delivered.Add(uint64(n))
	return n
}

// Release returns the frame's buffer to the pool.
func (p *PcapReplay) Release(frame core.Frame) {
	if err := p.pool.Put(frame.Queue, frame.Slot); err != nil {
		log.GetLogger().WithError(err).WithField("queue", frame.Queue).Error("buffer release rejected")
	}
}

// Stats counts delivered frames as received. Replay never loses a frame:
// a burst that finds the pool empty leaves the rest pending.
func (p *PcapReplay) Stats() RxStats {
	return RxStats{Received: p.delivered.Load()}
}

// Pool returns the buffer pool, nil before Configure.
func (p *PcapReplay) Pool() *Pool {
	return p.pool
}

// Close drops undelivered frames.
func (p *PcapReplay) Close() error {
	p.pending = nil
	return nil
}
