//go:build !linux

package nic

import (
	"fmt"

	"firestige.xyz/fastdrop/internal/core"
)

// AFPacket is only available on Linux.
type AFPacket struct {
	opts AFPacketOptions
}

func NewAFPacket(opts AFPacketOptions, _ PoolOptions) *AFPacket {
	return &AFPacket{opts: opts}
}

func (a *AFPacket) Configure(int) error {
	return fmt.Errorf("afpacket %s: %w", a.opts.Interface, core.ErrUnsupported)
}

func (a *AFPacket) RxBurst(int, []core.Frame) int { return 0 }

func (a *AFPacket) Release(core.Frame) {}

func (a *AFPacket) Pool() *Pool { return nil }

func (a *AFPacket) Stats() RxStats { return RxStats{} }

func (a *AFPacket) Close() error { return nil }
