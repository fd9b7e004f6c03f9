// Package pipeline runs the receive workers: each worker polls one receive
// queue in bursts, decodes every frame, matches it against the rule set and
// releases it.
package pipeline

import (
	"fmt"
	"net/netip"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

// State is the lifecycle state of a worker.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBackoff
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Matcher decides whether a decoded packet is allowed.
type Matcher interface {
	MatchPacket(pkt *core.ParsedPacket) bool
}

// Acceptor receives allowed frames. The frame is released right after Accept
// returns; implementations must copy what they keep.
type Acceptor interface {
	Accept(frame core.Frame, pkt *core.ParsedPacket)
}

// BlockRecorder is told about every blocked packet.
type BlockRecorder interface {
	RecordBlock(worker int, pkt *core.ParsedPacket)
}

// Readiness reports whether the host and the port were brought up.
type Readiness interface {
	Ready() bool
}

// NopAcceptor drops allowed frames. Forwarding is not done by this process.
type NopAcceptor struct{}

func (NopAcceptor) Accept(core.Frame, *core.ParsedPacket) {}

// TraceRecorder logs blocked packets at trace level.
type TraceRecorder struct{}

func (TraceRecorder) RecordBlock(worker int, pkt *core.ParsedPacket) {
	logger := log.GetLogger()
	if !logger.IsTraceEnabled() {
		return
	}
	logger.WithField("worker", worker).Tracef("blocked %s", endpoint(pkt.SrcAddr, pkt.SrcPort, pkt.HasPorts()))
}

func endpoint(addr netip.Addr, port uint16, hasPort bool) string {
	if !hasPort {
		return addr.String()
	}
	return netip.AddrPortFrom(addr, port).String()
}
