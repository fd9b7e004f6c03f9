package nic

import "golang.org/x/net/bpf"

// ipOnlyProgram accepts IPv4 and IPv6 frames and drops everything else
// before it reaches the ring.
func ipOnlyProgram(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x86DD, SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

// ipOnlyFilter assembles ipOnlyProgram for SO_ATTACH_FILTER.
func ipOnlyFilter(snapLen uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(ipOnlyProgram(snapLen))
}
