//go:build !linux

package pipeline

import "firestige.xyz/fastdrop/internal/core"

func pinToCPU(int) error {
	return core.ErrUnsupported
}
