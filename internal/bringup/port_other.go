//go:build !linux

package bringup

import (
	"os"

	"firestige.xyz/fastdrop/internal/core"
)

var geteuid = os.Geteuid

type netlinkLinks struct{}

func (netlinkLinks) LinkUp(string) error { return core.ErrUnsupported }

func (netlinkLinks) SetPromisc(string, bool) error { return core.ErrUnsupported }

type ethtoolChannels struct{}

func (ethtoolChannels) RxChannels(string) (uint32, error) { return 0, core.ErrUnsupported }
