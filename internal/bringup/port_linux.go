//go:build linux

package bringup

import (
	"errors"
	"fmt"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"firestige.xyz/fastdrop/internal/core"
)

var geteuid = unix.Geteuid

type netlinkLinks struct{}

func (netlinkLinks) LinkUp(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", iface, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to set %s up: %w", iface, err)
	}
	return nil
}

func (netlinkLinks) SetPromisc(iface string, on bool) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", iface, err)
	}
	if on {
		return netlink.SetPromiscOn(link)
	}
	return netlink.SetPromiscOff(link)
}

type ethtoolChannels struct{}

func (ethtoolChannels) RxChannels(iface string) (uint32, error) {
	eth, err := ethtool.NewEthtool()
	if err != nil {
		return 0, fmt.Errorf("failed to open ethtool handle: %w", err)
	}
	defer eth.Close()

	ch, err := eth.GetChannels(iface)
	if errors.Is(err, unix.EOPNOTSUPP) {
		return 0, fmt.Errorf("%w: %s does not report channels", core.ErrUnsupported, iface)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read channels of %s: %w", iface, err)
	}
	return max(ch.CombinedCount, ch.RxCount), nil
}
