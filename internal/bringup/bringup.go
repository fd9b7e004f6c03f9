// Package bringup prepares the host and the network port before any worker
// starts. Every step is explicit and fallible; nothing here runs from a
// constructor, and nothing mounts filesystems or changes kernel parameters.
package bringup

import (
	"errors"
	"fmt"
	"sync"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

// LinkController changes the administrative state of an interface.
type LinkController interface {
	LinkUp(iface string) error
	SetPromisc(iface string, on bool) error
}

// ChannelInspector reports how many receive channels an interface has. It
// returns an error wrapping core.ErrUnsupported when the driver cannot tell.
type ChannelInspector interface {
	RxChannels(iface string) (uint32, error)
}

// Check is the outcome of one bring-up step.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Report collects the bring-up steps. It is ready once the environment was
// checked and the port was brought up (or deliberately skipped) with every
// step passing.
type Report struct {
	mu         sync.Mutex
	checks     []Check
	envChecked bool
	portDone   bool
}

// Ready reports whether workers may be launched.
func (r *Report) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.envChecked || !r.portDone {
		return false
	}
	for _, c := range r.checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Checks returns the recorded steps in order.
func (r *Report) Checks() []Check {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Check(nil), r.checks...)
}

func (r *Report) record(c Check) {
	r.mu.Lock()
	r.checks = append(r.checks, c)
	r.mu.Unlock()

	l := log.GetLogger().WithField("check", c.Name)
	if c.Passed {
		l.Infof("bring-up check passed: %s", c.Detail)
	} else {
		l.Errorf("bring-up check failed: %s", c.Detail)
	}
}

// Bringup runs the bring-up steps and keeps their Report.
type Bringup struct {
	links    LinkController
	channels ChannelInspector
	geteuid  func() int

	report  Report
	promisc string // Interface left in promiscuous mode
}

// New returns a Bringup using the host's netlink and ethtool interfaces.
func New() *Bringup {
	return NewWith(netlinkLinks{}, ethtoolChannels{}, geteuid)
}

// NewWith returns a Bringup with explicit collaborators.
func NewWith(links LinkController, channels ChannelInspector, euid func() int) *Bringup {
	return &Bringup{links: links, channels: channels, geteuid: euid}
}

// Report returns the steps recorded so far.
func (b *Bringup) Report() *Report {
	return &b.report
}

// Ready reports whether every step passed.
func (b *Bringup) Ready() bool {
	return b.report.Ready()
}

// CheckEnvironment runs the enabled host checks. The first failure is
// returned wrapped in core.ErrNotReady; later checks still run so the report
// is complete.
func (b *Bringup) CheckEnvironment(opts EnvOptions) error {
	var errs []error
	run := func(name string, fn func() (string, error)) {
		detail, err := fn()
		if err != nil {
			b.report.record(Check{Name: name, Detail: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		b.report.record(Check{Name: name, Passed: true, Detail: detail})
	}

	if opts.RequireRoot {
		run("root", func() (string, error) { return checkRoot(b.geteuid) })
	}
	if opts.RequireHugepages {
		run("hugepages", func() (string, error) { return checkHugepages(opts.meminfoPath()) })
		run("hugetlbfs", func() (string, error) { return checkHugetlbfs(opts.mountsPath()) })
	}

	b.report.mu.Lock()
	b.report.envChecked = true
	b.report.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrNotReady, errors.Join(errs...))
	}
	return nil
}

// BringUpPort sets iface up and promiscuous and verifies it has at least
// queues receive channels.
func (b *Bringup) BringUpPort(iface string, queues int) error {
	fail := func(name string, err error) error {
		b.report.record(Check{Name: name, Detail: err.Error()})
		return fmt.Errorf("%w: %s %s: %w", core.ErrNotReady, name, iface, err)
	}

	if err := b.links.LinkUp(iface); err != nil {
		return fail("link", err)
	}
	b.report.record(Check{Name: "link", Passed: true, Detail: iface + " up"})

	if err := b.links.SetPromisc(iface, true); err != nil {
		return fail("promisc", err)
	}
	b.promisc = iface
	b.report.record(Check{Name: "promisc", Passed: true, Detail: iface + " promiscuous"})

	n, err := b.channels.RxChannels(iface)
	switch {
	case errors.Is(err, core.ErrUnsupported) && queues == 1:
		b.report.record(Check{Name: "channels", Passed: true, Detail: "channel count not reported, single queue"})
	case err != nil:
		return fail("channels", err)
	case int(n) < queues:
		return fail("channels", fmt.Errorf("%d receive channels, %d queues configured", n, queues))
	default:
		b.report.record(Check{Name: "channels", Passed: true, Detail: fmt.Sprintf("%d receive channels for %d queues", n, queues)})
	}

	b.markPortDone()
	return nil
}

// SkipPort marks the port step as done without touching any interface, for
// providers that do not own one.
func (b *Bringup) SkipPort(reason string) {
	b.report.record(Check{Name: "port", Passed: true, Detail: "skipped: " + reason})
	b.markPortDone()
}

func (b *Bringup) markPortDone() {
	b.report.mu.Lock()
	b.report.portDone = true
	b.report.mu.Unlock()
}

// ReleasePort turns promiscuous mode back off on the interface set up by
// BringUpPort. It is a no-op otherwise.
func (b *Bringup) ReleasePort() error {
	if b.promisc == "" {
		return nil
	}
	iface := b.promisc
	b.promisc = ""
	if err := b.links.SetPromisc(iface, false); err != nil {
		return fmt.Errorf("failed to leave promiscuous mode on %s: %w", iface, err)
	}
	log.GetLogger().WithField("interface", iface).Info("port released")
	return nil
}
