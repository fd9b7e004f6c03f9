package filter

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

// Engine holds the active rule set. The set is replaced as a whole; readers
// always see either the old or the new set, never a mix. Workers are expected
// to be stopped while a new set is installed.
type Engine struct {
	rules atomic.Pointer[RuleSet]
}

// NewEngine returns an engine with rs active. A nil rs allows everything.
func NewEngine(rs RuleSet) *Engine {
	e := &Engine{}
	e.Install(rs)
	return e
}

// Match reports whether a packet from src and srcPort is allowed. The first
// matching rule decides; no match allows. isTCP is accepted for
// protocol-aware rules and does not take part in matching yet.
func (e *Engine) Match(src netip.Addr, srcPort uint16, isTCP bool) bool {
	_ = isTCP
	return e.load().match(src, srcPort, true)
}

// MatchPacket matches a decoded packet by its source address and port. A
// packet without transport ports only matches rules without a port.
func (e *Engine) MatchPacket(p *core.ParsedPacket) bool {
	if p.HasPorts() {
		return e.Match(p.SrcAddr, p.SrcPort, p.IsTCP())
	}
	return e.load().match(p.SrcAddr, 0, false)
}

// Install publishes rs as the active rule set. rs must not be modified
// afterwards.
func (e *Engine) Install(rs RuleSet) {
	if rs == nil {
		rs = RuleSet{}
	}
	e.rules.Store(&rs)
}

// Reload decodes a JSON rule document and installs it. On error the active
// set is left untouched.
func (e *Engine) Reload(doc []byte) error {
	rs, err := Load(doc)
	if err != nil {
		return err
	}
	e.Install(rs)
	return nil
}

// ReloadFile is Reload for a rule file, see LoadFile.
func (e *Engine) ReloadFile(path string) error {
	rs, err := LoadFile(path)
	if err != nil {
		return err
	}
	e.Install(rs)
	log.GetLogger().WithField("path", path).Infof("loaded %d filtering rules", len(rs))
	return nil
}

// Rules returns the active rule set. The result must not be modified.
func (e *Engine) Rules() RuleSet {
	return e.load()
}

// Len returns the number of active rules.
func (e *Engine) Len() int {
	return len(e.load())
}

// Describe returns one line per rule with its comment.
func (e *Engine) Describe() []string {
	rs := e.load()
	lines := make([]string, len(rs))
	for i, r := range rs {
		comment := r.Comment
		if comment == "" {
			comment = "(No comment)"
		}
		lines[i] = fmt.Sprintf("- Rule %d: %s", i, comment)
	}
	return lines
}

func (e *Engine) load() RuleSet {
	if p := e.rules.Load(); p != nil {
		return *p
	}
	return nil
}
