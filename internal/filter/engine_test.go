package filter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/fastdrop/internal/core"
)

var (
	addr1 = netip.MustParseAddr("10.0.0.1")
	addr2 = netip.MustParseAddr("10.0.0.2")
)

func TestMatchFirstRuleWins(t *testing.T) {
	e := NewEngine(RuleSet{
		{IP: Some(addr1), Block: true},
		{Port: Some[uint16](80), Block: false},
	})

	assert.False(t, e.Match(addr1, 80, true), "10.0.0.1 port 80 must be blocked by the first rule")
	assert.False(t, e.Match(addr1, 443, false), "10.0.0.1 on any port must be blocked")
	assert.True(t, e.Match(addr2, 80, true), "10.0.0.2 port 80 must be allowed")
	assert.True(t, e.Match(addr2, 81, true), "no match must allow")
}

func TestMatchDefaultAllow(t *testing.T) {
	assert.True(t, NewEngine(nil).Match(addr1, 22, true))
	assert.True(t, (&Engine{}).Match(addr1, 22, true))
}

func TestMatchIgnoresTCPFlag(t *testing.T) {
	e := NewEngine(RuleSet{{Port: Some[uint16](53), Block: true}})
	assert.Equal(t, e.Match(addr1, 53, true), e.Match(addr1, 53, false))
}

func TestMatchWildcardRule(t *testing.T) {
	e := NewEngine(RuleSet{{Block: true}})
	assert.False(t, e.Match(addr1, 1, true))
	assert.False(t, e.Match(netip.MustParseAddr("2001:db8::1"), 1, true))
}

func TestMatchIPv6SourceOnlyHitsWildcardIP(t *testing.T) {
	e := NewEngine(RuleSet{
		{IP: Some(addr1), Block: true},
		{Port: Some[uint16](22), Block: true},
	})
	v6 := netip.MustParseAddr("2001:db8::1")

	assert.True(t, e.Match(v6, 80, true))
	assert.False(t, e.Match(v6, 22, true))
}

func TestMatchPacket(t *testing.T) {
	e := NewEngine(RuleSet{
		{Port: Some[uint16](0), Block: true},
		{IP: Some(addr1), Block: true},
	})

	icmp := core.ParsedPacket{Network: core.NetworkIPv4, L4: core.L4Other, SrcAddr: addr2}
	assert.True(t, e.MatchPacket(&icmp), "port rule must not match a packet without ports")

	fromBlocked := core.ParsedPacket{Network: core.NetworkIPv4, L4: core.L4Other, SrcAddr: addr1}
	assert.False(t, e.MatchPacket(&fromBlocked))

	arp := core.ParsedPacket{EtherType: 0x0806}
	assert.True(t, e.MatchPacket(&arp), "IP rule must not match a frame without addresses")

	udp := core.ParsedPacket{Network: core.NetworkIPv4, L4: core.L4UDP, SrcAddr: addr2, SrcPort: 0}
	assert.False(t, e.MatchPacket(&udp))
}

func TestMatchPacketAgreesWithMatch(t *testing.T) {
	e := NewEngine(RuleSet{
		{IP: Some(addr1), Port: Some[uint16](53), Block: true},
		{Port: Some[uint16](443), Block: false},
		{IP: Some(addr2), Block: true},
	})

	for _, l4 := range []core.L4Protocol{core.L4TCP, core.L4UDP} {
		for _, src := range []netip.Addr{addr1, addr2} {
			for _, port := range []uint16{53, 443, 8080} {
				p := core.ParsedPacket{Network: core.NetworkIPv4, L4: l4, SrcAddr: src, SrcPort: port}
				assert.Equal(t, e.Match(src, port, p.IsTCP()), e.MatchPacket(&p), "%v %s:%d", l4, src, port)
			}
		}
	}
}

func TestReloadKeepsRulesOnFailure(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.Reload([]byte(`[{"ip":"10.0.0.1"},{"port":80,"block":false,"comment":"web"}]`)))
	before := e.Rules()

	err := e.Reload([]byte(`{"ip":"10.0.0.9"}`))
	require.ErrorIs(t, err, core.ErrInvalidRuleDocument)
	assert.Equal(t, before, e.Rules())
	assert.Equal(t, 2, e.Len())

	err = e.Reload([]byte(`[{"ip":"10.0.0.9"},`))
	require.ErrorIs(t, err, core.ErrInvalidRuleDocument)
	assert.Equal(t, before, e.Rules())
}

func TestInstallReplacesRules(t *testing.T) {
	e := NewEngine(RuleSet{{IP: Some(addr1), Block: true}})
	e.Install(RuleSet{{IP: Some(addr2), Block: true}})

	assert.True(t, e.Match(addr1, 1, true))
	assert.False(t, e.Match(addr2, 1, true))
}

func TestDescribe(t *testing.T) {
	e := NewEngine(RuleSet{
		{IP: Some(addr1), Block: true, Comment: "known scanner"},
		{Port: Some[uint16](80)},
	})

	assert.Equal(t, []string{
		"- Rule 0: known scanner",
		"- Rule 1: (No comment)",
	}, e.Describe())
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "ip=10.0.0.1 port=* block", Rule{IP: Some(addr1), Block: true}.String())
	assert.Equal(t, "ip=* port=80 allow", Rule{Port: Some[uint16](80)}.String())
}

func netip4(s string) netip.Addr {
	return netip.MustParseAddr(s)
}
