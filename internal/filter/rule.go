// Package filter implements the ordered first-match rule engine and the rule
// file loader.
package filter

import (
	"fmt"
	"net/netip"
)

// Optional is a value that may be absent. An absent constraint matches any
// value.
type Optional[T comparable] struct {
	Value T
	Valid bool
}

// Some returns a present Optional holding v.
func Some[T comparable](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// Matches reports whether v satisfies the constraint.
func (o Optional[T]) Matches(v T) bool {
	return !o.Valid || o.Value == v
}

// Rule is one entry of a rule set.
type Rule struct {
	IP      Optional[netip.Addr] // IPv4 only
	Port    Optional[uint16]
	Block   bool
	Comment string
}

// String renders the rule in the rule file's field names.
func (r Rule) String() string {
	ip, port := "*", "*"
	if r.IP.Valid {
		ip = r.IP.Value.String()
	}
	if r.Port.Valid {
		port = fmt.Sprint(r.Port.Value)
	}
	action := "allow"
	if r.Block {
		action = "block"
	}
	return fmt.Sprintf("ip=%s port=%s %s", ip, port, action)
}

// RuleSet is an ordered list of rules, evaluated first to last.
type RuleSet []Rule

// match evaluates rs against a source address and port. A packet without
// ports only matches rules that leave the port unconstrained, and a packet
// without an address only matches rules that leave the address unconstrained.
func (rs RuleSet) match(src netip.Addr, port uint16, hasPorts bool) bool {
	for i := range rs {
		r := &rs[i]
		if r.IP.Valid && (!src.IsValid() || r.IP.Value != src) {
			continue
		}
		if r.Port.Valid && (!hasPorts || r.Port.Value != port) {
			continue
		}
		return !r.Block
	}
	return true
}
