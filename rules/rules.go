// Package rules defines the decision model shared between the interception
// handlers and the external rule-matching engine, plus the pure logic that
// turns an engine decision into a concrete action for one call.
//
// The engine itself (rule parsing, pattern matching, precedence) lives
// outside this module and is consumed only through the Engine interface.
package rules

// Addr is an IPv4 address in wire order.
type Addr = [4]byte

var (
	// AddrAny in a redirect means "keep the caller's value".
	AddrAny = Addr{0, 0, 0, 0}
	// AddrNone in a redirect means "deny the call".
	AddrNone = Addr{255, 255, 255, 255}
)

// Decision is the three-way outcome of a rule-engine query: no match,
// deny, or redirect. A zero Port keeps the caller's port; AddrAny keeps the
// caller's address; AddrNone denies.
type Decision struct {
	Match bool
	Addr  Addr
	Port  uint16
}

// Engine is the query surface required from the external rule engine.
type Engine interface {
	// Configure replaces the active rule set from a specification string.
	Configure(spec string) error
	// Append adds one rule after the current set.
	Append(rule string)
	// MatchConnection decides for a connection to addr:port. caller is the
	// requesting module's base address, reserved for future rule syntax;
	// engines may ignore it.
	MatchConnection(addr Addr, port uint16, caller uintptr) Decision
	// MatchHostname decides for a name-resolution request.
	MatchHostname(name string) Decision
}

// Action is what a handler does with one intercepted call.
type Action int

const (
	// ActionPass forwards the call unchanged.
	ActionPass Action = iota
	// ActionDeny refuses the call without invoking the original.
	ActionDeny
	// ActionRedirect forwards with a rewritten destination.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionDeny:
		return "deny"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// ResolveConnect composes d with the caller's destination. Zero fields in a
// redirect keep the original values.
func ResolveConnect(d Decision, addr Addr, port uint16) (Action, Addr, uint16) {
	if !d.Match {
		return ActionPass, addr, port
	}
	if d.Addr == AddrNone {
		return ActionDeny, addr, port
	}
	outAddr := d.Addr
	if outAddr == AddrAny {
		outAddr = addr
	}
	outPort := d.Port
	if outPort == 0 {
		outPort = port
	}
	return ActionRedirect, outAddr, outPort
}

// ResolveHostname maps d to the action for a name lookup. A match carrying
// AddrAny is an explicit pass-through rule.
func ResolveHostname(d Decision) (Action, Addr) {
	if !d.Match || d.Addr == AddrAny {
		return ActionPass, AddrAny
	}
	if d.Addr == AddrNone {
		return ActionDeny, AddrAny
	}
	return ActionRedirect, d.Addr
}
