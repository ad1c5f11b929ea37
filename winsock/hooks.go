package winsock

import (
	"go.uber.org/zap"

	"github.com/wsfilter/wsfilter/detour"
	"github.com/wsfilter/wsfilter/meter"
	"github.com/wsfilter/wsfilter/rules"
)

// Call-through signatures for the original implementations. Arguments and
// results stay at the raw ABI level; the handlers interpret them.
type (
	connectProc  func(s, name, namelen uintptr) uintptr
	gethostProc  func(name uintptr) uintptr
	recvProc     func(s, buf, buflen, flags uintptr) uintptr
	recvfromProc func(s, buf, buflen, flags, from, fromlen uintptr) uintptr
	wsaRecvProc  func(s, bufs, count, received, flags, overlapped, routine uintptr) uintptr
	wsaGetOvProc func(s, overlapped, length, wait, flags uintptr) uintptr
)

// Hooks owns the full set of interception handlers and their typed resume
// paths. One instance is installed per process.
type Hooks struct {
	log    *zap.Logger
	engine rules.Engine
	meter  *meter.Meter

	connect  detour.Hook[connectProc]
	gethost  detour.Hook[gethostProc]
	recv     detour.Hook[recvProc]
	recvfrom detour.Hook[recvfromProc]
	wsaRecv  detour.Hook[wsaRecvProc]
	wsaGetOv detour.Hook[wsaGetOvProc]

	host hostResult
}

// New wires the handler set to the rule engine and meter; nothing is
// installed until AttachAll.
func New(log *zap.Logger, engine rules.Engine, m *meter.Meter) *Hooks {
	return &Hooks{log: log, engine: engine, meter: m}
}

// DetachAll removes every installed hook. Safe on a partially attached or
// already detached set.
func (h *Hooks) DetachAll() {
	h.connect.Unhook()
	h.gethost.Unhook()
	h.recv.Unhook()
	h.recvfrom.Unhook()
	h.wsaRecv.Unhook()
	h.wsaGetOv.Unhook()
}

// ExportNames returns the intercepted exports, in attach order.
func ExportNames() []string {
	return []string{
		"connect",
		"gethostbyname",
		"recv",
		"recvfrom",
		"WSARecv",
		"WSAGetOverlappedResult",
	}
}
