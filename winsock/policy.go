// Package winsock holds the replacement bodies for the hooked legacy
// sockets APIs: the policy handlers for connection establishment and name
// resolution, and the metering handlers for the receive family.
package winsock

import "github.com/wsfilter/wsfilter/rules"

// Legacy sockets ABI values. The deny-path error codes are raised verbatim
// so callers' existing error handling keeps working.
const (
	afInet = 2

	// msgPeek asks the receive call to leave the data queued; no bytes are
	// consumed, so peeked reads are excluded from metering.
	msgPeek = 0x2

	// socketError is the int return of a failed sockets call.
	socketError int32 = -1

	wsaeConnRefused = 10061
	wsaHostNotFound = 11001
)

// sockaddrInet4 mirrors the wire layout of the IPv4 sockaddr. Port and Addr
// are stored in network byte order.
type sockaddrInet4 struct {
	Family uint16
	Port   uint16
	Addr   [4]byte
	Zero   [8]byte
}

// swap16 converts a port between wire and host byte order.
func swap16(v uint16) uint16 {
	return v>>8 | v<<8
}

// filtersFamily reports whether connection rules apply to a destination of
// the given address family. Everything but IPv4 passes through untouched.
func filtersFamily(family uint16) bool {
	return family == afInet
}

// redirectSockaddr builds the temporary destination forwarded in place of
// the caller's. The caller's own structure is never mutated. port is in host
// order.
func redirectSockaddr(sa *sockaddrInet4, addr rules.Addr, port uint16) sockaddrInet4 {
	tmp := *sa
	tmp.Addr = addr
	tmp.Port = swap16(port)
	return tmp
}

// recvMeterBytes returns the byte count a synchronous receive feeds the
// meter. Peeked reads contribute nothing; a failed call passes the sentinel
// through for the meter to zero.
func recvMeterBytes(ret int32, flags int32) int {
	if flags&msgPeek != 0 {
		return 0
	}
	return int(ret)
}

// wsaRecvMeterBytes returns the byte count an overlapped-capable receive
// feeds the meter. async means an overlapped block or completion routine was
// supplied: only an immediate synchronous completion (ret 0 with an
// overlapped block, completed holding its reported size) is metered there;
// later completions are the recognized gap in the completion-query hook. A
// plain call meters the received count unless it failed or peeked.
func wsaRecvMeterBytes(ret int32, received, flags uint32, async, hasOverlapped bool, completed uintptr) int {
	if async {
		if ret == 0 && hasOverlapped {
			return int(completed)
		}
		return 0
	}
	if ret == socketError || flags&msgPeek != 0 {
		return 0
	}
	return int(received)
}
