package winsock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wsfilter/wsfilter/rules"
)

func TestRedirectSockaddr(t *testing.T) {
	orig := sockaddrInet4{
		Family: afInet,
		Port:   swap16(443),
		Addr:   [4]byte{192, 168, 1, 9},
	}
	saved := orig

	tmp := redirectSockaddr(&orig, rules.Addr{10, 0, 0, 5}, 8080)

	assert.Equal(t, saved, orig, "the caller's destination must never be mutated")
	assert.Equal(t, uint16(afInet), tmp.Family)
	assert.Equal(t, [4]byte{10, 0, 0, 5}, tmp.Addr)
	assert.Equal(t, uint16(8080), swap16(tmp.Port))
}

func TestRedirectKeepsPortAcrossHostname(t *testing.T) {
	// Redirect rule example.test -> 10.0.0.5:0 applied to a :443 dial.
	orig := sockaddrInet4{Family: afInet, Port: swap16(443), Addr: [4]byte{203, 0, 113, 7}}

	d := rules.Decision{Match: true, Addr: rules.Addr{10, 0, 0, 5}}
	act, addr, port := rules.ResolveConnect(d, orig.Addr, swap16(orig.Port))
	assert.Equal(t, rules.ActionRedirect, act)

	tmp := redirectSockaddr(&orig, addr, port)
	assert.Equal(t, [4]byte{10, 0, 0, 5}, tmp.Addr)
	assert.Equal(t, uint16(443), swap16(tmp.Port), "port preserved, address replaced")
}

func TestRecvMeterBytes(t *testing.T) {
	tests := []struct {
		name  string
		ret   int32
		flags int32
		want  int
	}{
		{"normal read", 512, 0, 512},
		{"peek excluded even on success", 512, msgPeek, 0},
		{"failure passes sentinel through", socketError, 0, int(socketError)},
		{"zero-byte read", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recvMeterBytes(tt.ret, tt.flags))
		})
	}
}

func TestWSARecvMeterBytes(t *testing.T) {
	tests := []struct {
		name          string
		ret           int32
		received      uint32
		flags         uint32
		async         bool
		hasOverlapped bool
		completed     uintptr
		want          int
	}{
		{name: "plain success", ret: 0, received: 1024, want: 1024},
		{name: "plain peek excluded", ret: 0, received: 1024, flags: msgPeek, want: 0},
		{name: "plain failure", ret: socketError, received: 77, want: 0},
		{name: "sync overlapped completion meters reported size",
			ret: 0, async: true, hasOverlapped: true, completed: 4096, want: 4096},
		{name: "pending overlapped meters nothing",
			ret: socketError, async: true, hasOverlapped: true, want: 0},
		{name: "completion routine only, nothing immediate",
			ret: 0, async: true, hasOverlapped: false, completed: 4096, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wsaRecvMeterBytes(tt.ret, tt.received, tt.flags, tt.async, tt.hasOverlapped, tt.completed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFiltersFamily(t *testing.T) {
	tests := []struct {
		name   string
		family uint16
		want   bool
	}{
		{"ipv4", afInet, true},
		{"unspec", 0, false},
		{"unix", 1, false},
		{"ipv6", 23, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filtersFamily(tt.family))
		})
	}
}

func TestSwap16(t *testing.T) {
	assert.Equal(t, uint16(0xBB01), swap16(0x01BB))
	assert.Equal(t, uint16(443), swap16(swap16(443)))
}
