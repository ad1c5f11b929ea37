//go:build windows

package winsock

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/wsfilter/wsfilter/detour"
	"github.com/wsfilter/wsfilter/rules"
)

var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	procSetLastError = modkernel32.NewProc("SetLastError")
)

// setSockErr sets the thread error the legacy API reports through
// WSAGetLastError, which is a thin wrapper around GetLastError.
func setSockErr(code uint32) {
	_, _, _ = procSetLastError.Call(uintptr(code))
}

// sockErrRet is SOCKET_ERROR widened to a callback return value.
const sockErrRet = ^uintptr(0)

// AttachAll installs every handler on the given module. On the first
// failure it reports without cleaning up; the caller rolls the batch back
// with DetachAll.
func (h *Hooks) AttachAll(lib detour.Module) error {
	steps := []struct {
		name   string
		attach func() error
	}{
		{"connect", func() error {
			return h.connect.Attach(lib, "connect", syscall.NewCallback(h.connectHook), bindN3)
		}},
		{"gethostbyname", func() error {
			return h.gethost.Attach(lib, "gethostbyname", syscall.NewCallback(h.gethostHook), bindN1)
		}},
		{"recv", func() error {
			return h.recv.Attach(lib, "recv", syscall.NewCallback(h.recvHook), bindN4)
		}},
		{"recvfrom", func() error {
			return h.recvfrom.Attach(lib, "recvfrom", syscall.NewCallback(h.recvfromHook), bindN6)
		}},
		{"WSARecv", func() error {
			return h.wsaRecv.Attach(lib, "WSARecv", syscall.NewCallback(h.wsaRecvHook), bindN7)
		}},
		{"WSAGetOverlappedResult", func() error {
			return h.wsaGetOv.Attach(lib, "WSAGetOverlappedResult", syscall.NewCallback(h.wsaGetOverlappedHook), bindN5)
		}},
	}
	for _, s := range steps {
		if err := s.attach(); err != nil {
			return fmt.Errorf("attach %s: %w", s.name, err)
		}
	}
	return nil
}

func bindN1(resume uintptr) gethostProc {
	return func(a uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a)
		return r
	}
}

func bindN3(resume uintptr) connectProc {
	return func(a, b, c uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a, b, c)
		return r
	}
}

func bindN4(resume uintptr) recvProc {
	return func(a, b, c, d uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a, b, c, d)
		return r
	}
}

func bindN5(resume uintptr) wsaGetOvProc {
	return func(a, b, c, d, e uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a, b, c, d, e)
		return r
	}
}

func bindN6(resume uintptr) recvfromProc {
	return func(a, b, c, d, e, f uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a, b, c, d, e, f)
		return r
	}
}

func bindN7(resume uintptr) wsaRecvProc {
	return func(a, b, c, d, e, f, g uintptr) uintptr {
		r, _, _ := syscall.SyscallN(resume, a, b, c, d, e, f, g)
		return r
	}
}

// connectHook checks whether the destination should be reworked before
// handing the call to the real connect. Non-IPv4 destinations always pass
// through untouched.
func (h *Hooks) connectHook(s, name, namelen uintptr) uintptr {
	if name == 0 {
		return h.connect.Origin()(s, name, namelen)
	}
	sa := (*sockaddrInet4)(unsafe.Pointer(name))
	if !filtersFamily(sa.Family) {
		return h.connect.Origin()(s, name, namelen)
	}

	// The caller's module context is reserved for future rule syntax;
	// nothing maps the return address to a module yet.
	d := h.engine.MatchConnection(sa.Addr, swap16(sa.Port), 0)

	act, addr, port := rules.ResolveConnect(d, sa.Addr, swap16(sa.Port))
	switch act {
	case rules.ActionDeny:
		h.log.Debug("connect refused",
			zap.String("dest", fmt.Sprintf("%d.%d.%d.%d:%d", sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3], swap16(sa.Port))))
		setSockErr(wsaeConnRefused)
		return sockErrRet
	case rules.ActionRedirect:
		tmp := redirectSockaddr(sa, addr, port)
		h.log.Debug("connect redirected",
			zap.String("dest", fmt.Sprintf("%d.%d.%d.%d:%d", addr[0], addr[1], addr[2], addr[3], port)))
		r := h.connect.Origin()(s, uintptr(unsafe.Pointer(&tmp)), unsafe.Sizeof(tmp))
		runtime.KeepAlive(&tmp)
		return r
	default:
		return h.connect.Origin()(s, name, namelen)
	}
}

// gethostHook filters the legacy blocking resolver. A redirected lookup
// synthesizes a minimal result in the shared single-slot storage.
func (h *Hooks) gethostHook(name uintptr) uintptr {
	hostname := windows.BytePtrToString((*byte)(unsafe.Pointer(name)))

	act, addr := rules.ResolveHostname(h.engine.MatchHostname(hostname))
	switch act {
	case rules.ActionDeny:
		h.log.Debug("gethostbyname refused", zap.String("host", hostname))
		setSockErr(wsaHostNotFound)
		return 0
	case rules.ActionRedirect:
		h.log.Debug("gethostbyname redirected", zap.String("host", hostname),
			zap.String("addr", fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])))
		return uintptr(unsafe.Pointer(h.host.set(addr)))
	default:
		return h.gethost.Origin()(name)
	}
}

func (h *Hooks) recvHook(s, buf, buflen, flags uintptr) uintptr {
	r := h.recv.Origin()(s, buf, buflen, flags)
	h.meter.Add(recvMeterBytes(int32(uint32(r)), int32(uint32(flags))))
	return r
}

func (h *Hooks) recvfromHook(s, buf, buflen, flags, from, fromlen uintptr) uintptr {
	r := h.recvfrom.Origin()(s, buf, buflen, flags, from, fromlen)
	h.meter.Add(recvMeterBytes(int32(uint32(r)), int32(uint32(flags))))
	return r
}

// wsaRecvHook meters the overlapped-capable receive. Flags are read before
// the forward since the call may rewrite them.
func (h *Hooks) wsaRecvHook(s, bufs, count, received, flags, overlapped, routine uintptr) uintptr {
	var flagsVal uint32
	if flags != 0 {
		flagsVal = *(*uint32)(unsafe.Pointer(flags))
	}

	r := h.wsaRecv.Origin()(s, bufs, count, received, flags, overlapped, routine)

	var recvd uint32
	if received != 0 {
		recvd = *(*uint32)(unsafe.Pointer(received))
	}
	var completed uintptr
	hasOv := overlapped != 0
	if hasOv && int32(uint32(r)) == 0 {
		completed = (*windows.Overlapped)(unsafe.Pointer(overlapped)).InternalHigh
	}

	async := overlapped != 0 || routine != 0
	h.meter.Add(wsaRecvMeterBytes(int32(uint32(r)), recvd, flagsVal, async, hasOv, completed))
	return r
}

// wsaGetOverlappedHook forwards the completion query unmodified. Deferred
// completions are not metered here yet; that is the piece a future
// traffic-shaping pass would need.
func (h *Hooks) wsaGetOverlappedHook(s, overlapped, length, wait, flags uintptr) uintptr {
	return h.wsaGetOv.Origin()(s, overlapped, length, wait, flags)
}
