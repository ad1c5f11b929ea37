//go:build windows

package logging

import (
	"io"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procOutputDebugStringW = modkernel32.NewProc("OutputDebugStringW")
)

// debugWriter forwards log lines to the system debug channel, where an
// attached debugger or debug-output viewer picks them up.
type debugWriter struct{}

func (debugWriter) Write(p []byte) (int, error) {
	// A line with an embedded NUL cannot cross the C boundary; drop it
	// rather than fail the whole core.
	s, err := windows.UTF16PtrFromString(string(p))
	if err == nil {
		_, _, _ = procOutputDebugStringW.Call(uintptr(unsafe.Pointer(s)))
	}
	return len(p), nil
}

func debugSink() io.Writer {
	return debugWriter{}
}
