//go:build windows

package detour

import (
	"golang.org/x/sys/windows"
)

// protectRW makes the given code region writable, returning the previous
// protection so reprotect can put it back.
func protectRW(addr, size uintptr) (uint32, error) {
	var old uint32
	err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old)
	if err != nil {
		return 0, err
	}
	return old, nil
}

// reprotect restores the protection protectRW saved. Best-effort: by the
// time a patch is removed the region may already be gone.
func reprotect(addr, size uintptr, old uint32) {
	var prev uint32
	_ = windows.VirtualProtect(addr, size, old, &prev)
}

// allocExec commits a fresh writable region for a relocation stub.
func allocExec(size uintptr) ([]byte, uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size,
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, 0, err
	}
	return makeSlice(addr, size), addr, nil
}

// sealExec flips a stub region from writable to executable.
func sealExec(addr, size uintptr) error {
	var old uint32
	return windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READ, &old)
}

func freeExec(addr uintptr, _ []byte) {
	_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}

// osResolveExport resolves an export by name in an already-loaded module.
func osResolveExport(lib Module, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(lib), name)
}
