//go:build !windows

package detour

// Patching only targets the Windows hot-patch idiom; on other platforms the
// memory primitives degrade to plain heap operations so the patch logic can
// be exercised against in-process buffers.

func protectRW(addr, size uintptr) (uint32, error) {
	return 0, nil
}

func reprotect(addr, size uintptr, old uint32) {}

func allocExec(size uintptr) ([]byte, uintptr, error) {
	b := make([]byte, size)
	return b, slicePtr(b), nil
}

func sealExec(addr, size uintptr) error {
	return nil
}

func freeExec(addr uintptr, _ []byte) {}

func osResolveExport(lib Module, name string) (uintptr, error) {
	return 0, ErrUnsupported
}
