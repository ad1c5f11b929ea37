package detour

import "unsafe"

// makeSlice views len bytes of raw memory at addr as a byte slice.
func makeSlice(addr, len uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), len)
}

// slicePtr returns the address of the first byte of s.
func slicePtr(s []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}
