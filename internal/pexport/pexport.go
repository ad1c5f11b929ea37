// Package pexport reads the export table of a PE image on disk, mapping
// export names to their relative virtual addresses.
package pexport

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNoExports means the image carries no export directory.
	ErrNoExports = errors.New("image has no export table")
	// ErrTruncated means the export directory points outside the image.
	ErrTruncated = errors.New("export table truncated")
)

// exportDirSize is the byte size of the IMAGE_EXPORT_DIRECTORY structure.
const exportDirSize = 40

// Exports returns the named exports of the PE image at path, keyed by name
// with the export's RVA as value.
func Exports(path string) (map[string]uint32, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	case *pe.OptionalHeader64:
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	default:
		return nil, ErrNoExports
	}
	if dir.VirtualAddress == 0 || dir.Size < exportDirSize {
		return nil, ErrNoExports
	}

	raw, err := rvaData(f, dir.VirtualAddress)
	if err != nil {
		return nil, err
	}
	if len(raw) < exportDirSize {
		return nil, ErrTruncated
	}

	le := binary.LittleEndian
	numFuncs := le.Uint32(raw[20:])
	numNames := le.Uint32(raw[24:])
	funcsRVA := le.Uint32(raw[28:])
	namesRVA := le.Uint32(raw[32:])
	ordsRVA := le.Uint32(raw[36:])

	funcs, err := rvaData(f, funcsRVA)
	if err != nil {
		return nil, err
	}
	names, err := rvaData(f, namesRVA)
	if err != nil {
		return nil, err
	}
	ords, err := rvaData(f, ordsRVA)
	if err != nil {
		return nil, err
	}
	if uint64(len(funcs)) < uint64(numFuncs)*4 ||
		uint64(len(names)) < uint64(numNames)*4 ||
		uint64(len(ords)) < uint64(numNames)*2 {
		return nil, ErrTruncated
	}

	exports := make(map[string]uint32, numNames)
	for i := uint32(0); i < numNames; i++ {
		nameRVA := le.Uint32(names[i*4:])
		data, err := rvaData(f, nameRVA)
		if err != nil {
			return nil, err
		}
		name := cstring(data)

		ord := le.Uint16(ords[i*2:])
		if uint32(ord) >= numFuncs {
			continue
		}
		exports[name] = le.Uint32(funcs[uint32(ord)*4:])
	}
	return exports, nil
}

// rvaData returns the image bytes starting at rva, up to the end of the
// section containing it.
func rvaData(f *pe.File, rva uint32) ([]byte, error) {
	for _, s := range f.Sections {
		if rva < s.VirtualAddress || rva >= s.VirtualAddress+s.VirtualSize {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", s.Name, err)
		}
		off := rva - s.VirtualAddress
		if uint32(len(data)) <= off {
			return nil, ErrTruncated
		}
		return data[off:], nil
	}
	return nil, ErrTruncated
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
