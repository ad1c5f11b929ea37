// Package detour installs and removes live entry-point patches on machine
// code mapped into the current process. A patch rewrites the hot-patch slack
// around a function's entry point so that callers land in a replacement
// function first; the replacement reaches the original behavior through the
// patch's resume address.
package detour

import (
	"errors"
	"sync"
)

// Patch records one installed detour. It is either fully installed
// (resume != 0, original bytes saved) or fully absent; Unhook never leaves a
// patch half torn down.
type Patch struct {
	target uintptr
	resume uintptr
	detour uintptr
	saved  [savedLen]byte
	stub   []byte
	stubAt uintptr
}

var (
	// patches holds every live patch keyed by target address
	patches = make(map[uintptr]*Patch)
	// lock protects the patches map
	lock sync.Mutex
)

var (
	// ErrNilTarget means the target address is zero
	ErrNilTarget = errors.New("nil patch target")
	// ErrPatched means the target already carries a patch
	ErrPatched = errors.New("target already patched")
	// ErrBadProlog means the entry-point bytes are not a recognized shape
	ErrBadProlog = errors.New("unrecognized function prologue")
	// ErrFarJump means target and detour are further apart than a rel32 jump reaches
	ErrFarJump = errors.New("relative jump displacement overflows 32 bits")
	// ErrUnsupported means patching is not available on this platform
	ErrUnsupported = errors.New("code patching not supported on this platform")
)

// Target returns the patched entry-point address.
func (p *Patch) Target() uintptr {
	if p == nil {
		return 0
	}
	return p.target
}

// Resume returns the address that yields the original, pre-patch behavior.
// Zero once the patch has been removed.
func (p *Patch) Resume() uintptr {
	if p == nil {
		return 0
	}
	return p.resume
}

// Installed reports whether the patch is currently live.
func (p *Patch) Installed() bool {
	return p != nil && p.resume != 0
}
