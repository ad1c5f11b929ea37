package detour

import "fmt"

// Module is an opaque handle to a loaded library.
type Module uintptr

// resolveExport is swappable for tests; the default resolves through the
// platform loader.
var resolveExport = osResolveExport

// Hook pairs a Patch with the original function's calling signature. F is a
// typed call-through value built from the resume address, so handlers reach
// the unpatched function with an ordinary call.
type Hook[F any] struct {
	patch  *Patch
	origin F
}

// Attach resolves name in lib and installs detour at its entry point. bind
// receives the resume address and must return the typed call-through for it.
// Failure to resolve or to patch reports an error without leaving anything
// installed; the caller is expected to roll back the rest of its batch.
func (h *Hook[F]) Attach(lib Module, name string, detour uintptr, bind func(resume uintptr) F) error {
	addr, err := resolveExport(lib, name)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", name, err)
	}
	p, err := Attach(addr, detour)
	if err != nil {
		return fmt.Errorf("patch %s: %w", name, err)
	}
	h.patch = p
	h.origin = bind(p.resume)
	return nil
}

// Origin returns the typed call-through to the unpatched behavior. Only
// meaningful while Attached reports true.
func (h *Hook[F]) Origin() F {
	return h.origin
}

// Attached reports whether the hook currently holds a live patch.
func (h *Hook[F]) Attached() bool {
	return h.patch.Installed()
}

// Unhook removes the underlying patch. Idempotent.
func (h *Hook[F]) Unhook() {
	h.patch.Unhook()
}
