package detour

import (
	"fmt"
	"math"
	"runtime/debug"

	"golang.org/x/arch/x86/x86asm"
)

// Code-generation opcodes for the hot-patch idiom.
const (
	opPushImm8 = 0x6A
	opJmpRel32 = 0xE9
	opJmpShort = 0xEB

	// movEdiEdi is the two-byte no-op system libraries compiled for
	// patching carry at their entry point.
	movEdiEdi0 = 0x8B
	movEdiEdi1 = 0xFF

	// jmpShortMinus5 is the displacement of the short jump written into
	// the entry slot: back to the long jump at target-5.
	jmpShortMinus5 = 0xF9

	// leadLen bytes before the entry point hold the long jump; slotLen is
	// the patchable entry slot itself.
	leadLen  = 5
	slotLen  = 2
	patchLen = leadLen + slotLen
	savedLen = 8

	stubLen = 16
)

// Attach installs a detour at target. The entry point must be one of the two
// idiomatic patchable shapes: the two-byte no-op (resume is simply target+2)
// or a short-immediate push, for which a relocation stub holding the moved
// lead bytes plus a jump back is generated. Anything else fails without
// modifying the target.
//
// The write to live code is not synchronized against threads concurrently
// executing it: the detour only becomes reachable once the final two-byte
// slot write lands, and that write is effectively atomic on the target
// architecture for any thread not already inside those two bytes.
func Attach(target, detour uintptr) (*Patch, error) {
	if target == 0 {
		return nil, ErrNilTarget
	}

	lock.Lock()
	defer lock.Unlock()
	if _, ok := patches[target]; ok {
		return nil, ErrPatched
	}

	p := &Patch{target: target, detour: detour}
	copy(p.saved[:], makeSlice(target-leadLen, savedLen))

	entry := makeSlice(target, stubLen)
	switch {
	case entry[0] == movEdiEdi0 && entry[1] == movEdiEdi1:
		// The resume point can be where we want: just past the slot.
		p.resume = target + slotLen
	case entry[0] == opPushImm8:
		resume, err := p.makeStub(entry[:slotLen])
		if err != nil {
			return nil, err
		}
		p.resume = resume
	default:
		return nil, ErrBadProlog
	}

	rel, err := rel32(target-leadLen, detour)
	if err != nil {
		p.dropStub()
		return nil, err
	}

	old, err := protectRW(target-leadLen, patchLen)
	if err != nil {
		p.dropStub()
		return nil, fmt.Errorf("unprotect patch region: %w", err)
	}

	// Long jump to the detour first, into the space reserved for exactly
	// this purpose, then the short branch over it in the two-byte slot.
	region := makeSlice(target-leadLen, patchLen)
	region[0] = opJmpRel32
	putRel32(region[1:leadLen], rel)
	region[leadLen] = opJmpShort
	region[leadLen+1] = jmpShortMinus5

	reprotect(target-leadLen, patchLen, old)

	patches[target] = p
	return p, nil
}

// makeStub relocates the lead bytes of the entry point into a fresh
// executable buffer and appends a long jump back to the instruction
// immediately following them.
func (p *Patch) makeStub(lead []byte) (uintptr, error) {
	inst, err := x86asm.Decode(lead, 32)
	if err != nil || inst.Len != len(lead) {
		return 0, ErrBadProlog
	}
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(x86asm.Rel); ok {
			return 0, ErrBadProlog
		}
		if mem, ok := a.(x86asm.Mem); ok && mem.Base == x86asm.EIP {
			return 0, ErrBadProlog
		}
	}

	stub, addr, err := allocExec(stubLen)
	if err != nil {
		return 0, fmt.Errorf("allocate relocation stub: %w", err)
	}

	n := copy(stub, lead)
	rel, err := rel32(addr+uintptr(n), p.target+uintptr(n))
	if err != nil {
		freeExec(addr, stub)
		return 0, err
	}
	stub[n] = opJmpRel32
	putRel32(stub[n+1:n+leadLen], rel)

	if err := sealExec(addr, stubLen); err != nil {
		freeExec(addr, stub)
		return 0, fmt.Errorf("seal relocation stub: %w", err)
	}
	p.stub = stub
	p.stubAt = addr
	return addr, nil
}

func (p *Patch) dropStub() {
	if p.stub != nil {
		freeExec(p.stubAt, p.stub)
		p.stub = nil
		p.stubAt = 0
	}
}

// Unhook restores the bytes saved by Attach over the patched region.
// Restoration is best-effort and never raises: if the target library has
// been unloaded since, the write faults and the patch is simply discarded as
// already removed. Calling Unhook on a removed or never-installed patch is a
// no-op.
func (p *Patch) Unhook() {
	if p == nil {
		return
	}
	lock.Lock()
	defer lock.Unlock()
	if p.resume == 0 {
		return
	}

	restore(p.target, p.saved[:patchLen])

	p.dropStub()
	delete(patches, p.target)
	p.resume = 0
}

// restore writes saved back over the patch region, swallowing faults from a
// since-unmapped target.
func restore(target uintptr, saved []byte) {
	defer func() {
		_ = recover()
	}()
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	old, err := protectRW(target-leadLen, patchLen)
	if err != nil {
		return
	}
	copy(makeSlice(target-leadLen, patchLen), saved)
	reprotect(target-leadLen, patchLen, old)
}

// rel32 computes the displacement a jump at from (opcode byte at from, next
// instruction at from+5) needs to reach to.
func rel32(from, to uintptr) (int32, error) {
	d := int64(to) - int64(from) - leadLen
	if d > math.MaxInt32 || d < math.MinInt32 {
		return 0, ErrFarJump
	}
	return int32(d), nil
}

// putRel32 writes v into the output in Intel byte order.
func putRel32(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}
