package winsock

import "github.com/wsfilter/wsfilter/rules"

// hostent mirrors the layout of the legacy resolver's result structure.
type hostent struct {
	Name     *byte
	Aliases  **byte
	AddrType uint16
	Length   uint16
	AddrList **byte
}

// placeholderHost is the name reported for synthesized redirect results,
// NUL-terminated for the C side.
var placeholderHost = []byte("remapped.local\x00")

// hostResult is the storage behind a synthesized gethostbyname result. The
// legacy API hands back library-owned memory, so redirected lookups share
// this single slot: it is valid until the next redirected lookup on any
// thread. That single-slot capacity is a pre-existing limitation of the API
// shape, carried forward deliberately.
type hostResult struct {
	ent  hostent
	addr [4]byte
	list [2]*byte
}

// set fills the slot with one redirected address and returns the entry.
func (r *hostResult) set(addr rules.Addr) *hostent {
	r.addr = addr
	r.list[0] = &r.addr[0]
	r.list[1] = nil

	r.ent.Name = &placeholderHost[0]
	r.ent.Aliases = nil
	r.ent.AddrType = afInet
	r.ent.Length = uint16(len(r.addr))
	r.ent.AddrList = &r.list[0]
	return &r.ent
}
