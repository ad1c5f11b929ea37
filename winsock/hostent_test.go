package winsock

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfilter/wsfilter/rules"
)

func TestHostResultSet(t *testing.T) {
	var slot hostResult

	ent := slot.set(rules.Addr{10, 0, 0, 5})
	require.NotNil(t, ent)

	assert.Equal(t, uint16(afInet), ent.AddrType)
	assert.Equal(t, uint16(4), ent.Length)
	assert.Nil(t, ent.Aliases)

	// Exactly one address, list terminated by nil.
	require.NotNil(t, ent.AddrList)
	first := *ent.AddrList
	require.NotNil(t, first)
	addr := *(*[4]byte)(unsafe.Pointer(first))
	assert.Equal(t, [4]byte{10, 0, 0, 5}, addr)
	assert.Nil(t, slot.list[1])

	// Placeholder name, NUL-terminated.
	name := unsafe.Slice(ent.Name, len(placeholderHost))
	assert.Equal(t, "remapped.local\x00", string(name))
}

func TestHostResultSingleSlot(t *testing.T) {
	var slot hostResult

	first := slot.set(rules.Addr{10, 0, 0, 5})
	second := slot.set(rules.Addr{172, 16, 0, 1})

	// The slot is shared storage: a second lookup overwrites the first.
	assert.Same(t, first, second)
	addr := *(*[4]byte)(unsafe.Pointer(*second.AddrList))
	assert.Equal(t, [4]byte{172, 16, 0, 1}, addr)
}
