//go:build windows

package filter

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/wsfilter/wsfilter/detour"
	"github.com/wsfilter/wsfilter/internal/pexport"
	"github.com/wsfilter/wsfilter/winsock"
)

// GetModuleHandleEx flags. FROM_ADDRESS resolves the module containing an
// address and increments its reference count, which is exactly the pin we
// want; UNCHANGED_REFCOUNT makes the wait-loop lookup a pure query.
const (
	getModuleHandleExFlagUnchangedRefcount = 0x00000001
	getModuleHandleExFlagFromAddress       = 0x00000004
)

func newOps(c *Controller) ops {
	var pinHandle windows.Handle

	return ops{
		wait: func() detour.Module {
			return waitForModule(c.log, c.cfg.TargetModule, c.cfg.PollInterval)
		},
		exports: func(mod detour.Module) error {
			return checkExports(c.log, mod)
		},
		attach: func(mod detour.Module) error {
			return c.hooks.AttachAll(mod)
		},
		detach: c.hooks.DetachAll,
		pin: func() error {
			// Pin through the address of our own code so the image stays
			// mapped while hooks point into it.
			anchor := reflect.ValueOf(newOps).Pointer()
			return windows.GetModuleHandleEx(getModuleHandleExFlagFromAddress,
				(*uint16)(unsafe.Pointer(anchor)), &pinHandle)
		},
		unpin: func() {
			if pinHandle != 0 {
				_ = windows.FreeLibrary(pinHandle)
				pinHandle = 0
			}
		},
	}
}

// waitForModule polls until the target library is present in the process,
// so installation never interferes with the host's own loading sequence.
// There is no timeout; the caller dedicates an initialization thread to it.
func waitForModule(log *zap.Logger, name string, poll time.Duration) detour.Module {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0
	}
	logged := false
	for {
		var h windows.Handle
		err := windows.GetModuleHandleEx(getModuleHandleExFlagUnchangedRefcount, name16, &h)
		if err == nil && h != 0 {
			return detour.Module(h)
		}
		if !logged {
			log.Info("waiting for target module", zap.String("module", name))
			logged = true
		}
		time.Sleep(poll)
	}
}

// checkExports verifies against the module's on-disk export table that
// every intercepted name exists, failing installation early with a clearer
// error than a mid-batch resolve miss. An unreadable table is advisory
// only; resolution will settle it.
func checkExports(log *zap.Logger, mod detour.Module) error {
	var buf [windows.MAX_PATH]uint16
	n, err := windows.GetModuleFileName(windows.Handle(mod), &buf[0], uint32(len(buf)))
	if err != nil || n == 0 {
		return nil
	}
	path := windows.UTF16ToString(buf[:n])

	exports, err := pexport.Exports(path)
	if err != nil {
		log.Warn("export table unreadable", zap.String("path", path), zap.Error(err))
		return nil
	}
	for _, name := range winsock.ExportNames() {
		if _, ok := exports[name]; !ok {
			return fmt.Errorf("export %s missing from %s", name, path)
		}
	}
	return nil
}
