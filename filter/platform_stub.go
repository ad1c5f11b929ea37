//go:build !windows

package filter

import (
	"github.com/wsfilter/wsfilter/detour"
)

func newOps(c *Controller) ops {
	return ops{
		wait:    func() detour.Module { return 0 },
		exports: func(detour.Module) error { return nil },
		attach:  func(detour.Module) error { return detour.ErrUnsupported },
		detach:  c.hooks.DetachAll,
		pin:     func() error { return nil },
		unpin:   func() {},
	}
}
