//go:build windows

// wsfilter builds as a c-shared library for injection into the host
// process. The injector calls FilterInstall once from a dedicated thread,
// FilterUnload to remove the layer, and FilterDetach from its
// process-teardown notification.
package main

import "C"

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wsfilter/wsfilter/filter"
	"github.com/wsfilter/wsfilter/internal/config"
	"github.com/wsfilter/wsfilter/internal/logging"
	"github.com/wsfilter/wsfilter/rules"
)

// engine is the rule engine the handlers consult. Deployments that carry a
// real matching engine replace this at link time; the default matches
// nothing, leaving the layer metering-only.
var engine rules.Engine = rules.NopEngine{}

var (
	initOnce   sync.Once
	controller *filter.Controller
)

func instance() *filter.Controller {
	initOnce.Do(func() {
		cfg := config.FromEnv()
		log, err := logging.New(cfg)
		if err != nil {
			log = zap.NewNop()
		}
		controller = filter.New(log, engine, cfg)
	})
	return controller
}

// FilterInstall waits for the target library, installs all hooks and
// applies the rule specification; while attached it only reconfigures the
// rules. Returns 1 on success, -1 for a rejected rule specification, -2
// when the hooks could not be installed.
//
//export FilterInstall
func FilterInstall(spec *C.char) C.int {
	text := ""
	if spec != nil {
		text = C.GoString(spec)
	}

	err := instance().Install(text)
	switch {
	case err == nil:
		return 1
	case errors.Is(err, filter.ErrConfigure):
		return -1
	default:
		return -2
	}
}

// FilterUnload removes all hooks and releases the module pin; calling it
// again is a no-op. Returns 1.
//
//export FilterUnload
func FilterUnload() C.int {
	_ = instance().Unload()
	return 1
}

// FilterDetach removes all hooks without releasing the pin; the host is
// already tearing the module down.
//
//export FilterDetach
func FilterDetach() {
	instance().Detach()
}

func main() {}
