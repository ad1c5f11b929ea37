// Package filter orchestrates the interception layer's lifecycle inside the
// host process: one-time installation of the full hook set once the target
// library is present, idempotent rule reconfiguration, and safe bulk
// removal.
package filter

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wsfilter/wsfilter/detour"
	"github.com/wsfilter/wsfilter/internal/config"
	"github.com/wsfilter/wsfilter/meter"
	"github.com/wsfilter/wsfilter/rules"
	"github.com/wsfilter/wsfilter/winsock"
)

// State is the process-wide lifecycle position.
type State int

const (
	// StateUnattached means Install has not run yet.
	StateUnattached State = iota
	// StateWaiting means Install is polling for the target library.
	StateWaiting
	// StateAttached means every hook is installed and active.
	StateAttached
	// StateRemoved means all hooks have been restored; terminal.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateWaiting:
		return "waiting"
	case StateAttached:
		return "attached"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

var (
	// ErrConfigure means the rule specification could not be applied.
	ErrConfigure = errors.New("could not configure rules")
	// ErrInstall means the hook batch could not be installed; everything
	// partially installed has been rolled back.
	ErrInstall = errors.New("could not install hooks")
)

// ops are the platform operations the controller drives; the windows build
// fills them in, tests fake them.
type ops struct {
	wait    func() detour.Module
	exports func(mod detour.Module) error
	attach  func(mod detour.Module) error
	detach  func()
	pin     func() error
	unpin   func()
}

// Controller owns the installed hook set. One instance lives for the
// process; all entry points are safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	state  State
	pinned bool

	log    *zap.Logger
	engine rules.Engine
	meter  *meter.Meter
	hooks  *winsock.Hooks
	cfg    *config.Config
	ops    ops
}

// New builds a controller around the given rule engine. Nothing is installed
// until Install.
func New(log *zap.Logger, engine rules.Engine, cfg *config.Config) *Controller {
	m := meter.New()
	h := winsock.New(log, engine, m)
	c := &Controller{
		log:    log,
		engine: engine,
		meter:  m,
		hooks:  h,
		cfg:    cfg,
	}
	c.ops = newOps(c)
	return c
}

// State reports the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Meter exposes the shared throughput meter.
func (c *Controller) Meter() *meter.Meter {
	return c.meter
}

// Install applies spec and, on the first call, installs the full hook set:
// it blocks until the target library is loaded (bounded-interval polling, no
// timeout), validates the intercepted exports, attaches every hook, and pins
// the module. While attached, further calls only reconfigure the rule set.
// Only Install blocks; Unload and Detach remain callable during the module
// wait and abort the pending installation.
func (c *Controller) Install(spec string) error {
	c.mu.Lock()
	switch c.state {
	case StateAttached:
		defer c.mu.Unlock()
		return c.configure(spec)
	case StateRemoved:
		c.mu.Unlock()
		return fmt.Errorf("%w: interception layer already removed", ErrInstall)
	}
	c.state = StateWaiting
	c.mu.Unlock()

	// The module wait can block indefinitely; the lock is dropped here so
	// Unload, Detach and State stay responsive while Install polls.
	mod := c.ops.wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateAttached:
		// A concurrent Install won the race; apply the rules only.
		return c.configure(spec)
	case StateRemoved:
		return fmt.Errorf("%w: interception layer removed during module wait", ErrInstall)
	}

	if err := c.ops.exports(mod); err != nil {
		c.state = StateRemoved
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}

	if err := c.configure(spec); err != nil {
		// Nothing installed yet; a corrected spec may retry.
		c.state = StateUnattached
		return err
	}

	if err := c.ops.attach(mod); err != nil {
		c.ops.detach()
		c.state = StateRemoved
		c.log.Error("hook installation failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}

	if err := c.ops.pin(); err != nil {
		c.log.Warn("module pin failed", zap.Error(err))
	} else {
		c.pinned = true
	}

	c.state = StateAttached
	c.log.Info("interception layer attached", zap.String("module", c.cfg.TargetModule))
	return nil
}

// configure replaces the active rule set and re-appends the configured
// extra rules; they sit after the caller's so explicit rules keep
// precedence. Caller holds the lock.
func (c *Controller) configure(spec string) error {
	if err := c.engine.Configure(spec); err != nil {
		c.log.Error("rule configuration rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrConfigure, err)
	}
	for _, r := range c.cfg.ExtraRules {
		c.engine.Append(r)
	}
	return nil
}

// Unload removes every hook and releases the module pin. Safe to call more
// than once.
func (c *Controller) Unload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRemoved {
		return nil
	}

	c.ops.detach()
	if c.pinned {
		c.ops.unpin()
		c.pinned = false
	}
	c.state = StateRemoved
	c.log.Info("interception layer unloaded")
	return nil
}

// Detach performs the same hook removal as Unload without releasing the
// pin; it is the process-teardown notification path, where the host is
// already unloading the module.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRemoved {
		return
	}

	c.ops.detach()
	c.state = StateRemoved
	c.log.Info("interception layer detached")
}
