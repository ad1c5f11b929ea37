package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wsfilter/wsfilter/detour"
	"github.com/wsfilter/wsfilter/internal/config"
	"github.com/wsfilter/wsfilter/rules"
)

// fakeEngine records configuration calls.
type fakeEngine struct {
	specs        []string
	appended     []string
	configureErr error
}

func (f *fakeEngine) Configure(spec string) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	f.specs = append(f.specs, spec)
	return nil
}

func (f *fakeEngine) Append(rule string) { f.appended = append(f.appended, rule) }

func (f *fakeEngine) MatchConnection(rules.Addr, uint16, uintptr) rules.Decision {
	return rules.Decision{}
}

func (f *fakeEngine) MatchHostname(string) rules.Decision { return rules.Decision{} }

type fakeOps struct {
	attaches  int
	detaches  int
	pins      int
	unpins    int
	attachErr error
	exportErr error
}

func testController(t *testing.T, eng rules.Engine, f *fakeOps) *Controller {
	t.Helper()
	cfg := config.Default()
	cfg.ExtraRules = []string{"blackhole.example="}
	c := New(zap.NewNop(), eng, cfg)
	c.ops = ops{
		wait:    func() detour.Module { return 1 },
		exports: func(detour.Module) error { return f.exportErr },
		attach: func(detour.Module) error {
			if f.attachErr != nil {
				return f.attachErr
			}
			f.attaches++
			return nil
		},
		detach: func() { f.detaches++ },
		pin:    func() error { f.pins++; return nil },
		unpin:  func() { f.unpins++ },
	}
	return c
}

func TestInstallAttachesOnce(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{}
	c := testController(t, eng, f)

	require.NoError(t, c.Install("*:27030=deny"))
	assert.Equal(t, StateAttached, c.State())
	assert.Equal(t, 1, f.attaches)
	assert.Equal(t, 1, f.pins)
	assert.Equal(t, []string{"*:27030=deny"}, eng.specs)
	assert.Equal(t, []string{"blackhole.example="}, eng.appended)

	// A second call reconfigures only.
	require.NoError(t, c.Install("*:27030=10.0.0.5"))
	assert.Equal(t, 1, f.attaches, "hooks must not be installed twice")
	assert.Equal(t, []string{"*:27030=deny", "*:27030=10.0.0.5"}, eng.specs)
	assert.Equal(t, StateAttached, c.State())
}

func TestInstallRollsBackOnAttachFailure(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{attachErr: errors.New("no such export")}
	c := testController(t, eng, f)

	err := c.Install("spec")
	assert.ErrorIs(t, err, ErrInstall)
	assert.Equal(t, StateRemoved, c.State())
	assert.Equal(t, 1, f.detaches, "partially installed hooks are rolled back")
	assert.Zero(t, f.pins)

	// Removed is terminal.
	assert.ErrorIs(t, c.Install("spec"), ErrInstall)
}

func TestInstallConfigureFailure(t *testing.T) {
	eng := &fakeEngine{configureErr: errors.New("bad rule syntax")}
	f := &fakeOps{}
	c := testController(t, eng, f)

	err := c.Install("nonsense")
	assert.ErrorIs(t, err, ErrConfigure)
	assert.Zero(t, f.attaches, "hooks untouched when the rules are rejected")
	assert.Equal(t, StateUnattached, c.State())

	// A corrected spec succeeds.
	eng.configureErr = nil
	require.NoError(t, c.Install("fixed"))
	assert.Equal(t, StateAttached, c.State())
}

func TestInstallExportValidationFailure(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{exportErr: errors.New("export recv missing")}
	c := testController(t, eng, f)

	err := c.Install("spec")
	assert.ErrorIs(t, err, ErrInstall)
	assert.Equal(t, StateRemoved, c.State())
	assert.Zero(t, f.attaches)
}

func TestDetachDuringModuleWait(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{}
	c := testController(t, eng, f)

	release := make(chan struct{})
	c.ops.wait = func() detour.Module {
		<-release
		return 1
	}

	installErr := make(chan error, 1)
	go func() { installErr <- c.Install("spec") }()

	require.Eventually(t, func() bool { return c.State() == StateWaiting },
		time.Second, time.Millisecond, "installer never reached the module wait")

	// Teardown must not queue behind the blocked installer.
	done := make(chan struct{})
	go func() {
		c.Detach()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Detach blocked behind the module wait")
	}

	close(release)
	assert.ErrorIs(t, <-installErr, ErrInstall, "aborted install must not attach")
	assert.Equal(t, StateRemoved, c.State())
	assert.Zero(t, f.attaches)
	assert.Zero(t, f.pins)
}

func TestUnloadIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{}
	c := testController(t, eng, f)

	require.NoError(t, c.Install("spec"))
	require.NoError(t, c.Unload())
	assert.Equal(t, StateRemoved, c.State())
	assert.Equal(t, 1, f.detaches)
	assert.Equal(t, 1, f.unpins)

	require.NoError(t, c.Unload())
	assert.Equal(t, 1, f.detaches, "second unload is a no-op")
	assert.Equal(t, 1, f.unpins, "the pin is released exactly once")
}

func TestUnloadBeforeInstall(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{}
	c := testController(t, eng, f)

	require.NoError(t, c.Unload())
	assert.Equal(t, StateRemoved, c.State())
	assert.Zero(t, f.unpins, "nothing was pinned")
}

func TestDetachKeepsPin(t *testing.T) {
	eng := &fakeEngine{}
	f := &fakeOps{}
	c := testController(t, eng, f)

	require.NoError(t, c.Install("spec"))
	c.Detach()
	assert.Equal(t, StateRemoved, c.State())
	assert.Equal(t, 1, f.detaches)
	assert.Zero(t, f.unpins, "teardown path must not release the pin")

	c.Detach()
	assert.Equal(t, 1, f.detaches)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unattached", StateUnattached.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "attached", StateAttached.String())
	assert.Equal(t, "removed", StateRemoved.String())
	assert.Equal(t, "unknown", State(9).String())
}
