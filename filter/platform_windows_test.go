//go:build windows

package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWaitForModuleAlreadyLoaded(t *testing.T) {
	// kernel32 is mapped in every process; the wait must return on the
	// first poll without sleeping.
	done := make(chan struct{})
	go func() {
		mod := waitForModule(zap.NewNop(), "kernel32.dll", time.Hour)
		assert.NotZero(t, mod)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wait loop did not find an already-loaded module")
	}
}
