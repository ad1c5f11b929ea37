//go:build windows

package meter

import "golang.org/x/sys/windows"

// tickNow reads the system millisecond tick; DurationSinceBoot wraps
// GetTickCount64.
func tickNow() int64 {
	return windows.DurationSinceBoot().Milliseconds()
}
