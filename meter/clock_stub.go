//go:build !windows

package meter

import "time"

var start = time.Now()

func tickNow() int64 {
	return time.Since(start).Milliseconds()
}
