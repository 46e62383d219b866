//go:build linux

package sandbox

import (
	"os"
	"syscall"
)

// maxRSS extracts peak resident set size in bytes from a finished
// process's platform rusage, where available.
func maxRSS(ps *os.ProcessState) int64 {
	if ps == nil {
		return 0
	}
	ru, ok := ps.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	// Linux reports Maxrss in kilobytes.
	return ru.Maxrss * 1024
}
