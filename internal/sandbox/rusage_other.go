//go:build !linux

package sandbox

import "os"

// maxRSS is unavailable on non-Linux build targets used for development.
func maxRSS(ps *os.ProcessState) int64 { return 0 }
