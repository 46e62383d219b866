//go:build !unix

package tasktype

import "fmt"

func mkfifo(path string, mode uint32) error {
	return fmt.Errorf("tasktype: named pipes unsupported on this platform")
}
