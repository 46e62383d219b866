// Package streaming implements LogService's remote log aggregation, the
// per-shard local log directory every service writes to, and the
// admin-facing live status feed (§2, §6, §10), grounded on the teacher's
// control_plane/streaming/logger.go and control_plane/ws_hub.go.
package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogDir is one service shard's local log directory, mirroring
// cms/io/service.py's initialize_logging: <log_dir>/<service>-<shard>/
// <epoch>.log with a last.log symlink pointed at the current run's file.
type LogDir struct {
	dir string
}

// NewLogDir ensures <baseDir>/<service>-<shard> exists.
func NewLogDir(baseDir, service string, shard int) (*LogDir, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("%s-%d", service, shard))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("streaming: creating log dir: %w", err)
	}
	return &LogDir{dir: dir}, nil
}

// Open creates this run's <epoch>.log file and repoints last.log at it.
// The caller typically passes the result to log.SetOutput.
func (d *LogDir) Open(now time.Time) (*os.File, error) {
	name := fmt.Sprintf("%d.log", now.Unix())
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("streaming: opening log file: %w", err)
	}

	symlink := filepath.Join(d.dir, "last.log")
	_ = os.Remove(symlink)
	if err := os.Symlink(name, symlink); err != nil {
		f.Close()
		return nil, fmt.Errorf("streaming: linking last.log: %w", err)
	}
	return f, nil
}
