package streaming

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogDirSymlinksLastLog(t *testing.T) {
	base := t.TempDir()
	ld, err := NewLogDir(base, "EvaluationService", 2)
	if err != nil {
		t.Fatalf("NewLogDir: %v", err)
	}

	f1, err := ld.Open(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f1.Close()

	dir := filepath.Join(base, "EvaluationService-2")
	target, err := os.Readlink(filepath.Join(dir, "last.log"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "1000.log" {
		t.Fatalf("last.log -> %q, want 1000.log", target)
	}

	f2, err := ld.Open(time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("Open (second run): %v", err)
	}
	f2.Close()

	target, err = os.Readlink(filepath.Join(dir, "last.log"))
	if err != nil {
		t.Fatalf("Readlink after second run: %v", err)
	}
	if target != "2000.log" {
		t.Fatalf("last.log -> %q, want 2000.log", target)
	}

	if _, err := os.Stat(filepath.Join(dir, "1000.log")); err != nil {
		t.Fatalf("first run's log file should still exist: %v", err)
	}
}
