package tasktype

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/sandbox"
)

func newTestCache(t *testing.T) *filecacher.FileCacher {
	t.Helper()
	dir := t.TempDir()
	backing, err := filecacher.NewLocalBackend(filepath.Join(dir, "backing"))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	fc, err := filecacher.New(filepath.Join(dir, "cache"), backing)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fc
}

func TestBatchCompileFailsCleanlyOnInvalidSource(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	source := `#!/bin/sh
echo "$(cat)"
`
	srcDigest, err := cache.PutBytes(ctx, "solution.sh", []byte(source))
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	bt, err := New("batch", sandbox.NewExecRunner(), cache)
	if err != nil {
		t.Fatalf("New(batch): %v", err)
	}

	compiled, err := bt.Compile(ctx, CompileInput{
		Files:    map[string]string{"solution.sh": srcDigest},
		Language: "python3",
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// python3's "compile" step is a py_compile syntax check on a shell
	// script; it is expected to fail cleanly rather than crash the test.
	if compiled.Success {
		t.Skip("environment has a python3 toolchain that accepted the fixture; nothing further to assert")
	}
}

func TestUnknownTaskType(t *testing.T) {
	if _, err := New("no_such_type", sandbox.NewExecRunner(), newTestCache(t)); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}

func TestOutputOnlyRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	expectedDigest, err := cache.PutBytes(ctx, "expected", []byte("42\n"))
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	submittedDigest, err := cache.PutBytes(ctx, "submitted", []byte("42\n"))
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	ot, err := New("output_only", sandbox.NewExecRunner(), cache)
	if err != nil {
		t.Fatalf("New(output_only): %v", err)
	}

	compiled, err := ot.Compile(ctx, CompileInput{
		Files: map[string]string{"output_t1.txt": submittedDigest},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !compiled.Success {
		t.Fatal("expected OutputOnly Compile to always succeed")
	}

	result, err := ot.EvaluateTestcase(ctx, EvaluateInput{
		Codename:     "t1",
		Executables:  compiled.Executables,
		OutputDigest: expectedDigest,
	})
	if err != nil {
		t.Fatalf("EvaluateTestcase: %v", err)
	}
	if result.Outcome != 1.0 {
		t.Fatalf("Outcome = %v, want 1.0", result.Outcome)
	}
}

func TestOutputOnlyMissingSubmission(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	expectedDigest, _ := cache.PutBytes(ctx, "expected", []byte("42\n"))

	ot, _ := New("output_only", sandbox.NewExecRunner(), cache)
	compiled, _ := ot.Compile(ctx, CompileInput{Files: map[string]string{}})
	result, err := ot.EvaluateTestcase(ctx, EvaluateInput{
		Codename:     "t1",
		Executables:  compiled.Executables,
		OutputDigest: expectedDigest,
	})
	if err != nil {
		t.Fatalf("EvaluateTestcase: %v", err)
	}
	if result.Outcome != 0.0 {
		t.Fatalf("Outcome = %v, want 0.0 for missing submission", result.Outcome)
	}
}
