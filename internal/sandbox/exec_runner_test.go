package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestExecRunnerOK(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Spec{
		ChdirPath: t.TempDir(),
		Policy:    PolicyEvaluateStrict,
		Limits:    Limits{CPUTimeLimit: time.Second, WallClockLimit: 2 * time.Second},
		Argv:      []string{"true"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != OK || res.ExitCode != 0 {
		t.Fatalf("got %+v, want OK/0", res)
	}
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Spec{
		ChdirPath: t.TempDir(),
		Limits:    Limits{CPUTimeLimit: time.Second, WallClockLimit: 2 * time.Second},
		Argv:      []string{"false"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != OK || res.ExitCode == 0 {
		t.Fatalf("got %+v, want OK with non-zero exit", res)
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), Spec{
		ChdirPath: t.TempDir(),
		Limits:    Limits{CPUTimeLimit: 50 * time.Millisecond, WallClockLimit: 100 * time.Millisecond},
		Argv:      []string{"sleep", "5"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != Timeout {
		t.Fatalf("got %+v, want TIMEOUT", res)
	}
}

func TestExecRunnerEmptyArgv(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), Spec{ChdirPath: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for empty argv")
	}
}
