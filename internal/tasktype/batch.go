package tasktype

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/language"
	"github.com/itskum47/judgeforge/internal/sandbox"
)

// batch is §4.2's Batch task type: a single source compiled to one
// executable, run once per testcase with stdin redirected from the
// testcase's input file and stdout to output.txt, which is then compared
// with the expected output.
type batch struct {
	runner sandbox.Runner
	cache  *filecacher.FileCacher
}

func newBatch(runner sandbox.Runner, cache *filecacher.FileCacher) TaskType {
	return &batch{runner: runner, cache: cache}
}

func (b *batch) Compile(ctx context.Context, in CompileInput) (CompileResult, error) {
	lang, err := language.Get(in.Language)
	if err != nil {
		return CompileResult{}, err
	}

	dir, err := os.MkdirTemp("", "batch-compile-*")
	if err != nil {
		return CompileResult{}, err
	}
	defer os.RemoveAll(dir)

	sources, err := materializeFiles(ctx, b.cache, in.Files, dir)
	if err != nil {
		return CompileResult{}, err
	}

	const exeName = "solution"
	argv := lang.CompileArgv(sources, exeName)

	res, err := b.runner.Run(ctx, sandbox.Spec{
		ChdirPath: dir,
		Policy:    sandbox.PolicyCompilePermissive,
		Limits:    sandbox.Limits{CPUTimeLimit: 20 * time.Second, WallClockLimit: 40 * time.Second, MemoryLimit: 1 << 30},
		Argv:      argv,
	})
	if err != nil {
		return CompileResult{}, err
	}

	switch res.Status {
	case sandbox.OK:
		if res.ExitCode != 0 {
			return CompileResult{Success: false, Text: "Compilation failed"}, nil
		}
		exePath := filepath.Join(dir, exeName)
		content, err := os.ReadFile(exePath)
		if err != nil {
			return CompileResult{Success: false, Text: "Compiler produced no executable"}, nil
		}
		digest, err := b.cache.PutBytes(ctx, "compiled executable", content)
		if err != nil {
			return CompileResult{}, err
		}
		return CompileResult{Success: true, Executables: map[string]string{exeName: digest}}, nil
	case sandbox.Timeout, sandbox.Signal:
		return CompileResult{Success: false, Text: "Compilation timed out or crashed"}, nil
	default:
		return CompileResult{}, fmt.Errorf("tasktype: compile infrastructure failure: %s", res.Detail)
	}
}

func (b *batch) EvaluateTestcase(ctx context.Context, in EvaluateInput) (EvaluateResult, error) {
	dir, err := os.MkdirTemp("", "batch-eval-*")
	if err != nil {
		return EvaluateResult{}, err
	}
	defer os.RemoveAll(dir)

	const exeName = "solution"
	exeDigest, ok := in.Executables[exeName]
	if !ok {
		return EvaluateResult{}, fmt.Errorf("tasktype: missing executable %q", exeName)
	}
	exeContent, err := b.cache.GetAsBytes(ctx, exeDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	exePath := filepath.Join(dir, exeName)
	if err := os.WriteFile(exePath, exeContent, 0o755); err != nil {
		return EvaluateResult{}, err
	}

	inputContent, err := b.cache.GetAsBytes(ctx, in.InputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	inputPath := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(inputPath, inputContent, 0o644); err != nil {
		return EvaluateResult{}, err
	}

	res, err := b.runner.Run(ctx, sandbox.Spec{
		ChdirPath: dir,
		Policy:    sandbox.PolicyEvaluateStrict,
		Limits: sandbox.Limits{
			CPUTimeLimit:   time.Duration(in.TimeLimit * float64(time.Second)),
			WallClockLimit: 2 * time.Duration(in.TimeLimit*float64(time.Second)),
			MemoryLimit:    in.MemoryLimit,
		},
		Redirect: sandbox.Redirect{Stdin: "input.txt", Stdout: "output.txt"},
		Argv:     []string{"./" + exeName},
	})
	if err != nil {
		return EvaluateResult{}, err
	}

	outcome, text, infra := outcomeFromSandbox(res)
	if infra {
		return EvaluateResult{}, fmt.Errorf("tasktype: evaluate infrastructure failure: %s", text)
	}
	if res.Status != sandbox.OK {
		return EvaluateResult{
			Outcome:                outcome,
			Text:                   text,
			ExecutionTime:          res.CPUTime.Seconds(),
			ExecutionWallClockTime: res.WallTime.Seconds(),
			ExecutionMemory:        res.Memory,
		}, nil
	}

	expected, err := b.cache.GetAsBytes(ctx, in.OutputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	produced, err := os.ReadFile(filepath.Join(dir, "output.txt"))
	if err != nil {
		produced = nil
	}

	if tokenEqual(produced, expected) {
		outcome, text = 1.0, "Output is correct"
	} else {
		outcome, text = 0.0, "Output isn't correct"
	}

	return EvaluateResult{
		Outcome:                outcome,
		Text:                   text,
		ExecutionTime:          res.CPUTime.Seconds(),
		ExecutionWallClockTime: res.WallTime.Seconds(),
		ExecutionMemory:        res.Memory,
	}, nil
}

// tokenEqual compares output token-by-token (whitespace-insensitive),
// the conventional diff used by Batch-style checkers when no custom
// checker executable is configured.
func tokenEqual(a, b []byte) bool {
	return fieldsEqual(bytes.Fields(a), bytes.Fields(b))
}

func fieldsEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

var _ TaskType = (*batch)(nil)
