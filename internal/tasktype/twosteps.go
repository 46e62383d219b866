package tasktype

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/language"
	"github.com/itskum47/judgeforge/internal/sandbox"
)

// twoSteps is §4.2's TwoSteps task type: two solution binaries, compiled
// from two named source groups ("step1", "step2" by filename prefix),
// piped first's stdout into second's stdin.
type twoSteps struct {
	runner sandbox.Runner
	cache  *filecacher.FileCacher
}

func newTwoSteps(runner sandbox.Runner, cache *filecacher.FileCacher) TaskType {
	return &twoSteps{runner: runner, cache: cache}
}

func (t *twoSteps) Compile(ctx context.Context, in CompileInput) (CompileResult, error) {
	lang, err := language.Get(in.Language)
	if err != nil {
		return CompileResult{}, err
	}

	dir, err := os.MkdirTemp("", "twosteps-compile-*")
	if err != nil {
		return CompileResult{}, err
	}
	defer os.RemoveAll(dir)

	executables := make(map[string]string)
	for _, step := range []string{"step1", "step2"} {
		files := filesWithPrefix(in.Files, step+"_")
		if len(files) == 0 {
			return CompileResult{Success: false, Text: fmt.Sprintf("No source files for %s", step)}, nil
		}
		sources, err := materializeFiles(ctx, t.cache, files, dir)
		if err != nil {
			return CompileResult{}, err
		}
		res, err := t.runner.Run(ctx, sandbox.Spec{
			ChdirPath: dir,
			Policy:    sandbox.PolicyCompilePermissive,
			Limits:    sandbox.Limits{CPUTimeLimit: 20 * time.Second, WallClockLimit: 40 * time.Second, MemoryLimit: 1 << 30},
			Argv:      lang.CompileArgv(sources, step),
		})
		if err != nil {
			return CompileResult{}, err
		}
		if res.Status != sandbox.OK || res.ExitCode != 0 {
			return CompileResult{Success: false, Text: fmt.Sprintf("Compilation of %s failed", step)}, nil
		}

		content, err := os.ReadFile(filepath.Join(dir, step))
		if err != nil {
			return CompileResult{Success: false, Text: "Compiler produced no executable"}, nil
		}
		digest, err := t.cache.PutBytes(ctx, step+" executable", content)
		if err != nil {
			return CompileResult{}, err
		}
		executables[step] = digest
	}

	return CompileResult{Success: true, Executables: executables}, nil
}

// EvaluateTestcase runs step1 and step2 concurrently, piping step1's
// stdout into step2's stdin through a named pipe in their shared chdir
// (§4.2: "two solution binaries piped").
func (t *twoSteps) EvaluateTestcase(ctx context.Context, in EvaluateInput) (EvaluateResult, error) {
	dir, err := os.MkdirTemp("", "twosteps-eval-*")
	if err != nil {
		return EvaluateResult{}, err
	}
	defer os.RemoveAll(dir)

	for _, step := range []string{"step1", "step2"} {
		digest, ok := in.Executables[step]
		if !ok {
			return EvaluateResult{}, fmt.Errorf("tasktype: missing executable %q", step)
		}
		content, err := t.cache.GetAsBytes(ctx, digest, filecacher.Gosched)
		if err != nil {
			return EvaluateResult{}, err
		}
		if err := os.WriteFile(filepath.Join(dir, step), content, 0o755); err != nil {
			return EvaluateResult{}, err
		}
	}

	inputContent, err := t.cache.GetAsBytes(ctx, in.InputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "input.txt"), inputContent, 0o644); err != nil {
		return EvaluateResult{}, err
	}

	pipePath := filepath.Join(dir, "pipe")
	if err := mkfifo(pipePath, 0o600); err != nil {
		return EvaluateResult{}, err
	}

	limits := sandbox.Limits{
		CPUTimeLimit:   time.Duration(in.TimeLimit * float64(time.Second)),
		WallClockLimit: 2 * time.Duration(in.TimeLimit*float64(time.Second)),
		MemoryLimit:    in.MemoryLimit,
	}

	var step1Res, step2Res sandbox.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		step1Res, err = t.runner.Run(gctx, sandbox.Spec{
			ChdirPath: dir, Policy: sandbox.PolicyEvaluateStrict, Limits: limits,
			Redirect: sandbox.Redirect{Stdin: "input.txt", Stdout: "pipe"},
			Argv:     []string{"./step1"},
		})
		return err
	})
	g.Go(func() error {
		var err error
		step2Res, err = t.runner.Run(gctx, sandbox.Spec{
			ChdirPath: dir, Policy: sandbox.PolicyEvaluateStrict, Limits: limits,
			Redirect: sandbox.Redirect{Stdin: "pipe", Stdout: "output.txt"},
			Argv:     []string{"./step2"},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return EvaluateResult{}, err
	}

	for _, res := range []sandbox.Result{step1Res, step2Res} {
		if res.Status != sandbox.OK {
			outcome, text, infra := outcomeFromSandbox(res)
			if infra {
				return EvaluateResult{}, fmt.Errorf("tasktype: evaluate infrastructure failure: %s", text)
			}
			return EvaluateResult{Outcome: outcome, Text: text}, nil
		}
	}

	expected, err := t.cache.GetAsBytes(ctx, in.OutputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	produced, err := os.ReadFile(filepath.Join(dir, "output.txt"))
	if err != nil {
		produced = nil
	}

	outcome, text := 0.0, "Output isn't correct"
	if tokenEqual(produced, expected) {
		outcome, text = 1.0, "Output is correct"
	}
	return EvaluateResult{
		Outcome:                outcome,
		Text:                   text,
		ExecutionTime:          step1Res.CPUTime.Seconds() + step2Res.CPUTime.Seconds(),
		ExecutionWallClockTime: step2Res.WallTime.Seconds(),
		ExecutionMemory:        max64(step1Res.Memory, step2Res.Memory),
	}, nil
}

func filesWithPrefix(files map[string]string, prefix string) map[string]string {
	out := make(map[string]string)
	for name, digest := range files {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			out[name[len(prefix):]] = digest
		}
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

var _ TaskType = (*twoSteps)(nil)
