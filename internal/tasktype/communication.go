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

// communication is §4.2's Communication task type: a contestant solution
// and a fixed manager process exchange messages over a pair of FIFOs
// (manager -> solution, solution -> manager), the manager alone deciding
// the outcome by writing it to a result file it controls.
type communication struct {
	runner     sandbox.Runner
	cache      *filecacher.FileCacher
	managerDir string // directory holding the compiled manager executable "manager", provided at construction
}

// NewCommunicationWithManager builds a Communication task type whose
// compiled manager executable is managerDir/manager (task-level, not per-submission:
// §4.2 describes the manager as fixed per task, unlike the contestant's
// solution).
func NewCommunicationWithManager(runner sandbox.Runner, cache *filecacher.FileCacher, managerDir string) TaskType {
	return &communication{runner: runner, cache: cache, managerDir: managerDir}
}

func newCommunication(runner sandbox.Runner, cache *filecacher.FileCacher) TaskType {
	return &communication{runner: runner, cache: cache}
}

func (c *communication) Compile(ctx context.Context, in CompileInput) (CompileResult, error) {
	lang, err := language.Get(in.Language)
	if err != nil {
		return CompileResult{}, err
	}

	dir, err := os.MkdirTemp("", "comm-compile-*")
	if err != nil {
		return CompileResult{}, err
	}
	defer os.RemoveAll(dir)

	sources, err := materializeFiles(ctx, c.cache, in.Files, dir)
	if err != nil {
		return CompileResult{}, err
	}

	const exeName = "solution"
	res, err := c.runner.Run(ctx, sandbox.Spec{
		ChdirPath: dir,
		Policy:    sandbox.PolicyCompilePermissive,
		Limits:    sandbox.Limits{CPUTimeLimit: 20 * time.Second, WallClockLimit: 40 * time.Second, MemoryLimit: 1 << 30},
		Argv:      lang.CompileArgv(sources, exeName),
	})
	if err != nil {
		return CompileResult{}, err
	}
	if res.Status != sandbox.OK || res.ExitCode != 0 {
		return CompileResult{Success: false, Text: "Compilation failed"}, nil
	}

	content, err := os.ReadFile(filepath.Join(dir, exeName))
	if err != nil {
		return CompileResult{Success: false, Text: "Compiler produced no executable"}, nil
	}
	digest, err := c.cache.PutBytes(ctx, "compiled solution", content)
	if err != nil {
		return CompileResult{}, err
	}
	return CompileResult{Success: true, Executables: map[string]string{exeName: digest}}, nil
}

// EvaluateTestcase runs the contestant's solution and the task's manager
// concurrently, connected by two FIFOs, and trusts the manager's own
// verdict file for the outcome (§4.2: "solution + manager communicating
// via FIFOs").
func (c *communication) EvaluateTestcase(ctx context.Context, in EvaluateInput) (EvaluateResult, error) {
	if c.managerDir == "" {
		return EvaluateResult{}, fmt.Errorf("tasktype: communication task type requires a manager binary")
	}

	dir, err := os.MkdirTemp("", "comm-eval-*")
	if err != nil {
		return EvaluateResult{}, err
	}
	defer os.RemoveAll(dir)

	const exeName = "solution"
	digest, ok := in.Executables[exeName]
	if !ok {
		return EvaluateResult{}, fmt.Errorf("tasktype: missing executable %q", exeName)
	}
	content, err := c.cache.GetAsBytes(ctx, digest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, exeName), content, 0o755); err != nil {
		return EvaluateResult{}, err
	}

	managerSrc, err := os.ReadFile(filepath.Join(c.managerDir, "manager"))
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("tasktype: reading manager binary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manager"), managerSrc, 0o755); err != nil {
		return EvaluateResult{}, err
	}

	inputContent, err := c.cache.GetAsBytes(ctx, in.InputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "input.txt"), inputContent, 0o644); err != nil {
		return EvaluateResult{}, err
	}

	toSolution := filepath.Join(dir, "to_solution")
	toManager := filepath.Join(dir, "to_manager")
	if err := mkfifo(toSolution, 0o600); err != nil {
		return EvaluateResult{}, err
	}
	if err := mkfifo(toManager, 0o600); err != nil {
		return EvaluateResult{}, err
	}

	limits := sandbox.Limits{
		CPUTimeLimit:   time.Duration(in.TimeLimit * float64(time.Second)),
		WallClockLimit: 2 * time.Duration(in.TimeLimit*float64(time.Second)),
		MemoryLimit:    in.MemoryLimit,
	}

	var solutionRes, managerRes sandbox.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		solutionRes, err = c.runner.Run(gctx, sandbox.Spec{
			ChdirPath: dir, Policy: sandbox.PolicyEvaluateStrict, Limits: limits,
			Redirect: sandbox.Redirect{Stdin: "to_solution", Stdout: "to_manager"},
			Argv:     []string{"./solution"},
		})
		return err
	})
	g.Go(func() error {
		var err error
		managerRes, err = c.runner.Run(gctx, sandbox.Spec{
			ChdirPath: dir, Policy: sandbox.PolicyCompilePermissive, Limits: limits,
			Redirect: sandbox.Redirect{Stdin: "to_manager", Stdout: "to_solution"},
			Argv:     []string{"./manager", "input.txt", "result.txt"},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return EvaluateResult{}, err
	}

	if managerRes.Status != sandbox.OK {
		return EvaluateResult{}, fmt.Errorf("tasktype: manager infrastructure failure: %s", managerRes.Detail)
	}
	if solutionRes.Status != sandbox.OK {
		outcome, text, infra := outcomeFromSandbox(solutionRes)
		if infra {
			return EvaluateResult{}, fmt.Errorf("tasktype: evaluate infrastructure failure: %s", text)
		}
		return EvaluateResult{Outcome: outcome, Text: text}, nil
	}

	resultContent, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		return EvaluateResult{Outcome: 0.0, Text: "Manager produced no verdict"}, nil
	}

	outcome, text := parseManagerVerdict(resultContent)
	return EvaluateResult{
		Outcome:                outcome,
		Text:                   text,
		ExecutionTime:          solutionRes.CPUTime.Seconds(),
		ExecutionWallClockTime: solutionRes.WallTime.Seconds(),
		ExecutionMemory:        solutionRes.Memory,
	}, nil
}

// parseManagerVerdict reads the manager's first line as a float outcome
// and the remainder as the explanatory text, the conventional manager
// result-file format.
func parseManagerVerdict(content []byte) (float64, string) {
	var outcome float64
	var rest string
	if _, err := fmt.Sscanf(string(content), "%f", &outcome); err != nil {
		return 0.0, "Manager produced an unparsable verdict"
	}
	if idx := indexNewline(content); idx >= 0 {
		rest = string(content[idx+1:])
	}
	return outcome, rest
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

var _ TaskType = (*communication)(nil)
