// Package tasktype implements §4.2's task types as a registry of tagged
// variants (§9): a name-to-constructor map populated at init, each variant
// a small struct implementing the Compile/EvaluateTestcase capability
// interface, replacing the source's dynamic-import plugin discovery.
package tasktype

import (
	"context"
	"fmt"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/sandbox"
)

// CompileResult is the outcome of a compilation step, distinct from the
// raw sandbox.Result (§4.2's "job outcome mapping").
type CompileResult struct {
	Success     bool
	Text        string
	Executables map[string]string // filename -> digest, set iff Success
}

// EvaluateResult is the outcome of one testcase's evaluation.
type EvaluateResult struct {
	Outcome                float64
	Text                   string
	ExecutionTime          float64
	ExecutionWallClockTime float64
	ExecutionMemory        int64
}

// CompileInput bundles what a task type needs to run a compilation job.
type CompileInput struct {
	Files    map[string]string // filename -> digest, submission's source files
	Language string            // e.g. "cpp", matches internal/language registry
	Params   string            // opaque task_type_params
}

// EvaluateInput bundles what a task type needs to evaluate one testcase.
type EvaluateInput struct {
	Codename     string // testcase codename, e.g. "t1"
	Executables  map[string]string // filename -> digest, from the CompileResult
	InputDigest  string
	OutputDigest string
	TimeLimit    float64 // seconds
	MemoryLimit  int64   // bytes
	Params       string
}

// TaskType is the capability interface every variant satisfies (§4.2:
// "polymorphic over capabilities {compile, evaluate_testcase}").
type TaskType interface {
	Compile(ctx context.Context, in CompileInput) (CompileResult, error)
	EvaluateTestcase(ctx context.Context, in EvaluateInput) (EvaluateResult, error)
}

// Constructor builds a TaskType bound to a sandbox runner and file cacher
// (every variant needs to fetch sources/executables and run them).
type Constructor func(runner sandbox.Runner, cache *filecacher.FileCacher) TaskType

var registry = map[string]Constructor{}

// Register adds name to the registry; panics on duplicate registration.
func Register(name string, ctor Constructor) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("tasktype: duplicate registration for %q", name))
	}
	registry[name] = ctor
}

// New builds the named task type (§3 Dataset.task_type_name).
func New(name string, runner sandbox.Runner, cache *filecacher.FileCacher) (TaskType, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("tasktype: unknown task type %q", name)
	}
	return ctor(runner, cache), nil
}

func init() {
	Register("batch", newBatch)
	Register("communication", newCommunication)
	Register("output_only", newOutputOnly)
	Register("two_steps", newTwoSteps)
}

// outcomeFromSandbox maps a sandbox.Result to a testcase outcome per
// §4.2's "Evaluate" job outcome mapping: TIMEOUT/SIGNAL/SYSCALL/FILE_ACCESS
// become outcome 0.0 with an explanatory reason, SANDBOX_ERROR is an
// infrastructure failure the caller must retry rather than score.
func outcomeFromSandbox(res sandbox.Result) (outcome float64, text string, infra bool) {
	switch res.Status {
	case sandbox.OK:
		return -1, "", false // caller must still inspect stdout/stderr
	case sandbox.Timeout:
		return 0.0, "Execution timed out", false
	case sandbox.Signal:
		return 0.0, fmt.Sprintf("Execution killed by signal %d", res.Signal), false
	case sandbox.Syscall, sandbox.FileAccess:
		return 0.0, res.Detail, false
	case sandbox.SandboxError:
		return 0, res.Detail, true
	default:
		return 0, "unknown sandbox status", true
	}
}
