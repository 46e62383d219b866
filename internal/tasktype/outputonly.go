package tasktype

import (
	"context"

	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/sandbox"
)

// outputOnly is §4.2's OutputOnly task type: no compilation step, the
// contestant directly uploads the expected output file(s) as their
// submission, and evaluation is a pure comparison with no sandbox run.
type outputOnly struct {
	cache *filecacher.FileCacher
}

func newOutputOnly(_ sandbox.Runner, cache *filecacher.FileCacher) TaskType {
	return &outputOnly{cache: cache}
}

// Compile trivially succeeds and passes the submitted files through as
// "executables" so EvaluateTestcase can locate the submitted output for
// the matching testcase codename.
func (o *outputOnly) Compile(ctx context.Context, in CompileInput) (CompileResult, error) {
	return CompileResult{Success: true, Executables: in.Files}, nil
}

func (o *outputOnly) EvaluateTestcase(ctx context.Context, in EvaluateInput) (EvaluateResult, error) {
	outputName := "output_" + in.Codename + ".txt"
	digest, ok := in.Executables[outputName]
	if !ok {
		return EvaluateResult{Outcome: 0.0, Text: "No output file submitted for this testcase"}, nil
	}

	submitted, err := o.cache.GetAsBytes(ctx, digest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}
	expected, err := o.cache.GetAsBytes(ctx, in.OutputDigest, filecacher.Gosched)
	if err != nil {
		return EvaluateResult{}, err
	}

	if tokenEqual(submitted, expected) {
		return EvaluateResult{Outcome: 1.0, Text: "Output is correct"}, nil
	}
	return EvaluateResult{Outcome: 0.0, Text: "Output isn't correct"}, nil
}

var _ TaskType = (*outputOnly)(nil)
