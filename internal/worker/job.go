// Package worker implements §4.2's Worker: it receives a job group over
// RPC, runs each job sequentially in a sandbox, and returns structured
// results. It holds no durable state of its own.
package worker

// Kind is an operation's kind, mirroring §4.3's Operation tuple.
type Kind string

const (
	KindCompile          Kind = "compile"
	KindEvaluate         Kind = "evaluate"
	KindUserTestCompile  Kind = "user_test_compile"
	KindUserTestEvaluate Kind = "user_test_evaluate"
)

// Job is one self-contained unit of work inside a job group. Jobs are
// independent (§4.2): a job's failure never aborts the rest of the group.
type Job struct {
	Kind Kind

	SubmissionID int64
	DatasetID    int64

	TaskTypeName   string
	TaskTypeParams string
	Language       string
	Files          map[string]string // filename -> digest, submitted source

	// Populated from the SubmissionResult for evaluate jobs.
	Executables map[string]string // filename -> digest, compiled output

	TestcaseCodename string
	InputDigest      string
	OutputDigest     string
	TimeLimit        float64 // seconds
	MemoryLimit      int64   // bytes
}

// JobResult is the outcome of one Job. Err is set for infrastructure
// failures (§4.2's SANDBOX_ERROR/SYSCALL/FILE_ACCESS retry class); a
// terminal user-code failure is instead expressed through
// CompileSuccess=false or Outcome=0.0 with Text explaining why.
type JobResult struct {
	Kind Kind

	CompileSuccess bool
	CompileText    string
	Executables    map[string]string

	TestcaseCodename       string
	Outcome                float64
	EvaluateText           string
	ExecutionTime          float64
	ExecutionWallClockTime float64
	ExecutionMemory        int64

	Err string
}

func isCompile(k Kind) bool {
	return k == KindCompile || k == KindUserTestCompile
}
