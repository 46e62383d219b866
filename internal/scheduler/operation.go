// Package scheduler implements §4.3's EvaluationService queue and worker
// pool: the authoritative priority queue of pending compile/evaluate
// operations, a dispatcher that hands them to Workers over RPC, and the
// watchdogs that detect and recover from worker failure.
package scheduler

import (
	"fmt"
	"time"

	"github.com/itskum47/judgeforge/internal/worker"
)

// Priority is an Operation's scheduling priority. Lower values are more
// urgent (§4.3: "lower priority number ... go first").
type Priority int

const (
	PriorityExtraHigh Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityExtraLow
)

// Operation is §4.3's immutable 6-tuple. TestcaseCodename is set only for
// evaluate kinds.
type Operation struct {
	Kind             worker.Kind
	ObjectID         int64 // submission id (or user test id, for the user_test_* kinds)
	DatasetID        int64
	TestcaseCodename string
	Priority         Priority
	Timestamp        time.Time
}

// Key identifies an Operation for dedup purposes (§4.3's "op ∈ queue XOR op
// ∈ some worker's ops XOR op.done" invariant).
func (op *Operation) Key() string {
	return fmt.Sprintf("%s/%d/%d/%s", op.Kind, op.ObjectID, op.DatasetID, op.TestcaseCodename)
}

// String renders a Priority as a metric label (§11's queue depth gauge).
func (p Priority) String() string {
	switch p {
	case PriorityExtraHigh:
		return "extra_high"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityExtraLow:
		return "extra_low"
	default:
		return "unknown"
	}
}

func isCompileKind(k worker.Kind) bool {
	return k == worker.KindCompile || k == worker.KindUserTestCompile
}

// sameClass reports whether two operations are "compatible kinds" for
// bundling into one job group (§4.3): both compile-class or both
// evaluate-class, for the same object.
func sameClass(a, b *Operation) bool {
	return a.ObjectID == b.ObjectID && a.DatasetID == b.DatasetID && isCompileKind(a.Kind) == isCompileKind(b.Kind)
}
