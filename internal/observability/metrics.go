// Package observability holds the admin-facing Prometheus metrics every
// service exposes, grounded on the teacher's control_plane/observability/
// metrics.go: one file of package-level promauto vars, grouped by concern,
// registered once at import time.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// === EvaluationService scheduler (§4.3/§5 backpressure) ===

	// QueueDepth tracks the number of operations pending dispatch, by
	// priority band. "An admin-facing metric exposes its length" (§5).
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "judgeforge_queue_depth",
		Help: "Current number of operations pending in the scheduler queue",
	}, []string{"priority"})

	// WorkerSaturation tracks the fraction of connected workers currently
	// busy, across all shards of one EvaluationService instance.
	WorkerSaturation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "judgeforge_worker_saturation",
		Help: "Ratio of busy workers to connected workers (0.0-1.0)",
	})

	// CircuitBreakerState tracks each downstream's circuit breaker state.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "judgeforge_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"target"})

	// WorkerTimeouts counts workers presumed dead by the watchdog (S4).
	WorkerTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "judgeforge_worker_timeouts_total",
		Help: "Total number of workers disabled by the inactivity watchdog",
	})

	// CompilationRetries and EvaluationRetries count infra-failure retries
	// by outcome, distinguishing a requeue from final exhaustion (§4.3/§7).
	CompilationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "judgeforge_compilation_retries_total",
		Help: "Compilation operations retried or exhausted after an infrastructure failure",
	}, []string{"outcome"}) // outcome: retried, exhausted

	EvaluationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "judgeforge_evaluation_retries_total",
		Help: "Evaluation operations retried or exhausted after an infrastructure failure",
	}, []string{"outcome"})

	// === Tokening (§4.6) ===

	// TokenWalletRemaining tracks each participation/task pair's current
	// token availability, refreshed on every accept/rejection check.
	TokenWalletRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "judgeforge_token_wallet_remaining",
		Help: "Tokens currently available to a participation for a task (-1 = unlimited)",
	}, []string{"participation_id", "task_id"})

	// === RPC fabric (§4.1) ===

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "judgeforge_rpc_call_duration_seconds",
		Help:    "RPC call round-trip latency as observed by the caller",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method"})

	RPCCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "judgeforge_rpc_call_failures_total",
		Help: "RPC calls that returned a transport-level error",
	}, []string{"service", "method"})

	// === FileCacher (§4.4) ===

	FileCacherFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "judgeforge_filecacher_fetch_latency_seconds",
		Help:    "Time spent fetching an object from the backing store on a cache miss",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	// === ResourceService (§2) ===

	ManagedProcessUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "judgeforge_managed_process_up",
		Help: "Whether a locally supervised process is currently running (1) or not (0)",
	}, []string{"process"})

	ProcessRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "judgeforge_process_restarts_total",
		Help: "Total number of times a locally supervised process was restarted after exiting",
	}, []string{"process"})
)
