// Command evaluationservice runs EvaluationService: the authoritative
// operation queue and worker pool (§4.3), plus the admin-facing live
// status feed (§6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itskum47/judgeforge/internal/config"
	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/scheduler"
	"github.com/itskum47/judgeforge/internal/streaming"
	"github.com/itskum47/judgeforge/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newSubmissionArgs is the argument shape of the NewSubmission RPC method:
// a compile Operation to admit and enqueue (§4.3).
type newSubmissionArgs struct {
	ObjectID  int64
	DatasetID int64
	Kind      worker.Kind
	Priority  scheduler.Priority
}

// statusSnapshot is what the admin live feed broadcasts (§6).
type statusSnapshot struct {
	QueueLength int               `json:"queue_length"`
	Workers     []scheduler.Status `json:"workers"`
}

func main() {
	shard := flag.Int("shard", 0, "shard index of this EvaluationService instance")
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health, /metrics and /status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("evaluationservice: loading config: %v", err)
	}

	logDir, err := streaming.NewLogDir(cfg.LogDir, "EvaluationService", *shard)
	if err != nil {
		log.Fatalf("evaluationservice: %v", err)
	}
	f, err := logDir.Open(time.Now())
	if err != nil {
		log.Fatalf("evaluationservice: opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store model.Store
	if cfg.DatabaseURL != "" {
		pg, err := model.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("evaluationservice: connecting to database: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("evaluationservice: no database_url configured, running against an in-memory store")
		store = model.NewMemoryStore()
	}

	resolver := cfg.Resolver()

	numWorkers := resolver.ShardCount("Worker")
	workers := make([]rpc.Caller, numWorkers)
	for i := 0; i < numWorkers; i++ {
		client := rpc.NewClient(rpc.ServiceCoord{Name: "Worker", Shard: i}, resolver, 5*time.Second)
		workers[i] = client
	}

	var scoringClient rpc.Caller
	if resolver.ShardCount("ScoringService") > 0 {
		sc := rpc.NewClient(rpc.ServiceCoord{Name: "ScoringService", Shard: 0}, resolver, 5*time.Second)
		sc.Start(ctx)
		scoringClient = sc
	} else {
		log.Printf("evaluationservice: no ScoringService configured, scoring notifications are dropped")
		scoringClient = rpc.NewFakeClient(rpc.ServiceCoord{Name: "ScoringService", Shard: 0})
	}

	scoringNotify := func(ctx context.Context, submissionID, datasetID int64) {
		args := struct {
			SubmissionID int64
			DatasetID    int64
		}{submissionID, datasetID}
		if err := scoringClient.Call(ctx, "Score", args, nil); err != nil {
			log.Printf("evaluationservice: notifying ScoringService of submission %d: %v", submissionID, err)
		}
	}

	sched := scheduler.New(workers, store, scoringNotify)

	for i, caller := range workers {
		client := caller.(*rpc.Client)
		shardIdx := i
		client.OnDisconnect(func() { sched.HandleDisconnect(shardIdx) })
		client.Start(ctx)
	}

	sched.Start(ctx)

	registry := rpc.NewRegistry()
	registry.Register("NewSubmission", rpc.TypedVoid(func(ctx context.Context, args newSubmissionArgs) error {
		if args.Kind == worker.KindCompile || args.Kind == worker.KindUserTestCompile {
			admit, err := sched.AdmitSubmission(ctx, args.ObjectID)
			if err != nil {
				return fmt.Errorf("evaluationservice: admission check for submission %d: %w", args.ObjectID, err)
			}
			if !admit {
				return fmt.Errorf("evaluationservice: queue is over threshold or submission rate limit exceeded, try again later")
			}
		}
		sched.Enqueue(&scheduler.Operation{
			Kind:      args.Kind,
			ObjectID:  args.ObjectID,
			DatasetID: args.DatasetID,
			Priority:  args.Priority,
			Timestamp: time.Now(),
		})
		return nil
	}))
	registry.Register("QueueLen", rpc.Typed(func(ctx context.Context, _ struct{}) (int, error) {
		return sched.QueueLen(), nil
	}))

	server := rpc.NewServer(registry)
	server.OnConnect(func(remote net.Addr) {
		log.Printf("evaluationservice: connection from %s", remote)
	})

	coord := rpc.ServiceCoord{Name: "EvaluationService", Shard: *shard}
	addr, err := resolver.Resolve(coord)
	if err != nil {
		log.Fatalf("evaluationservice: %v", err)
	}

	hub := streaming.NewStatusHub(func(ctx context.Context) (any, error) {
		return statusSnapshot{
			QueueLength: sched.QueueLen(),
			Workers:     sched.GetStatus(),
		}, nil
	}, 2*time.Second)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Printf("evaluationservice: status upgrade: %v", err)
				return
			}
			hub.Register(conn)
		})
		log.Printf("evaluationservice: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("evaluationservice: admin endpoint: %v", err)
		}
	}()

	log.Printf("evaluationservice: shard %d listening on %s (%d worker shard(s) configured)", *shard, addr, numWorkers)
	if err := server.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", addr.Port)); err != nil {
		log.Fatalf("evaluationservice: %v", err)
	}
}
