// Command scoringservice runs ScoringService: it turns a completed
// SubmissionResult into a score and, for the active dataset, pushes the
// change on to ProxyService (§4.5).
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

	"github.com/itskum47/judgeforge/internal/config"
	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/scoring"
	"github.com/itskum47/judgeforge/internal/streaming"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scoreArgs is the argument shape of the Score RPC method (§4.5).
type scoreArgs struct {
	SubmissionID int64
	DatasetID    int64
}

func main() {
	shard := flag.Int("shard", 0, "shard index of this ScoringService instance")
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health and /metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("scoringservice: loading config: %v", err)
	}

	logDir, err := streaming.NewLogDir(cfg.LogDir, "ScoringService", *shard)
	if err != nil {
		log.Fatalf("scoringservice: %v", err)
	}
	f, err := logDir.Open(time.Now())
	if err != nil {
		log.Fatalf("scoringservice: opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store model.Store
	if cfg.DatabaseURL != "" {
		pg, err := model.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("scoringservice: connecting to database: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("scoringservice: no database_url configured, running against an in-memory store")
		store = model.NewMemoryStore()
	}

	resolver := cfg.Resolver()
	var proxy rpc.Caller
	if resolver.ShardCount("ProxyService") > 0 {
		client := rpc.NewClient(rpc.ServiceCoord{Name: "ProxyService", Shard: 0}, resolver, 5*time.Second)
		client.Start(ctx)
		proxy = client
	} else {
		log.Printf("scoringservice: no ProxyService configured, score pushes are disabled")
		proxy = rpc.NewFakeClient(rpc.ServiceCoord{Name: "ProxyService", Shard: 0})
	}

	svc := scoring.NewService(store, proxy)
	if cfg.RedisAddr != "" {
		lock := model.NewScoreLock(cfg.RedisAddr, 30*time.Second)
		defer lock.Close()
		svc = svc.WithLock(lock)
	} else {
		log.Printf("scoringservice: no redis_addr configured, score recomputation is unserialized")
	}

	registry := rpc.NewRegistry()
	registry.Register("Score", rpc.TypedVoid(func(ctx context.Context, args scoreArgs) error {
		return svc.Score(ctx, args.SubmissionID, args.DatasetID)
	}))

	server := rpc.NewServer(registry)
	server.OnConnect(func(remote net.Addr) {
		log.Printf("scoringservice: connection from %s", remote)
	})

	coord := rpc.ServiceCoord{Name: "ScoringService", Shard: *shard}
	addr, err := resolver.Resolve(coord)
	if err != nil {
		log.Fatalf("scoringservice: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("scoringservice: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("scoringservice: admin endpoint: %v", err)
		}
	}()

	log.Printf("scoringservice: shard %d listening on %s", *shard, addr)
	if err := server.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", addr.Port)); err != nil {
		log.Fatalf("scoringservice: %v", err)
	}
}
