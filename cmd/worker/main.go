// Command worker runs a Worker shard: it receives job groups over RPC,
// runs each job in a sandbox, and returns results (§4.2).
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/itskum47/judgeforge/internal/config"
	"github.com/itskum47/judgeforge/internal/filecacher"
	"github.com/itskum47/judgeforge/internal/model"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/sandbox"
	"github.com/itskum47/judgeforge/internal/streaming"
	"github.com/itskum47/judgeforge/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	shard := flag.Int("shard", 0, "shard index of this Worker instance")
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health and /metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("worker: loading config: %v", err)
	}

	logDir, err := streaming.NewLogDir(cfg.LogDir, "Worker", *shard)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	f, err := logDir.Open(time.Now())
	if err != nil {
		log.Fatalf("worker: opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store model.Store
	var backing filecacher.BackingStore
	if cfg.DatabaseURL != "" {
		pg, err := model.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("worker: connecting to database: %v", err)
		}
		defer pg.Close()
		store = pg
		backing = filecacher.NewDBBackend(pg.Pool)
	} else {
		log.Printf("worker: no database_url configured, running against an in-memory store")
		store = model.NewMemoryStore()
		local, err := filecacher.NewLocalBackend(filepath.Join(cfg.CacheDir, "backing"))
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		backing = local
	}

	cache, err := filecacher.New(filepath.Join(cfg.CacheDir, fmt.Sprintf("fs-cache-Worker-%d", *shard)), backing)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	svc := worker.NewService(sandbox.NewExecRunner(), cache, store)

	registry := rpc.NewRegistry()
	registry.Register("ExecuteJobGroup", rpc.Typed(svc.ExecuteJobGroup))
	registry.Register("PrecacheFiles", rpc.TypedVoid(svc.PrecacheFiles))
	// Quit is sent by the scheduler's watchdog to a worker it has given up
	// on (workerpool.go's timeout handling): acknowledge and exit shortly
	// after so the response frame has time to flush.
	registry.Register("Quit", rpc.TypedVoid(func(ctx context.Context, _ struct{}) error {
		log.Printf("worker: received Quit, shutting down")
		go func() {
			time.Sleep(200 * time.Millisecond)
			os.Exit(0)
		}()
		return nil
	}))

	server := rpc.NewServer(registry)
	server.OnConnect(func(remote net.Addr) {
		log.Printf("worker: connection from %s", remote)
	})
	server.OnDisconnect(func(remote net.Addr) {
		log.Printf("worker: %s disconnected", remote)
	})

	coord := rpc.ServiceCoord{Name: "Worker", Shard: *shard}
	addr, err := cfg.Resolver().Resolve(coord)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("worker: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("worker: admin endpoint: %v", err)
		}
	}()

	log.Printf("worker: shard %d listening on %s", *shard, addr)
	if err := server.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", addr.Port)); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
