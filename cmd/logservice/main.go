// Command logservice runs LogService: the single aggregator every other
// shard streams its WARNING-and-above log records to (§2, §4.1).
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
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/streaming"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	shard := flag.Int("shard", 0, "shard index of this LogService instance")
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health and /metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("logservice: loading config: %v", err)
	}

	logDir, err := streaming.NewLogDir(cfg.LogDir, "LogService", *shard)
	if err != nil {
		log.Fatalf("logservice: %v", err)
	}
	f, err := logDir.Open(time.Now())
	if err != nil {
		log.Fatalf("logservice: opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	svc := streaming.NewLogService(nil)

	registry := rpc.NewRegistry()
	registry.Register("Log", rpc.TypedVoid(svc.Log))
	registry.Register("last_messages", rpc.Typed(func(ctx context.Context, _ struct{}) ([]streaming.Record, error) {
		return svc.LastMessages(), nil
	}))

	server := rpc.NewServer(registry)
	server.OnConnect(func(remote net.Addr) {
		log.Printf("logservice: connection from %s", remote)
	})

	coord := rpc.ServiceCoord{Name: "LogService", Shard: *shard}
	addr, err := cfg.Resolver().Resolve(coord)
	if err != nil {
		log.Fatalf("logservice: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("logservice: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("logservice: admin endpoint: %v", err)
		}
	}()

	log.Printf("logservice: shard %d listening on %s", *shard, addr)
	if err := server.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", addr.Port)); err != nil {
		log.Fatalf("logservice: %v", err)
	}
}
