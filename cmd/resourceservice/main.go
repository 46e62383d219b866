// Command resourceservice runs ResourceService: it starts the other local
// services configured for this host and restarts any that crash
// (spec.md's service table: "Watches local processes, restarts crashed
// peers").
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itskum47/judgeforge/internal/config"
	"github.com/itskum47/judgeforge/internal/resourcemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health and /metrics")
	restartBackoff := flag.Duration("restart-backoff", 2*time.Second, "delay before restarting a crashed process")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("resourceservice: loading config: %v", err)
	}

	if len(cfg.ManagedProcesses) == 0 {
		log.Printf("resourceservice: no managed_processes configured, nothing to supervise")
	}

	monitor := resourcemon.NewMonitor(*restartBackoff)
	for _, mp := range cfg.ManagedProcesses {
		monitor.Watch(resourcemon.ProcessSpec{Name: mp.Name, Path: mp.Path, Args: mp.Args})
		log.Printf("resourceservice: watching %s (%s)", mp.Name, mp.Path)
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
		log.Printf("resourceservice: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("resourceservice: admin endpoint: %v", err)
		}
	}()

	log.Printf("resourceservice: supervising %d process(es)", len(cfg.ManagedProcesses))
	monitor.Run(ctx)
	log.Printf("resourceservice: shutting down")
}
