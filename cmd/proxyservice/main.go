// Command proxyservice runs ProxyService: it receives SubmissionScored
// notifications from ScoringService and mirrors the score change to every
// configured external ranker (§6).
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
	"github.com/itskum47/judgeforge/internal/ranking"
	"github.com/itskum47/judgeforge/internal/rpc"
	"github.com/itskum47/judgeforge/internal/scoring"
	"github.com/itskum47/judgeforge/internal/streaming"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// rankingPusher forwards a ScorePush to every configured external ranker,
// resolving the submission's user/task names from the store because the
// ranker's entity ids are human-readable, unlike judgeforge's numeric ones.
type rankingPusher struct {
	store   model.Store
	rankers []*ranking.Client
}

func (p *rankingPusher) pushScore(ctx context.Context, push scoring.ScorePush) error {
	sub, err := p.store.GetSubmission(ctx, push.SubmissionID)
	if err != nil {
		return fmt.Errorf("proxyservice: loading submission: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("proxyservice: submission %d not found", push.SubmissionID)
	}
	participation, err := p.store.GetParticipation(ctx, sub.ParticipationID)
	if err != nil {
		return fmt.Errorf("proxyservice: loading participation: %w", err)
	}
	if participation == nil {
		return fmt.Errorf("proxyservice: participation %d not found", sub.ParticipationID)
	}
	contest, err := p.store.GetContest(ctx, participation.ContestID)
	if err != nil {
		return fmt.Errorf("proxyservice: loading contest: %w", err)
	}
	if contest == nil {
		return fmt.Errorf("proxyservice: contest %d not found", participation.ContestID)
	}

	submissionKey := fmt.Sprintf("%d", sub.ID)
	elapsed := sub.Timestamp.Sub(contest.Start).Seconds()

	subchange := ranking.Subchange{
		Submission: submissionKey,
		Time:       elapsed,
		Score:      push.Score,
		Extra:      push.RankingStrings,
	}

	var firstErr error
	for _, r := range p.rankers {
		if err := r.PutSubchange(ctx, fmt.Sprintf("%s-%d", submissionKey, time.Now().Unix()), subchange); err != nil {
			log.Printf("proxyservice: pushing subchange for submission %d: %v", push.SubmissionID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func main() {
	shard := flag.Int("shard", 0, "shard index of this ProxyService instance")
	metricsAddr := flag.String("metrics-addr", ":8080", "address for /health and /metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("proxyservice: loading config: %v", err)
	}

	logDir, err := streaming.NewLogDir(cfg.LogDir, "ProxyService", *shard)
	if err != nil {
		log.Fatalf("proxyservice: %v", err)
	}
	f, err := logDir.Open(time.Now())
	if err != nil {
		log.Fatalf("proxyservice: opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store model.Store
	if cfg.DatabaseURL != "" {
		pg, err := model.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("proxyservice: connecting to database: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("proxyservice: no database_url configured, running against an in-memory store")
		store = model.NewMemoryStore()
	}

	pusher := &rankingPusher{store: store}
	for _, rs := range cfg.RankingServers {
		pusher.rankers = append(pusher.rankers, ranking.NewClient(rs.URL, rs.Username, rs.Password))
	}
	if len(pusher.rankers) == 0 {
		log.Printf("proxyservice: no ranking_servers configured, score changes are logged only")
	}

	registry := rpc.NewRegistry()
	registry.Register("SubmissionScored", rpc.TypedVoid(func(ctx context.Context, push scoring.ScorePush) error {
		if len(pusher.rankers) == 0 {
			log.Printf("proxyservice: submission %d scored %.2f (no ranker configured)", push.SubmissionID, push.Score)
			return nil
		}
		return pusher.pushScore(ctx, push)
	}))

	server := rpc.NewServer(registry)
	server.OnConnect(func(remote net.Addr) {
		log.Printf("proxyservice: connection from %s", remote)
	})

	resolver := cfg.Resolver()
	coord := rpc.ServiceCoord{Name: "ProxyService", Shard: *shard}
	addr, err := resolver.Resolve(coord)
	if err != nil {
		log.Fatalf("proxyservice: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("proxyservice: admin endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("proxyservice: admin endpoint: %v", err)
		}
	}()

	log.Printf("proxyservice: shard %d listening on %s", *shard, addr)
	if err := server.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", addr.Port)); err != nil {
		log.Fatalf("proxyservice: %v", err)
	}
}
