// Package config loads the static service topology and runtime tunables,
// generalizing the teacher's scattered os.Getenv reads in main.go into one
// loaded struct.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itskum47/judgeforge/internal/rpc"
)

// ConfigEnvVar overrides the config file search path, the equivalent of the
// source's CMS_CONFIG (§6).
const ConfigEnvVar = "JUDGEFORGE_CONFIG"

// DefaultConfigPath is used when ConfigEnvVar is unset.
const DefaultConfigPath = "/usr/local/etc/judgeforge.json"

// ServiceEndpoint is one entry of the static (name, shard) -> (host, port)
// table.
type ServiceEndpoint struct {
	Name  string `json:"name"`
	Shard int    `json:"shard"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
}

// Config is the full static configuration loaded at service startup.
type Config struct {
	Endpoints []ServiceEndpoint `json:"endpoints"`

	CacheDir string `json:"cache_dir"`
	LogDir   string `json:"log_dir"`
	TempDir  string `json:"temp_dir"`

	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr"`

	WorkerTimeout         Duration `json:"worker_timeout"`
	ReconciliationInterval Duration `json:"reconciliation_interval"`
	MaxCompilationTries   int      `json:"max_compilation_tries"`
	MaxEvaluationTries    int      `json:"max_evaluation_tries"`

	AdminRPCBridgeTimeout Duration `json:"admin_rpc_bridge_timeout"`

	CookieSecret string `json:"cookie_secret"`

	// RankingServers are the external rankers ProxyService mirrors contest
	// state to (§6). A submission's score change is pushed to every one of
	// them.
	RankingServers []RankingServer `json:"ranking_servers"`

	// ManagedProcesses lists the local child processes ResourceService
	// supervises (spec.md's service table entry for ResourceService).
	ManagedProcesses []ManagedProcess `json:"managed_processes"`
}

// RankingServer is one external ranker ProxyService pushes entity updates
// to, over HTTP with Basic auth.
type RankingServer struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ManagedProcess is one local process ResourceService starts and restarts
// on crash.
type ManagedProcess struct {
	Name string   `json:"name"`
	Path string   `json:"path"`
	Args []string `json:"args"`
}

// Duration is a time.Duration that marshals as a Go duration string
// ("10m", "30s") in the config file, instead of raw nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns hard-coded defaults matching §5 (10 minute worker
// timeout), §4.3 (30s reconciliation sweep, MAX_*_TRIES=3) and §5 (60s
// admin RPC bridge wait).
func Default() Config {
	return Config{
		CacheDir:               "/var/local/cache/judgeforge",
		LogDir:                 "/var/local/log/judgeforge",
		TempDir:                "/tmp/judgeforge",
		RedisAddr:              "localhost:6379",
		WorkerTimeout:          Duration(10 * time.Minute),
		ReconciliationInterval: Duration(30 * time.Second),
		MaxCompilationTries:    3,
		MaxEvaluationTries:     3,
		AdminRPCBridgeTimeout:  Duration(60 * time.Second),
	}
}

// Load reads the config file at the path named by ConfigEnvVar, or
// DefaultConfigPath if unset, merging it over Default(). A missing config
// file yields Default() unchanged; an unreadable or malformed one is
// returned as an error, which callers treat as fatal at startup (§7).
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Resolver builds an rpc.Resolver from the loaded endpoint table.
func (c Config) Resolver() *rpc.Resolver {
	table := make(map[rpc.ServiceCoord]rpc.Address, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		table[rpc.ServiceCoord{Name: ep.Name, Shard: ep.Shard}] = rpc.Address{Host: ep.Host, Port: ep.Port}
	}
	return rpc.NewResolver(table)
}

// ShardFromEnv resolves a shard index the way the CLI surface of §6
// specifies: an explicit shard index, or -1 meaning "infer from local IP
// against configuration". Inference is left to the caller (it needs the
// resolved Config and local interface list); this only validates the
// explicit case.
func ShardFromEnv(explicit int) (int, error) {
	if explicit < -1 {
		return 0, fmt.Errorf("config: invalid shard %d", explicit)
	}
	return explicit, nil
}
