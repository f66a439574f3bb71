// Package config loads sumav's runtime configuration: the intersection
// ratio threshold, store connection parameters, and reconnection/worker
// tuning knobs. Mirrors original_source/sumav/conf.py's
// "environment-overridable" contract (spec.md §6), with an optional YAML
// file for local development profiles layered underneath the environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Postgres holds connection parameters for the Detection/Graph Store.
type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Config is sumav's full runtime configuration.
type Config struct {
	// IntersectionRatio is the threshold tau used for relation
	// classification and alias detection (spec.md §4.2, §4.3.2).
	IntersectionRatio float64 `yaml:"intersectionRatio"`

	// WorkerConcurrency is informational only: the core build/search
	// algorithms are single-threaded (spec.md §5).
	WorkerConcurrency int `yaml:"workerConcurrency"`

	// WaitForReconnection is loaded from WAIT_FOR_RECONNECTION (seconds);
	// no store code reads it.
	WaitForReconnection time.Duration `yaml:"waitForReconnection"`

	// VTAPIKey is the API key for the (out-of-core) VirusTotal ingestion
	// adaptor, when source=vt.
	VTAPIKey string `yaml:"vtApiKey"`

	Postgres Postgres `yaml:"postgres"`
}

// Default returns sumav's built-in defaults, matching conf.py's fallbacks.
func Default() Config {
	return Config{
		IntersectionRatio:   0.9,
		WorkerConcurrency:   defaultWorkerConcurrency(),
		WaitForReconnection: 60 * time.Second,
		Postgres: Postgres{
			Host:     "localhost",
			Port:     5432,
			User:     "sumav",
			Password: "sumav!@34",
			Database: "sumav",
		},
	}
}

// Load builds a Config by layering, in increasing priority: built-in
// defaults, an optional YAML file (path from SUMAV_CONFIG_FILE), then
// environment variables. Environment variables always win, per spec.md §6.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SUMAV_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INTERSECTION_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.IntersectionRatio = f
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("WAIT_FOR_RECONNECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WaitForReconnection = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("VT_APIKEY"); v != "" {
		cfg.VTAPIKey = v
	}
	if v := os.Getenv("PSQL_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PSQL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = n
		}
	}
	if v := os.Getenv("PSQL_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PSQL_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PSQL_DB"); v != "" {
		cfg.Postgres.Database = v
	}
}

// defaultWorkerConcurrency mirrors conf.py's `os.cpu_count() if <= 8 else
// os.cpu_count() / 2` heuristic: informational only (spec.md §5), since the
// core build/search algorithms never fan out across goroutines.
func defaultWorkerConcurrency() int {
	n := runtime.NumCPU()
	if n <= 8 {
		return n
	}
	return n / 2
}
