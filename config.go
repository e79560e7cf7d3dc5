package trellis

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config is the enumerated engine configuration, loadable from
// environment variables or an optional trellis.yaml file.
type Config struct {
	DatabaseURL   string        // DATABASE_URL, required
	WorkerThreads int           // WORKER_THREADS, default CPU count
	ParseTimeout  time.Duration // PARSE_TIMEOUT_MS, default 30s
	MaxFileBytes  int64         // MAX_FILE_BYTES, default 10 MiB
	MaxTotalBytes int64         // MAX_TOTAL_BYTES, default 500 MiB
	CacheURL      string        // CACHE_URL, optional file:// digest cache
}

// DefaultConfig returns the documented defaults with no database set.
func DefaultConfig() Config {
	return Config{
		WorkerThreads: runtime.NumCPU(),
		ParseTimeout:  30 * time.Second,
		MaxFileBytes:  10 << 20,
		MaxTotalBytes: 500 << 20,
	}
}

// LoadConfig reads configuration from the environment and, when present,
// a trellis.yaml in the working directory. Environment variables win
// over file values.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetDefault("worker_threads", runtime.NumCPU())
	v.SetDefault("parse_timeout_ms", 30000)
	v.SetDefault("max_file_bytes", int64(10<<20))
	v.SetDefault("max_total_bytes", int64(500<<20))

	v.SetConfigName("trellis")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, key := range []string{
		"database_url", "worker_threads", "parse_timeout_ms",
		"max_file_bytes", "max_total_bytes", "cache_url",
	} {
		v.BindEnv(key)
	}
	v.AutomaticEnv()

	cfg := Config{
		DatabaseURL:   v.GetString("database_url"),
		WorkerThreads: v.GetInt("worker_threads"),
		ParseTimeout:  time.Duration(v.GetInt64("parse_timeout_ms")) * time.Millisecond,
		MaxFileBytes:  v.GetInt64("max_file_bytes"),
		MaxTotalBytes: v.GetInt64("max_total_bytes"),
		CacheURL:      v.GetString("cache_url"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerThreads < 1 {
		cfg.WorkerThreads = runtime.NumCPU()
	}
	return cfg, nil
}
