package config

import (
	"flag"
	"os"
	"strconv"
)

type Config struct {
	Variant      string
	CostRatio    float64
	Normalize    bool
	LogLevel     string
	HistoryFile  string
	SnapshotPath string
	MetricsAddr  string
}

// Parse reads the shell's configuration from command-line flags, falling
// back to MULTIKEY_* environment variables.
func Parse() *Config {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) *Config {
	cfg := &Config{}
	fs.StringVar(&cfg.Variant, "variant", envStr("MULTIKEY_VARIANT", "positional"), "index variant (positional, nonpositional)")
	fs.Float64Var(&cfg.CostRatio, "cost-ratio", envFloat("MULTIKEY_COST_RATIO", 2.0), "relative cost of building a union versus probing a bucket")
	fs.BoolVar(&cfg.Normalize, "normalize", envBool("MULTIKEY_NORMALIZE", false), "compare sub-keys after Unicode NFC normalization")
	fs.StringVar(&cfg.LogLevel, "log-level", envStr("MULTIKEY_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.HistoryFile, "history", envStr("MULTIKEY_HISTORY", ".multikey_history"), "readline history file")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", envStr("MULTIKEY_SNAPSHOT", ""), "snapshot file loaded at start and used by save/load")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envStr("MULTIKEY_METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	fs.Parse(args)
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
