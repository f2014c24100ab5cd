package main

import (
	"flag"
	"fmt"
	"os"
)

// Worker selection values for the -worker flag
const (
	workerFetch = "fetch"
	workerSend  = "send"
	workerAll   = "all"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	Worker      string
	LogFormat   string
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FEED_WATCHDOG_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: FEED_WATCHDOG_CONFIG)")

	flag.StringVar(&cfg.Worker, "worker",
		getEnv("FEED_WATCHDOG_WORKER", workerAll),
		"Worker to run: fetch, send, all (env: FEED_WATCHDOG_WORKER)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FEED_WATCHDOG_LOG_FORMAT", "json"),
		"Log format: json, text (env: FEED_WATCHDOG_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.Worker {
	case workerFetch, workerSend, workerAll:
	default:
		return fmt.Errorf("unknown worker %q, expected fetch, send or all", cfg.Worker)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q, expected json or text", cfg.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
