// tracker-console is the interactive shell for a local scalar store.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"log/slog"

	"github.com/MalchuL/experiment-tracker-sub000/internal/console"
	"github.com/MalchuL/experiment-tracker-sub000/internal/loader"
	"github.com/MalchuL/experiment-tracker-sub000/internal/logging"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "database file path (overrides config, empty string in config means in-memory)")
	level := flag.String("level", "", "log level (overrides config)")
	jsonLog := flag.Bool("json-log", false, "JSON log output")
	flag.Parse()

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		// Load wraps the read error, so unwrap-aware matching is required.
		if errors.Is(err, fs.ErrNotExist) {
			cfg = loader.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if *jsonLog {
		cfg.Log.JSON = true
	}

	logging.Init(parseLevel(cfg.Log.Level), cfg.Log.JSON)

	st, err := store.New(cfg.StoreConfig())
	if err != nil {
		log.Fatalf("Open store: %v", err)
	}
	defer st.Close()

	svc, err := metrics.New(context.Background(), metrics.Config{
		Store:            st,
		CacheTTL:         cfg.CacheTTL(),
		DefaultMaxPoints: cfg.Query.DefaultMaxPoints,
	})
	if err != nil {
		log.Fatalf("Create service: %v", err)
	}

	logging.Info("tracker-console started",
		"version", Version, "database", cfg.Database.Path)

	console.New(svc, st).Run()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
