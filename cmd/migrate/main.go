package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/halolight/halolight-api-go/internal/config"
	"github.com/halolight/halolight-api-go/internal/logger"
	"github.com/halolight/halolight-api-go/internal/migrate"
	"github.com/halolight/halolight-api-go/internal/store/pg"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		dsn        = flag.String("dsn", "", "PostgreSQL URL (overrides database.url)")
		timeout    = flag.Duration("timeout", time.Minute, "overall deadline")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|seed|status")
		os.Exit(2)
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.Database.URL = *dsn
	}
	log := logger.New(os.Stderr, cfg.IsDevelopment(), cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(cfg.Database.URL, pg.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), cfg.Database.URL, migrate.WithLogger(log))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var st migrate.Status
		st, err = mgr.Status(ctx)
		if err == nil {
			fmt.Printf("version: %d dirty: %t\n", st.Version, st.Dirty)
			for _, name := range st.Seeds {
				fmt.Printf("seed: %s\n", name)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		log.Error("migrate failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}
