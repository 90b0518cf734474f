package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var (
		configPath   = flag.String("config", "", "terrain config (.yaml or .toml); empty runs the built-in default")
		fetch        = flag.String("fetch", "", "go-getter source for a config/stamp bundle (overrides -config)")
		seed         = flag.Int64("seed", 0, "seed override (disables randomize_seed when set)")
		outDir       = flag.String("out", "./data", "output directory; each run writes to <out>/runs/<run_id>")
		dbPath       = flag.String("db", "", "sqlite run index (default: <out>/index/runs.sqlite)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite run index")
		observerAddr = flag.String("observer_addr", "", "serve the progress websocket on this loopback address (empty to disable)")
		linger       = flag.Duration("observer_linger", 0, "keep the observer up this long after the run ends")
		debugImages  = flag.Bool("debug_images", false, "write biome and height PNGs next to the snapshot")
		archiveSeed  = flag.Bool("archive", true, "keep one canonical snapshot per (seed, config) under <out>/archives")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[terraforge] ", log.LstdFlags|log.Lmicroseconds)

	seedSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedSet = true
		}
	})

	ctx, cancel := signalContext()
	defer cancel()

	out, err := run(ctx, runOptions{
		ConfigPath:     *configPath,
		Fetch:          *fetch,
		Seed:           *seed,
		SeedSet:        seedSet,
		OutDir:         *outDir,
		DBPath:         *dbPath,
		DisableDB:      *disableDB,
		ObserverAddr:   *observerAddr,
		ObserverLinger: *linger,
		DebugImages:    *debugImages,
		Archive:        *archiveSeed,
	}, logger)
	if err != nil {
		logger.Fatalf("run %s: %v", out.RunID, err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
