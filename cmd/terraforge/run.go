package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"terraforge.ai/internal/assets"
	"terraforge.ai/internal/config"
	"terraforge.ai/internal/persistence/archive"
	"terraforge.ai/internal/persistence/indexdb"
	persistlog "terraforge.ai/internal/persistence/log"
	"terraforge.ai/internal/persistence/snapshot"
	"terraforge.ai/internal/terrain/debugimg"
	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
	"terraforge.ai/internal/terrain/place"
	"terraforge.ai/internal/terrain/surface"
	"terraforge.ai/internal/transport/observer"
)

type runOptions struct {
	ConfigPath     string
	Fetch          string
	Seed           int64
	SeedSet        bool
	OutDir         string
	DBPath         string
	DisableDB      bool
	ObserverAddr   string
	ObserverLinger time.Duration
	DebugImages    bool
	Archive        bool
}

type runOutcome struct {
	RunID        string
	RunDir       string
	Seed         int64
	Status       string
	SnapshotPath string
	Result       *pipeline.Result
}

const snapshotName = "terrain.snap.zst"

func run(ctx context.Context, o runOptions, logger *log.Logger) (runOutcome, error) {
	out := runOutcome{RunID: uuid.NewString(), Status: indexdb.StatusFailed}
	out.RunDir = filepath.Join(o.OutDir, "runs", out.RunID)
	if err := os.MkdirAll(out.RunDir, 0o755); err != nil {
		return out, err
	}

	cfgPath := strings.TrimSpace(o.ConfigPath)
	stampDir := filepath.Dir(cfgPath)
	if src := strings.TrimSpace(o.Fetch); src != "" {
		b, err := assets.Fetch(ctx, src, filepath.Join(out.RunDir, "assets"), "")
		if err != nil {
			return out, err
		}
		if b.Config == "" {
			return out, fmt.Errorf("bundle %s has no terrain config", src)
		}
		cfgPath, stampDir = b.Config, b.Dir
		logger.Printf("fetched %s into %s", src, b.Dir)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return out, fmt.Errorf("load config: %w", err)
	}
	var randomized bool
	out.Seed, randomized = chooseSeed(cfg, o)
	if randomized {
		logger.Printf("randomized seed: %d", out.Seed)
	}
	gcfg, err := config.Build(cfg, stampDir)
	if err != nil {
		return out, fmt.Errorf("build config: %w", err)
	}
	dims := cfg.Surface.Dimensions()
	surf := surface.NewMemory(dims)

	// The index is a read model; it outlives cancellation of the run so
	// the final status still lands.
	ictx := context.Background()
	var idx *indexdb.SQLiteIndex
	if !o.DisableDB {
		p := strings.TrimSpace(o.DBPath)
		if p == "" {
			p = filepath.Join(o.OutDir, "index", "runs.sqlite")
		}
		idx, err = indexdb.OpenSQLite(p)
		if err != nil {
			return out, fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.StartRun(ictx, indexdb.Run{
			RunID:        out.RunID,
			Seed:         out.Seed,
			ConfigPath:   cfgPath,
			ConfigDigest: cfg.Digest(),
			MapRes:       dims.MapResolution,
			Biomes:       len(gcfg.Biomes),
		}); err != nil {
			return out, fmt.Errorf("index start: %w", err)
		}
	}

	collector := &place.Collector{}
	plog := persistlog.NewPlacementLog(out.RunDir, out.RunID)
	defer plog.Close()
	progress := persistlog.NewProgressLog(out.RunDir, out.RunID)
	defer progress.Close()

	sinks := place.Multi{collector, plog}
	reporters := pipeline.MultiReporter{
		progress,
		pipeline.ReporterFunc(func(p pipeline.Progress) { logger.Printf("%s", p) }),
	}
	if idx != nil {
		sinks = append(sinks, idx.Placements(out.RunID))
		reporters = append(reporters, idx.Reporter(out.RunID))
	}

	var obs *observer.Server
	if addr := strings.TrimSpace(o.ObserverAddr); addr != "" {
		obs = observer.NewServer(out.RunID, out.Seed, logger)
		srv, err := serveObserver(addr, obs, logger)
		if err != nil {
			return out, fmt.Errorf("observer: %w", err)
		}
		defer shutdownObserver(ctx, srv, o.ObserverLinger)
		reporters = append(reporters, obs)
	}

	var onBiome func(string, *gen.BiomeMap)
	if o.DebugImages {
		n := len(gcfg.Biomes)
		onBiome = func(name string, m *gen.BiomeMap) {
			p := filepath.Join(out.RunDir, "debug", "biomes_"+name+".png")
			if err := debugimg.WritePNG(p, debugimg.Upscale(debugimg.Biomes(m, n))); err != nil {
				logger.Printf("debug image %s: %v", name, err)
			}
		}
	}

	res, runErr := pipeline.Run(ctx, surf, gcfg, out.Seed, pipeline.Options{
		Logger:     logger,
		Reporter:   reporters,
		Sink:       sinks,
		OnBiomeMap: onBiome,
	})
	out.Result = res
	out.Status = runStatus(runErr)

	var snapSize int64
	if runErr == nil {
		var snap snapshot.SnapshotV1
		snap, out.SnapshotPath, snapSize, runErr = writeSnapshot(out, cfg.Digest(), res, collector.Records)
		if runErr != nil {
			out.Status = indexdb.StatusFailed
		} else if o.Archive {
			if p, ok, err := archive.ArchiveSeedSnapshot(o.OutDir, out.SnapshotPath, snap); err != nil {
				logger.Printf("archive: %v", err)
			} else if ok {
				logger.Printf("archived seed %d as %s", out.Seed, p)
			}
		}
		if o.DebugImages {
			p := filepath.Join(out.RunDir, "debug", "heights.png")
			if err := debugimg.WritePNG(p, debugimg.Heights(surf.Height)); err != nil {
				logger.Printf("debug image heights: %v", err)
			}
		}
	}
	if err := progress.Err(); err != nil {
		logger.Printf("progress log: %v", err)
	}

	if idx != nil {
		fctx, cancel := context.WithTimeout(ictx, 10*time.Second)
		if err := idx.FinishRun(fctx, out.RunID, out.Status, res, out.SnapshotPath); err != nil {
			logger.Printf("index finish: %v", err)
		}
		cancel()
		if st := idx.Stats(); st.DropCheckpointTotal+st.DropPlacementTotal+st.DropClearTotal > 0 {
			logger.Printf("index dropped rows: checkpoints=%d placements=%d clears=%d",
				st.DropCheckpointTotal, st.DropPlacementTotal, st.DropClearTotal)
		}
	}
	if obs != nil {
		obs.Finish(out.Status, res, runErr)
	}
	if runErr != nil {
		return out, runErr
	}

	logger.Printf("run %s %s: seed=%d placements=%s draws=%s snapshot=%s (%s) elapsed=%s",
		out.RunID, out.Status, out.Seed,
		humanize.Comma(int64(res.Placements)), humanize.Comma(int64(res.Draws)),
		out.SnapshotPath, humanize.Bytes(uint64(snapSize)), res.Elapsed.Round(time.Millisecond))
	return out, nil
}

// chooseSeed applies -seed, then randomize_seed, then the configured seed.
func chooseSeed(cfg config.Config, o runOptions) (seed int64, randomized bool) {
	switch {
	case o.SeedSet:
		return o.Seed, false
	case cfg.RandomizeSeed:
		return rand.Int64N(math.MaxInt32), true
	default:
		return cfg.Seed, false
	}
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return indexdb.StatusDone
	case errors.Is(err, context.Canceled):
		return indexdb.StatusCancelled
	default:
		return indexdb.StatusFailed
	}
}

func writeSnapshot(out runOutcome, configDigest string, res *pipeline.Result, placements []gen.Placement) (snapshot.SnapshotV1, string, int64, error) {
	snap := snapshot.FromContext(snapshot.Header{
		RunID:       out.RunID,
		Seed:        out.Seed,
		CreatedUnix: time.Now().Unix(),
	}, res.Context, placements)
	snap.ConfigDigest = configDigest
	path := filepath.Join(out.RunDir, snapshotName)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return snap, "", 0, fmt.Errorf("write snapshot: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return snap, path, 0, err
	}
	return snap, path, st.Size(), nil
}

func serveObserver(addr string, obs *observer.Server, logger *log.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           obs.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("observer serve: %v", err)
		}
	}()
	logger.Printf("observer listening on ws://%s/ws", ln.Addr())
	return srv, nil
}

// shutdownObserver waits out linger (cut short by ctx) so late viewers
// still see the DONE message.
func shutdownObserver(ctx context.Context, srv *http.Server, linger time.Duration) {
	if linger > 0 {
		t := time.NewTimer(linger)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
}
