package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
)

// SQLiteIndex is a queryable secondary index of generation runs. Run rows
// are written synchronously; checkpoints and placements go through a
// buffered writer goroutine and are dropped when it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCheckpoint atomic.Uint64
	dropPlacement  atomic.Uint64
	dropClear      atomic.Uint64
}

type reqKind int

const (
	reqCheckpoint reqKind = iota + 1
	reqPlacement
	reqClear
	reqSync
)

type req struct {
	kind  reqKind
	runID string

	checkpoint pipeline.Progress
	at         time.Time
	seq        int
	placement  gen.Placement
	done       chan struct{}
}

// Run is one row of the runs table.
type Run struct {
	RunID        string
	Seed         int64
	ConfigPath   string
	ConfigDigest string
	MapRes       int
	Biomes       int
	Status       string
	Placements   int
	Draws        uint64
	Digests      gen.Digests
	SnapshotPath string
	StartedAt    time.Time
	FinishedAt   time.Time
}

const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Stats reports writer queue health.
type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropCheckpointTotal uint64
	DropPlacementTotal  uint64
	DropClearTotal      uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			config_path TEXT NOT NULL,
			config_digest TEXT NOT NULL,
			map_resolution INTEGER NOT NULL,
			biomes INTEGER NOT NULL,
			status TEXT NOT NULL,
			placements INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			digests_json TEXT NOT NULL DEFAULT '{}',
			snapshot_path TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed, started_at);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			stage TEXT NOT NULL,
			text TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (run_id, ordinal)
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			biome INTEGER NOT NULL,
			source TEXT NOT NULL,
			prefab TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			yaw REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_prefab ON placements(prefab, run_id);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropCheckpointTotal: s.dropCheckpoint.Load(),
		DropPlacementTotal:  s.dropPlacement.Load(),
		DropClearTotal:      s.dropClear.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// JSONL logs remain the source of truth.
		drops.Add(1)
	}
}

// Sync blocks until every queued write has been committed. The writer
// keeps a transaction open between requests, and the single connection
// would otherwise block direct statements.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartRun inserts the run row with status running.
func (s *SQLiteIndex) StartRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,seed,config_path,config_digest,map_resolution,biomes,status,started_at) VALUES(?,?,?,?,?,?,?,?)`,
		r.RunID, r.Seed, r.ConfigPath, r.ConfigDigest, r.MapRes, r.Biomes, StatusRunning, r.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// FinishRun records the outcome. res may be nil for failed runs.
func (s *SQLiteIndex) FinishRun(ctx context.Context, runID, status string, res *pipeline.Result, snapshotPath string) error {
	digests := gen.Digests{}
	placements, draws := 0, uint64(0)
	if res != nil {
		digests, placements, draws = res.Digests, res.Placements, res.Draws
	}
	dj, err := json.Marshal(digests)
	if err != nil {
		return err
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}
	out, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, placements=?, draws=?, digests_json=?, snapshot_path=?, finished_at=? WHERE run_id=?`,
		status, placements, int64(draws), string(dj), snapshotPath, time.Now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Reporter returns a progress reporter that indexes checkpoints for runID.
func (s *SQLiteIndex) Reporter(runID string) pipeline.Reporter {
	return pipeline.ReporterFunc(func(p pipeline.Progress) {
		s.enqueue(req{kind: reqCheckpoint, runID: runID, checkpoint: p, at: time.Now()}, &s.dropCheckpoint)
	})
}

// PlacementRecorder is a placement sink that indexes records for one run.
type PlacementRecorder struct {
	s     *SQLiteIndex
	runID string
	seq   int
}

func (s *SQLiteIndex) Placements(runID string) *PlacementRecorder {
	return &PlacementRecorder{s: s, runID: runID}
}

func (p *PlacementRecorder) Place(r gen.Placement) error {
	p.seq++
	p.s.enqueue(req{kind: reqPlacement, runID: p.runID, seq: p.seq, placement: r}, &p.s.dropPlacement)
	return nil
}

func (p *PlacementRecorder) Clear() error {
	p.seq = 0
	p.s.enqueue(req{kind: reqClear, runID: p.runID}, &p.s.dropClear)
	return nil
}

const runColumns = `run_id,seed,config_path,config_digest,map_resolution,biomes,status,placements,draws,digests_json,snapshot_path,started_at,finished_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r                 Run
		draws             int64
		dj, start, finish string
	)
	if err := row.Scan(&r.RunID, &r.Seed, &r.ConfigPath, &r.ConfigDigest, &r.MapRes, &r.Biomes, &r.Status,
		&r.Placements, &draws, &dj, &r.SnapshotPath, &start, &finish); err != nil {
		return r, err
	}
	r.Draws = uint64(draws)
	_ = json.Unmarshal([]byte(dj), &r.Digests)
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, start)
	if finish != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finish)
	}
	return r, nil
}

// GetRun returns the run row, or ok=false when it does not exist.
func (s *SQLiteIndex) GetRun(ctx context.Context, runID string) (Run, bool, error) {
	if err := s.Sync(ctx); err != nil {
		return Run{}, false, err
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID))
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	return r, true, nil
}

// FindRunsBySeed lists runs for seed, oldest first.
func (s *SQLiteIndex) FindRunsBySeed(ctx context.Context, seed int64) ([]Run, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE seed=? ORDER BY started_at`, seed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountPlacements returns how many placements were indexed per prefab.
func (s *SQLiteIndex) CountPlacements(ctx context.Context, runID string) (map[string]int, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT prefab, COUNT(*) FROM placements WHERE run_id=? GROUP BY prefab`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			prefab string
			n      int
		)
		if err := rows.Scan(&prefab, &n); err != nil {
			return nil, err
		}
		out[prefab] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCheckpoint, _ := s.db.Prepare(`INSERT OR REPLACE INTO checkpoints(run_id,ordinal,stage,text,at) VALUES(?,?,?,?,?)`)
	insertPlacement, _ := s.db.Prepare(`INSERT OR REPLACE INTO placements(run_id,seq,biome,source,prefab,x,y,z,yaw) VALUES(?,?,?,?,?,?,?,?,?)`)
	deletePlacements, _ := s.db.Prepare(`DELETE FROM placements WHERE run_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertCheckpoint, insertPlacement, deletePlacements} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCheckpoint:
			p := r.checkpoint
			exec(insertCheckpoint, r.runID, p.Ordinal, p.Stage.String(), p.Text, r.at.UTC().Format(time.RFC3339Nano))
		case reqPlacement:
			p := r.placement
			exec(insertPlacement, r.runID, r.seq, p.Biome, p.Source, p.Prefab,
				p.Position.X(), p.Position.Y(), p.Position.Z(), p.YawDegrees)
		case reqClear:
			exec(deletePlacements, r.runID)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
