package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"terraforge.ai/internal/terrain/gen"
	"terraforge.ai/internal/terrain/pipeline"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed files, one file per
// UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// Path is the file currently written to, or "" before the first write.
func (w *JSONLZstdWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curHour == "" {
		return ""
	}
	return w.pathForHour(w.curHour)
}

// ReadJSONL calls fn for each line of a compressed JSONL file.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// PlacementEntry is one line of the placement log.
type PlacementEntry struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	gen.Placement
}

// PlacementLog is a placement sink that appends every record as JSONL
// (compressed). Clear writes a marker line rather than truncating.
type PlacementLog struct {
	w     *JSONLZstdWriter
	runID string
	seq   int
}

func NewPlacementLog(runDir, runID string) *PlacementLog {
	return &PlacementLog{w: NewJSONLZstdWriter(filepath.Join(runDir, "placements"), "placements"), runID: runID}
}

func (l *PlacementLog) Place(p gen.Placement) error {
	l.seq++
	return l.w.Write(PlacementEntry{RunID: l.runID, Seq: l.seq, Placement: p})
}

func (l *PlacementLog) Clear() error {
	l.seq = 0
	return l.w.Write(map[string]any{"run_id": l.runID, "clear": true})
}

func (l *PlacementLog) Path() string { return l.w.Path() }
func (l *PlacementLog) Close() error { return l.w.Close() }

// ProgressEntry is one line of the progress log.
type ProgressEntry struct {
	RunID string `json:"run_id"`
	Time  string `json:"time"`
	pipeline.Progress
}

// ProgressLog records pipeline checkpoints. Report cannot fail, so the first
// write error is kept for Err.
type ProgressLog struct {
	w     *JSONLZstdWriter
	runID string
	err   error
}

func NewProgressLog(runDir, runID string) *ProgressLog {
	return &ProgressLog{w: NewJSONLZstdWriter(filepath.Join(runDir, "progress"), "progress"), runID: runID}
}

func (l *ProgressLog) Report(p pipeline.Progress) {
	err := l.w.Write(ProgressEntry{RunID: l.runID, Time: time.Now().UTC().Format(time.RFC3339Nano), Progress: p})
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *ProgressLog) Err() error   { return l.err }
func (l *ProgressLog) Path() string { return l.w.Path() }
func (l *ProgressLog) Close() error { return l.w.Close() }

// ListJSONL returns the <prefix>-*.jsonl.zst files in dir in write order.
func ListJSONL(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadPlacements replays the placement log of a run directory. A clear
// marker discards everything read before it.
func ReadPlacements(runDir string) ([]PlacementEntry, error) {
	files, err := ListJSONL(filepath.Join(runDir, "placements"), "placements")
	if err != nil {
		return nil, err
	}
	var out []PlacementEntry
	for _, path := range files {
		err := ReadJSONL(path, func(line []byte) error {
			var e struct {
				Clear bool `json:"clear"`
				PlacementEntry
			}
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if e.Clear {
				out = out[:0]
				return nil
			}
			if e.Seq != len(out)+1 {
				return fmt.Errorf("%s: placement seq %d, want %d", filepath.Base(path), e.Seq, len(out)+1)
			}
			out = append(out, e.PlacementEntry)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
