// Package session implements the per-run log writer: an append-only
// NDJSON session log plus the run's meta.json summary, laid out the
// way a piece run's working directory expects under .takt/runs/<slug>/.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"github.com/yoshihiko555/takt/internal/engine"
	"github.com/yoshihiko555/takt/internal/filelock"
	"github.com/yoshihiko555/takt/internal/models"
)

// Writer appends NDJSON event records to one run's logs directory and
// keeps a live meta.json summary up to date. It is safe to subscribe
// directly to an engine.Broadcaster via Listen.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	metaPath string
	metaJSON []byte
}

// Dirs is the set of directories one run needs, all rooted at
// .takt/runs/<slug>/.
type Dirs struct {
	Root    string
	Logs    string
	Reports string
	Context string
}

// NewDirs derives the standard run layout from root, creating every
// directory.
func NewDirs(root string) (Dirs, error) {
	d := Dirs{
		Root:    root,
		Logs:    filepath.Join(root, "logs"),
		Reports: filepath.Join(root, "reports"),
		Context: filepath.Join(root, "context", "previous_responses"),
	}
	for _, dir := range []string{d.Logs, d.Reports, d.Context} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Dirs{}, fmt.Errorf("session: creating %s: %w", dir, err)
		}
	}
	return d, nil
}

// New opens a fresh NDJSON log file under dirs.Logs and writes an
// initial meta.json reflecting a running piece.
func New(dirs Dirs, meta models.RunMeta) (*Writer, error) {
	logPath := filepath.Join(dirs.Logs, "run.jsonl")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("session: opening log %s: %w", logPath, err)
	}

	meta.LogsDirectory = dirs.Logs
	meta.ReportDirectory = dirs.Reports
	meta.StartTime = time.Now()
	meta.Status = "running"

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("session: marshaling meta.json: %w", err)
	}

	w := &Writer{
		file:     f,
		metaPath: filepath.Join(dirs.Root, "meta.json"),
		metaJSON: data,
	}
	if err := filelock.AtomicWrite(w.metaPath, w.metaJSON); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Listen subscribes the writer to b, appending every emitted event as
// one NDJSON line and refreshing meta.json's status on piece_complete
// and piece_abort.
func (w *Writer) Listen(b *engine.Broadcaster) {
	b.Subscribe(func(ev models.Event) {
		w.write(ev)
		switch ev.Type {
		case models.EventPieceComplete:
			w.setStatus("completed")
		case models.EventPieceAbort:
			w.setStatus("aborted")
		}
	})
}

func (w *Writer) write(ev models.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.file.Write(line)
	w.file.Write([]byte("\n"))
	w.file.Sync()
}

// setStatus patches the "status" field of the cached meta.json bytes in
// place via sjson, instead of re-marshaling the whole RunMeta struct,
// and persists the result.
func (w *Writer) setStatus(status string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	patched, err := sjson.SetBytes(w.metaJSON, "status", status)
	if err != nil {
		return
	}
	w.metaJSON = patched
	filelock.AtomicWrite(w.metaPath, w.metaJSON)
}

// Close flushes and closes the run log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// LoadPersonaSessions reads the persona -> sessionId map persisted at
// .takt/persona-sessions.json, returning an empty map if it doesn't
// exist yet.
func LoadPersonaSessions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("session: reading %s: %w", path, err)
	}
	var sessions map[string]string
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("session: parsing %s: %w", path, err)
	}
	return sessions, nil
}

// SavePersonaSessions atomically persists the persona -> sessionId map
// so the next run in this project can resume personas that support it.
func SavePersonaSessions(path string, sessions map[string]string) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshaling persona sessions: %w", err)
	}
	return filelock.AtomicWrite(path, data)
}
