package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunRecord captures one end-to-end sync batch for audit and analysis.
type RunRecord struct {
	Timestamp    time.Time         `json:"timestamp"`
	RunNumber    int               `json:"run_number"`
	Trigger      string            `json:"trigger,omitempty"` // api | daemon | cli
	Requested    int               `json:"requested"`
	Succeeded    []string          `json:"succeeded,omitempty"`
	Failed       map[string]string `json:"failed,omitempty"`
	BarsWritten  int               `json:"bars_written"`
	QuotesStored int               `json:"quotes_stored"`
	DurationMs   int64             `json:"duration_ms"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Writer persists run records to a directory as JSON files (journal style).
// Safe for concurrent use: overlapping syncs may journal at the same time
// when the distributed lock is disabled.
type Writer struct {
	dir   string
	nowFn func() time.Time

	mu  sync.Mutex
	seq int
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteRun writes a run record to a timestamped JSON file.
func (w *Writer) WriteRun(rec *RunRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	rec.RunNumber = seq
	name := fmt.Sprintf("sync_%s_%05d.json", rec.Timestamp.UTC().Format("20060102_150405"), seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
