// Package runlog writes and reads per-run CSV logs. Each run gets its own
// file named after its start time and temperatures, with commented metadata
// lines ahead of the column header so the file stays self-describing.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"thermoctl/pkg/model"
)

const columnHeader = "Timestamp,Elapsed_s,Temperature,ETA_s,Tau_s,Progress_pct"

// Meta describes the run recorded in a log file.
type Meta struct {
	StartedAt time.Time
	StartTemp float64
	Target    float64
	Mode      model.Mode
	EtaModel  string
	Tolerance float64
	PollEvery time.Duration
	Range     [2]float64
}

// Writer appends samples to a per-run CSV file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Filename returns the canonical log file name for a run.
func Filename(startedAt time.Time, startTemp, target float64) string {
	return fmt.Sprintf("%s_%.1f_%.1f.csv", startedAt.Format("2006-01-02_15-04-05"), startTemp, target)
}

// Create opens a new run log in dir and writes the metadata header.
func Create(dir string, meta Meta) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	path := filepath.Join(dir, Filename(meta.StartedAt, meta.StartTemp, meta.Target))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Thermal Chamber Run Log\n")
	fmt.Fprintf(&b, "# Date: %s\n", meta.StartedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "# Start Time: %s\n", meta.StartedAt.Format("15:04:05"))
	fmt.Fprintf(&b, "# Start Temperature (°C): %.2f\n", meta.StartTemp)
	fmt.Fprintf(&b, "# Target Temperature (°C): %.2f\n", meta.Target)
	fmt.Fprintf(&b, "# ETA Model: %s\n", strings.ToUpper(meta.EtaModel))
	fmt.Fprintf(&b, "# Mode: %s\n", meta.Mode)
	fmt.Fprintf(&b, "# Tolerance (°C): %g\n", meta.Tolerance)
	fmt.Fprintf(&b, "# Sampling Interval (s): %g\n", meta.PollEvery.Seconds())
	fmt.Fprintf(&b, "# Temperature Range (min-max °C): %g-%g\n", meta.Range[0], meta.Range[1])
	b.WriteString(columnHeader + "\n")

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write run log header: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one sample row and flushes it to disk.
func (w *Writer) Append(s model.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	eta := ""
	if s.ETAKnown {
		eta = fmt.Sprintf("%.1f", s.ETA)
	}
	row := fmt.Sprintf("%s,%.1f,%.3f,%s,%.1f,%.1f\n",
		s.Time.Format(time.RFC3339), s.Elapsed, s.Temperature, eta, s.Tau, s.Progress)
	if _, err := w.f.WriteString(row); err != nil {
		return fmt.Errorf("failed to append run log row: %w", err)
	}
	return w.f.Sync()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
