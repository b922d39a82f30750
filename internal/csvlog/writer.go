// Package csvlog writes the per-object timing log: one row per
// evaluated target, in completion order, truncated on open.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

var header = []string{"dispatch", "response", "read_ns", "eval_ns", "eval2_ns"}

// Row is one object's timing tuple, in the same units the orchestrator
// measures them in: dispatch/response as nanoseconds since the run
// started, the rest as elapsed nanoseconds for that phase.
type Row struct {
	Dispatch int64
	Response int64
	ReadNs   int64
	EvalNs   int64
	Eval2Ns  int64
}

// Writer appends timing rows to a CSV file, truncating any existing
// contents on open. Safe for concurrent use by multiple workers.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// Open truncates path (creating it if necessary) and writes the header.
func Open(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csvlog: open %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvlog: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvlog: flush header: %w", err)
	}

	return &Writer{file: f, writer: w}, nil
}

// Write appends a single timing row and flushes it immediately, so a
// crash mid-run loses at most the in-flight row.
func (lw *Writer) Write(row Row) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	record := []string{
		strconv.FormatInt(row.Dispatch, 10),
		strconv.FormatInt(row.Response, 10),
		strconv.FormatInt(row.ReadNs, 10),
		strconv.FormatInt(row.EvalNs, 10),
		strconv.FormatInt(row.Eval2Ns, 10),
	}
	if err := lw.writer.Write(record); err != nil {
		return fmt.Errorf("csvlog: write row: %w", err)
	}
	lw.writer.Flush()
	return lw.writer.Error()
}

// Close flushes and closes the underlying file.
func (lw *Writer) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.writer.Flush()
	if err := lw.writer.Error(); err != nil {
		lw.file.Close()
		return err
	}
	return lw.file.Close()
}
