// Package sink provides a durable, append-only CSV writer for
// normalized rows. Every WriteRows call flushes and syncs before
// returning, so memory is bounded to one page of rows and a crash
// after page N leaves pages 1..N recoverable on disk.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// Writer appends normalized rows to a CSV file, one page at a time.
type Writer struct {
	path string
	file *os.File
	csv  *csv.Writer
	rows int
}

// Open creates the output file and writes the header row, or appends
// without a header when a non-empty file from a prior run exists at
// the path. The header therefore appears exactly once per file.
func Open(path string, header []string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat output file: %w", err)
	}

	w := &Writer{
		path: path,
		file: file,
		csv:  csv.NewWriter(file),
	}

	if info.Size() == 0 {
		if err := w.csv.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := w.flush(); err != nil {
			file.Close()
			return nil, err
		}
	}

	return w, nil
}

// WriteRows appends one page of rows and durably flushes them before
// returning. Rows are never buffered across page boundaries.
func (w *Writer) WriteRows(rows [][]string) error {
	for _, row := range rows {
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	if err := w.flush(); err != nil {
		return err
	}

	w.rows += len(rows)
	return nil
}

// flush drains the csv buffer and syncs the file to disk.
func (w *Writer) flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync output file: %w", err)
	}
	return nil
}

// RowsWritten returns the number of data rows durably appended by this
// writer (the header is not counted).
func (w *Writer) RowsWritten() int {
	return w.rows
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes pending rows and closes the file.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// TimestampedName builds an output filename carrying a run timestamp
// for uniqueness across runs, e.g. "customers_extract_20240131_154500.csv".
func TimestampedName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format("20060102_150405"))
}
