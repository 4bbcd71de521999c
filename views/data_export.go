package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"imu-fusion/models"
)

// CSVWriter is a concurrency-safe, buffered CSV writer for the session
// exports.
//
// Rows go through a bufio.Writer; the recording controller calls Flush on
// a timer so the per-sample path never waits on disk. The first write or
// flush error is kept and returned from every later Flush and Close.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
	err  error
}

// NewCSVWriter creates path and, when writeHeader is set, writes header.
func NewCSVWriter(path string, bufSizeBytes int, writeHeader bool, header []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = 64 * 1024
	}

	bw := bufio.NewWriterSize(f, bufSizeBytes)
	w := &CSVWriter{
		path: path,
		file: f,
		buf:  bw,
		csv:  csv.NewWriter(bw),
	}

	if writeHeader && len(header) > 0 {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}
	return w, nil
}

// WriteRow appends one row.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if err := w.csv.Write(row); err != nil {
		w.err = fmt.Errorf("csv write %s: %w", w.path, err)
		return
	}
	w.rows++
}

// Write appends the row of one model value.
func (w *CSVWriter) Write(m models.CSVRowWriter) {
	w.WriteRow(m.CSVRow())
}

// Flush pushes buffered rows to the OS.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *CSVWriter) flushLocked() error {
	if w.err != nil {
		return w.err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.err = fmt.Errorf("csv flush %s: %w", w.path, err)
	} else if err := w.buf.Flush(); err != nil {
		w.err = fmt.Errorf("csv flush %s: %w", w.path, err)
	}
	return w.err
}

// Close flushes remaining rows and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.flushLocked()
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("csv close %s: %w", w.path, cerr)
	}
	return err
}

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *CSVWriter) Path() string { return w.path }
