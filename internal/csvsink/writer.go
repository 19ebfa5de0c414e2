package csvsink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Writer appends decoded messages to a CSV file, one column per configured field
type Writer struct {
	fields []string
	file   *os.File
	csv    *gocsv.SafeCSVWriter
	mu     sync.Mutex
}

// New opens path for appending. The header row is written only when the file
// is new or empty.
func New(path string, fields []string) (*Writer, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no CSV fields configured")
	}

	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	w := &Writer{
		fields: append([]string(nil), fields...),
		file:   file,
		csv:    gocsv.DefaultCSVWriter(file),
	}
	if fresh {
		if err := w.writeRow(w.fields); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	return w, nil
}

// Write appends one row. Messages carrying none of the fields are skipped.
func (w *Writer) Write(_ context.Context, msg types.Message) error {
	row := make([]string, len(w.fields))
	present := false
	for i, f := range w.fields {
		if v, ok := msg[f]; ok {
			row[i] = types.FormatValue(v)
			present = true
		}
	}
	if !present {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeRow(row)
}

func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.file.Close()
}
