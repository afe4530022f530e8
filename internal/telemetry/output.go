package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// Output appends Window rows to a CSV stream, writing the header once.
type Output struct {
	w             io.Writer
	closer        io.Closer
	path          string
	headerWritten bool
}

// NewOutput creates <dir>/<runID>-<role>.csv. It returns nil when dir is empty
// (output disabled); every method accepts a nil receiver.
func NewOutput(dir, runID string, role Role) (*Output, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.csv", runID, role))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &Output{w: f, closer: f, path: path}, nil
}

// NewWriterOutput writes rows to w without owning it.
func NewWriterOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Write appends one row.
func (o *Output) Write(row Window) error {
	if o == nil {
		return nil
	}
	records := []Window{row}
	if !o.headerWritten {
		if err := gocsv.Marshal(records, o.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		o.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, o.w); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// Path returns the CSV file path, empty for writer outputs.
func (o *Output) Path() string {
	if o == nil {
		return ""
	}
	return o.path
}

// Close closes the underlying file, if any.
func (o *Output) Close() error {
	if o == nil || o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
