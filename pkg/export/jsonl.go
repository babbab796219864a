// Package export writes canonical records to a per-source directory of
// JSONL files plus a manifest describing the run.
package export

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/errors"
)

// JSONLWriter appends records to a JSONL file, one JSON document per line.
// Records are flushed per line so an aborted run leaves every completed
// record readable.
type JSONLWriter struct {
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewJSONLWriter opens path for appending, creating parent directories as
// needed.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create export directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open export file")
	}
	return &JSONLWriter{
		file: file,
		buf:  bufio.NewWriter(file),
		path: path,
	}, nil
}

// Write appends one record as a single line.
func (w *JSONLWriter) Write(record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
	}
	if _, err := w.buf.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write record")
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write record")
	}
	return w.buf.Flush()
}

// Path returns the file path being written.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Close flushes and closes the underlying file.
func (w *JSONLWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush export file")
	}
	return w.file.Close()
}

// ReadJSONL decodes every well-formed line of a JSONL file into out slices
// via fn. Malformed lines are skipped, not fatal; the skip count is
// returned so callers can surface it.
func ReadJSONL(path string, fn func(line json.RawMessage) error) (skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeNotFound, "failed to open JSONL file")
	}
	defer file.Close()
	return readJSONL(file, fn)
}

func readJSONL(r io.Reader, fn func(line json.RawMessage) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	skipped := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			skipped++
			continue
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		if err := fn(raw); err != nil {
			return skipped, err
		}
	}
	if err := scanner.Err(); err != nil {
		return skipped, errors.Wrap(err, errors.ErrorTypeData, "failed to scan JSONL file")
	}
	return skipped, nil
}
