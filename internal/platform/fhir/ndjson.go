package fhir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxNDJSONLine caps a single NDJSON line at 4 MB; a resource larger than
// that is almost certainly a malformed file rather than real data.
const maxNDJSONLine = 4 << 20

// NDJSONWriter writes resources in NDJSON (Newline Delimited JSON) format.
// Each resource is serialised as a single JSON line followed by a newline
// character, which is the format required by the FHIR Bulk Data Access
// specification.
type NDJSONWriter struct {
	w *bufio.Writer
}

// NewNDJSONWriter creates a new NDJSONWriter that writes to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{
		w: bufio.NewWriter(w),
	}
}

// WriteResource serialises resource as a single JSON line followed by a
// newline character. The resource can be any value that is marshallable
// by encoding/json (typically a map[string]interface{} or a struct).
func (n *NDJSONWriter) WriteResource(resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}

// ReadNDJSON reads newline-delimited resources from r, invoking fn with each
// non-blank line. Lines that are not valid JSON objects stop the read with
// an error naming the line number.
func ReadNDJSON(r io.Reader, fn func(raw json.RawMessage) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxNDJSONLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return fmt.Errorf("ndjson line %d: invalid JSON", line)
		}
		// Copy: the scanner reuses its buffer on the next iteration.
		buf := make([]byte, len(raw))
		copy(buf, raw)
		if err := fn(buf); err != nil {
			return err
		}
	}
	return scanner.Err()
}
