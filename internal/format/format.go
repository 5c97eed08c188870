// Package format defines the boundary between the liftover core and the
// per-format adapters. Adapters decode records into features, the generic
// run loop maps them, and adapters re-encode the results; records that
// fail to map are written verbatim to a companion file with their reason.
package format

import (
	"bufio"
	"fmt"
	"io"

	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one decoded input record. Feature returns nil for lines that
// carry no coordinates (comments, headers); such records are passed
// through to the output unchanged. Text returns the original line(s) for
// the unmapped companion file.
type Record interface {
	Feature() *liftover.Feature
	Text() string
}

// Parser reads records from one input file.
// Next returns nil, nil when there are no more records.
type Parser interface {
	Next() (Record, error)
	LineNumber() int
	Close() error
}

// Writer re-encodes mapped records. Write receives a nil result for
// passthrough records; implementations type-assert their own record type.
type Writer interface {
	Write(rec Record, res *liftover.Mapped) error
	Flush() error
}

// UnmappedWriter writes rejected records to the companion output: a
// comment line naming the reason, then the original record text. Nothing
// is ever silently dropped.
type UnmappedWriter struct {
	w *bufio.Writer
}

// NewUnmappedWriter creates an unmapped-record writer over w.
func NewUnmappedWriter(w io.Writer) *UnmappedWriter {
	return &UnmappedWriter{w: bufio.NewWriter(w)}
}

// Write records one rejected record and the error that rejected it.
func (u *UnmappedWriter) Write(rec Record, reason error) error {
	if _, err := fmt.Fprintf(u.w, "#%s\n%s\n", reason.Error(), rec.Text()); err != nil {
		return fmt.Errorf("write unmapped record: %w", err)
	}
	return nil
}

// Flush flushes buffered output.
func (u *UnmappedWriter) Flush() error {
	return u.w.Flush()
}
