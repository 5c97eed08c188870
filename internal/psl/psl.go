// Package psl provides PSL alignment parsing and writing for liftover.
// The lift is target-side: block target starts are remapped to the new
// assembly while the query side is preserved.
package psl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one PSL alignment row.
type Record struct {
	Strand     string
	QName      string
	QStarts    []int64
	TName      string
	TStart     int64
	TEnd       int64
	BlockSizes []int64
	TStarts    []int64

	fields      []string
	passthrough bool
	line        string
}

// Feature exposes the alignment's target blocks as mapper sub-blocks.
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}
	f := &liftover.Feature{Seq: r.TName}
	for i, ts := range r.TStarts {
		f.Blocks = append(f.Blocks, liftover.Span{Start: ts, End: ts + r.BlockSizes[i]})
	}
	return f
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a PSL parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("psl parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads PSL records from a file or stream. psLayout headers pass
// through unchanged.
type Parser struct {
	in         *format.Input
	lineNumber int
}

// NewParser creates a PSL parser for the given file. Supports plain and
// gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open psl file: %w", err)
	}
	return &Parser{in: in}, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) *Parser {
	return &Parser{in: format.NewInput(r)}
}

// Next reads the next record. Returns nil, nil at end of input.
func (p *Parser) Next() (format.Record, error) {
	for {
		line, err := p.in.ReadLine()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read psl line: %w", err)
		}
		p.lineNumber++

		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 21 {
			fields = strings.Fields(line)
		}
		// Header lines (psLayout banner, column names, dashes) have a
		// non-numeric first field.
		if _, err := strconv.Atoi(fields[0]); err != nil {
			return &Record{passthrough: true, line: line}, nil
		}

		return p.parseLine(line, fields)
	}
}

func (p *Parser) parseLine(line string, fields []string) (*Record, error) {
	if len(fields) < 21 {
		return nil, p.errorf("expected 21 columns, found %d", len(fields))
	}

	r := &Record{
		Strand: fields[8],
		QName:  fields[9],
		TName:  fields[13],
		fields: fields,
		line:   line,
	}

	if len(r.Strand) == 2 && r.Strand[1] == '-' {
		return nil, p.errorf("reverse target strand %q is not supported", r.Strand)
	}

	var err error
	if r.TStart, err = strconv.ParseInt(fields[15], 10, 64); err != nil {
		return nil, p.errorf("invalid tStart: %s", fields[15])
	}
	if r.TEnd, err = strconv.ParseInt(fields[16], 10, 64); err != nil {
		return nil, p.errorf("invalid tEnd: %s", fields[16])
	}
	count, err := strconv.Atoi(fields[17])
	if err != nil || count <= 0 {
		return nil, p.errorf("invalid blockCount: %s", fields[17])
	}
	if r.BlockSizes, err = parseIntList(fields[18], count); err != nil {
		return nil, p.errorf("invalid blockSizes: %v", err)
	}
	if r.QStarts, err = parseIntList(fields[19], count); err != nil {
		return nil, p.errorf("invalid qStarts: %v", err)
	}
	if r.TStarts, err = parseIntList(fields[20], count); err != nil {
		return nil, p.errorf("invalid tStarts: %v", err)
	}
	for i := 0; i < count; i++ {
		if r.BlockSizes[i] <= 0 {
			return nil, p.errorf("block %d has size %d", i+1, r.BlockSizes[i])
		}
		if r.TStarts[i] < r.TStart || r.TStarts[i]+r.BlockSizes[i] > r.TEnd {
			return nil, p.errorf("block %d extends outside tStart-tEnd", i+1)
		}
		if i > 0 && r.TStarts[i] < r.TStarts[i-1]+r.BlockSizes[i-1] {
			return nil, p.errorf("tStarts out of order at block %d", i+1)
		}
	}

	return r, nil
}

func parseIntList(s string, want int) ([]int64, error) {
	parts := strings.Split(strings.TrimSuffix(s, ","), ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d values, found %d", want, len(parts))
	}
	out := make([]int64, want)
	for i, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", part)
		}
		out[i] = v
	}
	return out, nil
}

func (p *Parser) errorf(formatStr string, args ...interface{}) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(formatStr, args...)}
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int { return p.lineNumber }

// Close closes the parser and the underlying file.
func (p *Parser) Close() error { return p.in.Close() }

// Writer re-encodes mapped PSL records.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a PSL writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits the lifted alignment. Blocks that did not map are dropped
// from all three per-block lists; when the region mapped through a
// reverse chain the target side of the strand flips and tStarts switch
// to reverse-strand coordinates, per PSL convention.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	reg := res.Regions[0]

	var sizes, qStarts, tStarts []string
	for i, b := range res.Blocks {
		if !b.Ok {
			continue
		}
		ts := b.Dst.Start
		if reg.Strand == '-' {
			ts = reg.SeqSize - b.Dst.End
		}
		// A block accepted at partial coverage has a shorter destination
		// footprint than its source; the emitted size must be the
		// destination length and the query start advances past the
		// leading source clip, or tStart+size drifts from tEnd.
		sizes = append(sizes, strconv.FormatInt(b.Dst.Len(), 10))
		qStarts = append(qStarts, strconv.FormatInt(r.QStarts[i]+(b.SrcUsed.Start-b.Src.Start), 10))
		tStarts = append(tStarts, strconv.FormatInt(ts, 10))
	}

	strand := r.Strand
	if reg.Strand == '-' {
		if len(strand) == 1 {
			strand += "-"
		} else {
			strand = strand[:1] + "-"
		}
	}

	out := make([]string, len(r.fields))
	copy(out, r.fields)
	out[8] = strand
	out[13] = reg.Seq
	out[14] = strconv.FormatInt(reg.SeqSize, 10)
	out[15] = strconv.FormatInt(reg.Start, 10)
	out[16] = strconv.FormatInt(reg.End, 10)
	out[17] = strconv.Itoa(len(sizes))
	out[18] = strings.Join(sizes, ",") + ","
	out[19] = strings.Join(qStarts, ",") + ","
	out[20] = strings.Join(tStarts, ",") + ","

	_, err := fmt.Fprintln(wr.w, strings.Join(out, "\t"))
	return err
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
