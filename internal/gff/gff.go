// Package gff provides GFF/GTF parsing and writing for liftover. Each
// line is lifted independently; gene-model integrity across lines is the
// caller's concern.
package gff

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one GFF/GTF line. Start and End keep the format's 1-based
// fully-closed convention; the conversion to half-open happens in
// Feature.
type Record struct {
	Seqname string
	Start   int64
	End     int64
	Strand  string

	fields      []string
	passthrough bool
	line        string
}

// Feature converts the 1-based closed interval to the mapper's half-open
// coordinates.
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}
	return &liftover.Feature{
		Seq:    r.Seqname,
		Blocks: []liftover.Span{{Start: r.Start - 1, End: r.End}},
	}
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a GFF parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gff parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads GFF/GTF records from a file or stream.
type Parser struct {
	in         *format.Input
	lineNumber int
}

// NewParser creates a GFF parser for the given file. Supports plain and
// gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open gff file: %w", err)
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
			return nil, fmt.Errorf("read gff line: %w", err)
		}
		p.lineNumber++

		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return &Record{passthrough: true, line: line}, nil
		}

		return p.parseLine(line)
	}
}

func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{Line: p.lineNumber,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields))}
	}

	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, &ParseError{Line: p.lineNumber, Message: "invalid start: " + fields[3]}
	}
	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, &ParseError{Line: p.lineNumber, Message: "invalid end: " + fields[4]}
	}
	if start < 1 || start > end {
		return nil, &ParseError{Line: p.lineNumber,
			Message: fmt.Sprintf("invalid range %d-%d", start, end)}
	}

	return &Record{
		Seqname: fields[0],
		Start:   start,
		End:     end,
		Strand:  fields[6],
		fields:  fields,
		line:    line,
	}, nil
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int { return p.lineNumber }

// Close closes the parser and the underlying file.
func (p *Parser) Close() error { return p.in.Close() }

// Writer re-encodes mapped GFF records.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a GFF writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits the mapped line for one record, flipping the strand column
// when the region mapped through a reverse chain.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	reg := res.Regions[0]
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	out[0] = reg.Seq
	out[3] = strconv.FormatInt(reg.Start+1, 10)
	out[4] = strconv.FormatInt(reg.End, 10)
	if reg.Strand == '-' {
		switch r.Strand {
		case "+":
			out[6] = "-"
		case "-":
			out[6] = "+"
		}
	}

	_, err := fmt.Fprintln(wr.w, strings.Join(out, "\t"))
	return err
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
