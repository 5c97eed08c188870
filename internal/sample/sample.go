// Package sample provides UCSC sample-track parsing and writing for
// liftover. The enclosing interval lifts as one span; each sample point
// lifts individually, and points that fall in unchained gaps are dropped
// with their heights rather than failing the record.
package sample

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one sample line: a BED6-like prefix followed by a point
// count and parallel position/height lists. Positions are offsets from
// chromStart.
type Record struct {
	Chrom     string
	Start     int64
	End       int64
	Name      string
	Score     string
	Strand    string
	Positions []int64
	Heights   []string

	passthrough bool
	line        string
}

// Feature lifts the enclosing interval as the single sub-block and every
// sample point as a droppable marker.
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}
	f := &liftover.Feature{
		Seq:    r.Chrom,
		Blocks: []liftover.Span{{Start: r.Start, End: r.End}},
	}
	for _, off := range r.Positions {
		f.Markers = append(f.Markers, r.Start+off)
	}
	return f
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a sample parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sample parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads sample records from a file or stream.
type Parser struct {
	in         *format.Input
	lineNumber int
}

// NewParser creates a sample parser for the given file. Supports plain
// and gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
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
			return nil, fmt.Errorf("read sample line: %w", err)
		}
		p.lineNumber++

		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") {
			return &Record{passthrough: true, line: line}, nil
		}

		return p.parseLine(line)
	}
}

func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return nil, p.errorf("expected 9 columns, found %d", len(fields))
	}

	r := &Record{
		Chrom:  fields[0],
		Name:   fields[3],
		Score:  fields[4],
		Strand: fields[5],
		line:   line,
	}

	var err error
	if r.Start, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return nil, p.errorf("invalid chromStart: %s", fields[1])
	}
	if r.End, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return nil, p.errorf("invalid chromEnd: %s", fields[2])
	}
	if r.Start < 0 || r.Start >= r.End {
		return nil, p.errorf("invalid range %d-%d", r.Start, r.End)
	}

	count, err := strconv.Atoi(fields[6])
	if err != nil || count < 0 {
		return nil, p.errorf("invalid sampleCount: %s", fields[6])
	}
	if r.Positions, err = parseIntList(fields[7], count); err != nil {
		return nil, p.errorf("invalid samplePosition: %v", err)
	}
	heights := strings.Split(strings.TrimSuffix(fields[8], ","), ",")
	if len(heights) != count {
		return nil, p.errorf("sampleHeight has %d values, expected %d", len(heights), count)
	}
	r.Heights = heights

	return r, nil
}

func parseIntList(s string, want int) ([]int64, error) {
	parts := strings.Split(strings.TrimSuffix(s, ","), ",")
	if want == 0 && len(parts) == 1 && parts[0] == "" {
		return nil, nil
	}
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

// Writer re-encodes mapped sample records.
type Writer struct {
	w *bufio.Writer

	// PreserveInput appends the source position to the track name.
	PreserveInput bool
}

// NewWriter creates a sample writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits the lifted record. Dropped points (marker -1) disappear
// from the position and height lists and sampleCount shrinks to match.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	reg := res.Regions[0]

	var positions, heights []string
	for i, m := range res.Markers {
		if m < 0 {
			continue
		}
		positions = append(positions, strconv.FormatInt(m-reg.Start, 10))
		heights = append(heights, r.Heights[i])
	}

	name := r.Name
	if wr.PreserveInput {
		name = fmt.Sprintf("%s|%s:%d-%d", r.Name, r.Chrom, r.Start+1, r.End)
	}

	strand := r.Strand
	if reg.Strand == '-' {
		switch strand {
		case "+":
			strand = "-"
		case "-":
			strand = "+"
		}
	}

	fields := []string{
		reg.Seq,
		strconv.FormatInt(reg.Start, 10),
		strconv.FormatInt(reg.End, 10),
		name,
		r.Score,
		strand,
		strconv.Itoa(len(positions)),
		strings.Join(positions, ",") + ",",
		strings.Join(heights, ",") + ",",
	}

	_, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t"))
	return err
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
