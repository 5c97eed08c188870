// Package positions provides browser position-string parsing and writing
// for liftover: one "chrom:start-end" region per line, 1-based fully
// closed, thousands separators tolerated.
package positions

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one position line. Start and End keep the 1-based closed
// browser convention; Rest holds any trailing fields (e.g. a name).
type Record struct {
	Chrom string
	Start int64
	End   int64
	Rest  []string

	passthrough bool
	line        string
}

// HasName reports whether the line carried trailing fields after the
// position string.
func (r *Record) HasName() bool { return len(r.Rest) > 0 }

// Feature converts the closed interval to half-open mapper coordinates.
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}
	return &liftover.Feature{
		Seq:    r.Chrom,
		Blocks: []liftover.Span{{Start: r.Start - 1, End: r.End}},
	}
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a position parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("position parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads position strings from a file or stream.
type Parser struct {
	in         *format.Input
	lineNumber int
}

// NewParser creates a positions parser for the given file. Supports plain
// and gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open positions file: %w", err)
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
			return nil, fmt.Errorf("read position line: %w", err)
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
	fields := strings.Fields(line)

	chrom, rng, ok := strings.Cut(fields[0], ":")
	if !ok || chrom == "" {
		return nil, p.errorf("expected chrom:start-end, found %q", fields[0])
	}
	lo, hi, ok := strings.Cut(rng, "-")
	if !ok {
		return nil, p.errorf("expected chrom:start-end, found %q", fields[0])
	}

	start, err := parsePos(lo)
	if err != nil {
		return nil, p.errorf("invalid start %q", lo)
	}
	end, err := parsePos(hi)
	if err != nil {
		return nil, p.errorf("invalid end %q", hi)
	}
	if start < 1 || start > end {
		return nil, p.errorf("invalid range %d-%d", start, end)
	}

	return &Record{
		Chrom: chrom,
		Start: start,
		End:   end,
		Rest:  fields[1:],
		line:  line,
	}, nil
}

// parsePos parses a coordinate, tolerating the comma separators browsers
// put in position strings.
func parsePos(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
}

func (p *Parser) errorf(formatStr string, args ...interface{}) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(formatStr, args...)}
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int { return p.lineNumber }

// Close closes the parser and the underlying file.
func (p *Parser) Close() error { return p.in.Close() }

// Writer re-encodes mapped position strings. The writer never owns the
// destination stream; the caller opens and closes it.
type Writer struct {
	w *bufio.Writer

	// Multiple emits one line per surviving region. Named positions
	// cannot use it: the name would no longer identify one region.
	Multiple bool
}

// NewWriter creates a positions writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits the lifted position string, carrying any trailing fields.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	if wr.Multiple {
		if r.HasName() {
			return fmt.Errorf("multiple-region output is not supported for named positions (line %q)", r.line)
		}
		for _, reg := range res.Regions {
			if _, err := fmt.Fprintf(wr.w, "%s:%d-%d\n", reg.Seq, reg.Start+1, reg.End); err != nil {
				return err
			}
		}
		return nil
	}

	reg := res.Regions[0]
	fields := append([]string{fmt.Sprintf("%s:%d-%d", reg.Seq, reg.Start+1, reg.End)}, r.Rest...)
	_, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t"))
	return err
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
