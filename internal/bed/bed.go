// Package bed provides BED file parsing and writing for liftover, covering
// bed3 through bed15, bedPlus (N standard fields plus passthrough), an
// optional leading UCSC bin column, and the ends-only lifting mode.
package bed

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Options controls how BED lines are interpreted.
type Options struct {
	// Plus is the number of leading standard BED fields; the rest of each
	// line passes through untouched. 0 means every field is standard.
	Plus int
	// HasBin expects a leading UCSC bin column before the chrom field.
	HasBin bool
	// Tab splits fields on tabs only, allowing spaces inside passthrough
	// fields. Otherwise any whitespace separates fields.
	Tab bool
	// Ends lifts only the first and last N bases of each record and
	// recombines them, instead of lifting the whole span.
	Ends int64
}

// Record is one parsed BED line. Standard fields beyond those present on
// the line keep their zero values; Rest holds the passthrough fields of a
// bedPlus line.
type Record struct {
	Bin         string
	Chrom       string
	Start       int64
	End         int64
	Name        string
	Score       string
	Strand      string
	ThickStart  int64
	ThickEnd    int64
	ItemRGB     string
	BlockCount  int
	BlockSizes  []int64
	BlockStarts []int64
	Rest        []string

	nStd        int
	ends        int64
	passthrough bool
	line        string
}

// Feature decodes the record into mapper input. Comment and track lines
// return nil; bed12 blocks become sub-blocks and the thick range becomes
// a pair of point markers (thickEnd probes its last base).
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}

	f := &liftover.Feature{Seq: r.Chrom}

	switch {
	case r.ends > 0 && r.End-r.Start > 2*r.ends:
		f.Blocks = []liftover.Span{
			{Start: r.Start, End: r.Start + r.ends},
			{Start: r.End - r.ends, End: r.End},
		}
	case r.BlockCount > 0:
		for i := 0; i < r.BlockCount; i++ {
			start := r.Start + r.BlockStarts[i]
			f.Blocks = append(f.Blocks, liftover.Span{Start: start, End: start + r.BlockSizes[i]})
		}
	default:
		f.Blocks = []liftover.Span{{Start: r.Start, End: r.End}}
	}

	if r.ends == 0 && r.nStd >= 8 && r.ThickStart < r.ThickEnd {
		f.Markers = []int64{r.ThickStart, r.ThickEnd - 1}
	}
	return f
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a BED parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bed parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads BED records from a file or stream.
type Parser struct {
	in         *format.Input
	opts       Options
	lineNumber int
}

// NewParser creates a BED parser for the given file. Supports plain and
// gzipped input; "-" reads from stdin.
func NewParser(path string, opts Options) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open bed file: %w", err)
	}
	return &Parser{in: in, opts: opts}, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader, opts Options) *Parser {
	return &Parser{in: format.NewInput(r), opts: opts}
}

// Next reads the next record. Returns nil, nil at end of input.
func (p *Parser) Next() (format.Record, error) {
	for {
		line, err := p.in.ReadLine()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read bed line: %w", err)
		}
		p.lineNumber++

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "track") ||
			strings.HasPrefix(trimmed, "browser") {
			return &Record{passthrough: true, line: line}, nil
		}

		return p.parseLine(line)
	}
}

func (p *Parser) parseLine(line string) (*Record, error) {
	var fields []string
	if p.opts.Tab {
		fields = strings.Split(line, "\t")
	} else {
		fields = strings.Fields(line)
	}

	r := &Record{line: line, ends: p.opts.Ends}

	if p.opts.HasBin {
		if len(fields) < 1 {
			return nil, p.errorf("empty line with hasBin set")
		}
		r.Bin = fields[0]
		fields = fields[1:]
	}
	if len(fields) < 3 {
		return nil, p.errorf("expected at least 3 fields, found %d", len(fields))
	}

	nStd := len(fields)
	if p.opts.Plus > 0 && p.opts.Plus < nStd {
		nStd = p.opts.Plus
	}
	if nStd > 12 {
		nStd = 12
	}
	if nStd < 3 {
		return nil, p.errorf("bedPlus %d needs at least 3 standard fields", p.opts.Plus)
	}
	r.nStd = nStd
	r.Rest = fields[nStd:]

	var err error
	r.Chrom = fields[0]
	if r.Start, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return nil, p.errorf("invalid chromStart: %s", fields[1])
	}
	if r.End, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return nil, p.errorf("invalid chromEnd: %s", fields[2])
	}
	if r.Start < 0 || r.Start >= r.End {
		return nil, p.errorf("invalid range %d-%d", r.Start, r.End)
	}

	if nStd >= 4 {
		r.Name = fields[3]
	}
	if nStd >= 5 {
		r.Score = fields[4]
	}
	if nStd >= 6 {
		r.Strand = fields[5]
		if r.Strand != "+" && r.Strand != "-" && r.Strand != "." {
			return nil, p.errorf("invalid strand %q", r.Strand)
		}
	}
	if nStd >= 8 {
		if r.ThickStart, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
			return nil, p.errorf("invalid thickStart: %s", fields[6])
		}
		if r.ThickEnd, err = strconv.ParseInt(fields[7], 10, 64); err != nil {
			return nil, p.errorf("invalid thickEnd: %s", fields[7])
		}
	}
	if nStd >= 9 {
		r.ItemRGB = fields[8]
	}
	if nStd >= 12 {
		count, err := strconv.Atoi(fields[9])
		if err != nil || count <= 0 {
			return nil, p.errorf("invalid blockCount: %s", fields[9])
		}
		r.BlockCount = count
		if r.BlockSizes, err = parseIntList(fields[10], count); err != nil {
			return nil, p.errorf("invalid blockSizes: %v", err)
		}
		if r.BlockStarts, err = parseIntList(fields[11], count); err != nil {
			return nil, p.errorf("invalid blockStarts: %v", err)
		}
		for i := 0; i < count; i++ {
			if i > 0 && r.BlockStarts[i] <= r.BlockStarts[i-1] {
				return nil, p.errorf("blockStarts not increasing")
			}
			if r.Start+r.BlockStarts[i]+r.BlockSizes[i] > r.End {
				return nil, p.errorf("block %d extends past chromEnd", i+1)
			}
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

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int { return p.lineNumber }

// Close closes the parser and the underlying file.
func (p *Parser) Close() error { return p.in.Close() }
