// Package genepred provides genePred table parsing and writing for
// liftover. Exons lift as sub-blocks; exons that fail to map are dropped
// from the output gene model, subject to the minBlocks quorum.
package genepred

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/liftover"
)

// Record is one genePred row: the 10 standard columns plus any extended
// columns (genePredExt score, name2, frames) passed through untouched.
type Record struct {
	Name       string
	Chrom      string
	Strand     string
	TxStart    int64
	TxEnd      int64
	CdsStart   int64
	CdsEnd     int64
	ExonStarts []int64
	ExonEnds   []int64
	Rest       []string

	passthrough bool
	line        string
}

// Feature maps exons to sub-blocks and the CDS boundaries to point
// markers (cdsEnd probes its last base). Non-coding rows, where
// cdsStart equals cdsEnd, carry no markers.
func (r *Record) Feature() *liftover.Feature {
	if r.passthrough {
		return nil
	}
	f := &liftover.Feature{Seq: r.Chrom}
	for i := range r.ExonStarts {
		f.Blocks = append(f.Blocks, liftover.Span{Start: r.ExonStarts[i], End: r.ExonEnds[i]})
	}
	if r.CdsStart < r.CdsEnd {
		f.Markers = []int64{r.CdsStart, r.CdsEnd - 1}
	}
	return f
}

// Text returns the original input line.
func (r *Record) Text() string { return r.line }

// ParseError represents a genePred parsing error with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("genepred parse error at line %d: %s", e.Line, e.Message)
}

// Parser reads genePred records from a file or stream.
type Parser struct {
	in         *format.Input
	lineNumber int
}

// NewParser creates a genePred parser for the given file. Supports plain
// and gzipped input; "-" reads from stdin.
func NewParser(path string) (*Parser, error) {
	in, err := format.OpenInput(path)
	if err != nil {
		return nil, fmt.Errorf("open genepred file: %w", err)
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
			return nil, fmt.Errorf("read genepred line: %w", err)
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
	if len(fields) < 10 {
		return nil, p.errorf("expected at least 10 columns, found %d", len(fields))
	}

	r := &Record{
		Name:   fields[0],
		Chrom:  fields[1],
		Strand: fields[2],
		Rest:   fields[10:],
		line:   line,
	}

	var err error
	if r.TxStart, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
		return nil, p.errorf("invalid txStart: %s", fields[3])
	}
	if r.TxEnd, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return nil, p.errorf("invalid txEnd: %s", fields[4])
	}
	if r.CdsStart, err = strconv.ParseInt(fields[5], 10, 64); err != nil {
		return nil, p.errorf("invalid cdsStart: %s", fields[5])
	}
	if r.CdsEnd, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
		return nil, p.errorf("invalid cdsEnd: %s", fields[6])
	}
	count, err := strconv.Atoi(fields[7])
	if err != nil || count <= 0 {
		return nil, p.errorf("invalid exonCount: %s", fields[7])
	}
	if r.ExonStarts, err = parseIntList(fields[8], count); err != nil {
		return nil, p.errorf("invalid exonStarts: %v", err)
	}
	if r.ExonEnds, err = parseIntList(fields[9], count); err != nil {
		return nil, p.errorf("invalid exonEnds: %v", err)
	}
	for i := 0; i < count; i++ {
		if r.ExonStarts[i] >= r.ExonEnds[i] {
			return nil, p.errorf("exon %d is empty or reversed", i+1)
		}
		if i > 0 && r.ExonStarts[i] < r.ExonEnds[i-1] {
			return nil, p.errorf("exons overlap at exon %d", i+1)
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

// Writer re-encodes mapped genePred records. In multiple mode each
// surviving region becomes its own row, numbered through the gene name
// unless NoSerial is set.
type Writer struct {
	w *bufio.Writer

	// Multiple reflects the mapping policy so the writer knows to emit
	// one row per region.
	Multiple bool
	// NoSerial suppresses the serial suffix on the gene name.
	NoSerial bool
	// PreserveInput appends the source position to the gene name.
	PreserveInput bool
}

// NewWriter creates a genePred writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits the mapped row(s) for one record. Exons that did not map
// are dropped and the exon count adjusted; the CDS boundaries come from
// the mapped markers.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	if wr.Multiple {
		return wr.writeRegions(r, res)
	}

	reg := res.Regions[0]

	var spans []liftover.Span
	for _, b := range res.Blocks {
		if b.Ok {
			spans = append(spans, b.Dst)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	starts := make([]string, len(spans))
	ends := make([]string, len(spans))
	for i, s := range spans {
		starts[i] = strconv.FormatInt(s.Start, 10)
		ends[i] = strconv.FormatInt(s.End, 10)
	}

	// Non-coding rows keep cdsStart == cdsEnd at the transcript end, the
	// genePred convention.
	cdsStart, cdsEnd := reg.End, reg.End
	if len(res.Markers) == 2 {
		cdsStart, cdsEnd = res.Markers[0], res.Markers[1]
		if cdsStart > cdsEnd {
			cdsStart, cdsEnd = cdsEnd, cdsStart
		}
		cdsEnd++
	}

	fields := []string{
		wr.name(r),
		reg.Seq,
		flipStrand(r.Strand, reg.Strand),
		strconv.FormatInt(reg.Start, 10),
		strconv.FormatInt(reg.End, 10),
		strconv.FormatInt(cdsStart, 10),
		strconv.FormatInt(cdsEnd, 10),
		strconv.Itoa(len(spans)),
		strings.Join(starts, ",") + ",",
		strings.Join(ends, ",") + ",",
	}
	fields = append(fields, r.Rest...)

	_, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t"))
	return err
}

// writeRegions emits one row per surviving region. Exon structure and the
// CDS cannot be reassembled across split regions, so each row is a
// single-exon, non-coding gene model covering its region.
func (wr *Writer) writeRegions(r *Record, res *liftover.Mapped) error {
	for i, reg := range res.Regions {
		name := wr.name(r)
		if !wr.NoSerial {
			name = fmt.Sprintf("%s-%d", name, i+1)
		}
		start := strconv.FormatInt(reg.Start, 10)
		end := strconv.FormatInt(reg.End, 10)

		fields := []string{
			name,
			reg.Seq,
			flipStrand(r.Strand, reg.Strand),
			start,
			end,
			end, // cdsStart == cdsEnd at txEnd, the non-coding convention
			end,
			"1",
			start + ",",
			end + ",",
		}
		fields = append(fields, r.Rest...)

		if _, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) name(r *Record) string {
	if wr.PreserveInput {
		return fmt.Sprintf("%s|%s:%d-%d", r.Name, r.Chrom, r.TxStart+1, r.TxEnd)
	}
	return r.Name
}

func flipStrand(strand string, regStrand byte) string {
	if regStrand != '-' {
		return strand
	}
	switch strand {
	case "+":
		return "-"
	case "-":
		return "+"
	}
	return strand
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
