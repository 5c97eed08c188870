package bed

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

// Writer re-encodes mapped BED records. In multiple mode each surviving
// region becomes its own line, numbered through the score column unless
// NoSerial is set.
type Writer struct {
	w    *bufio.Writer
	opts Options

	// Multiple reflects the mapping policy so the writer knows to emit
	// one line per region with serial numbers.
	Multiple bool
	// NoSerial suppresses the serial number in multiple mode.
	NoSerial bool
	// PreserveInput appends the source position to the item name.
	PreserveInput bool
}

// NewWriter creates a BED writer over w with the same field layout
// options the parser used.
func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{w: bufio.NewWriter(w), opts: opts}
}

// Write emits the mapped line(s) for one record. A nil result is a
// passthrough line written unchanged.
func (wr *Writer) Write(rec format.Record, res *liftover.Mapped) error {
	r := rec.(*Record)
	if res == nil {
		_, err := fmt.Fprintln(wr.w, r.line)
		return err
	}

	if wr.Multiple {
		for i, reg := range res.Regions {
			serial := ""
			if !wr.NoSerial {
				serial = strconv.Itoa(i + 1)
			}
			if err := wr.writeSimple(r, reg, serial); err != nil {
				return err
			}
		}
		return nil
	}

	return wr.writeSingle(r, res)
}

// writeSimple writes one region of a block-less record (bed3-6 plus any
// passthrough fields).
func (wr *Writer) writeSimple(r *Record, reg liftover.Region, serial string) error {
	fields := wr.leadFields(r, reg.Seq, reg.Start, reg.End, reg.Strand)
	if serial != "" {
		if r.nStd >= 5 {
			fields[len(fields)-wr.stdTail(r)+4] = serial
		} else if r.nStd >= 4 {
			fields[len(fields)-wr.stdTail(r)+3] += "-" + serial
		}
	}
	fields = append(fields, r.Rest...)
	_, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t"))
	return err
}

// stdTail returns how many standard fields leadFields produced.
func (wr *Writer) stdTail(r *Record) int {
	n := r.nStd
	if n > 6 {
		n = 6
	}
	return n
}

// leadFields renders the first min(nStd, 6) standard fields with the new
// coordinates, flipping the strand for reverse-chain regions.
func (wr *Writer) leadFields(r *Record, seq string, start, end int64, regStrand byte) []string {
	fields := []string{seq, strconv.FormatInt(start, 10), strconv.FormatInt(end, 10)}
	if r.nStd >= 4 {
		fields = append(fields, wr.name(r))
	}
	if r.nStd >= 5 {
		fields = append(fields, r.Score)
	}
	if r.nStd >= 6 {
		fields = append(fields, flipStrand(r.Strand, regStrand))
	}
	if r.Bin != "" {
		fields = append([]string{r.Bin}, fields...)
	}
	return fields
}

func (wr *Writer) name(r *Record) string {
	if wr.PreserveInput {
		return fmt.Sprintf("%s|%s:%d-%d", r.Name, r.Chrom, r.Start+1, r.End)
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

// writeSingle rebuilds one full record from a single-region result,
// including bed12 block structure and the thick range.
func (wr *Writer) writeSingle(r *Record, res *liftover.Mapped) error {
	reg := res.Regions[0]
	fields := wr.leadFields(r, reg.Seq, reg.Start, reg.End, reg.Strand)

	if r.nStd >= 8 {
		ts, te := reg.Start, reg.Start
		if len(res.Markers) == 2 {
			ts, te = res.Markers[0], res.Markers[1]
			if ts > te {
				ts, te = te, ts
			}
			te++ // the second marker probed the last thick base
		}
		fields = append(fields, strconv.FormatInt(ts, 10), strconv.FormatInt(te, 10))
	}
	if r.nStd >= 9 {
		fields = append(fields, r.ItemRGB)
	}
	if r.nStd >= 12 {
		spans := mappedSpans(res)
		sizes := make([]string, len(spans))
		starts := make([]string, len(spans))
		for i, s := range spans {
			sizes[i] = strconv.FormatInt(s.Len(), 10)
			starts[i] = strconv.FormatInt(s.Start-reg.Start, 10)
		}
		fields = append(fields,
			strconv.Itoa(len(spans)),
			strings.Join(sizes, ",")+",",
			strings.Join(starts, ",")+",")
	}

	fields = append(fields, r.Rest...)
	_, err := fmt.Fprintln(wr.w, strings.Join(fields, "\t"))
	return err
}

// mappedSpans returns the surviving sub-blocks' destination spans in
// ascending coordinate order; a reverse chain delivers them descending.
func mappedSpans(res *liftover.Mapped) []liftover.Span {
	var spans []liftover.Span
	for _, b := range res.Blocks {
		if b.Ok {
			spans = append(spans, b.Dst)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Flush flushes buffered output.
func (wr *Writer) Flush() error { return wr.w.Flush() }
