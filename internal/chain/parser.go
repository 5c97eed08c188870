package chain

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ParseError represents a structural error in a chain file with line context.
// Chain files are loaded once per run, so any parse error is fatal.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chain parse error at line %d: %s", e.Line, e.Message)
}

// parser accumulates one chain record at a time while scanning lines.
type parser struct {
	set  *Set
	line int

	cur  *Chain // chain whose blocks are being read, nil between records
	tCur int64  // running target offset while reading blocks
	qCur int64  // running query offset (strand coordinates)
}

// Read parses a chain file into a Set.
// The expected format is the UCSC chain format: a header line
//
//	chain score tName tSize tStrand tStart tEnd qName qSize qStrand qStart qEnd id
//
// followed by alignment lines "size dt dq" and a final bare "size" line.
// Records are separated by blank lines; lines starting with '#' are skipped.
func Read(r io.Reader) (*Set, error) {
	p := &parser{set: newSet()}

	scanner := bufio.NewScanner(r)
	// Chain headers are short, but be generous in case of odd inputs.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		p.line++
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := p.consume(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	if p.cur != nil {
		return nil, p.errorf("unexpected end of file inside chain %d", p.cur.ID)
	}
	if p.set.Len() == 0 {
		return nil, p.errorf("no chain records found")
	}
	return p.set, nil
}

// Open reads a chain file from disk, transparently decompressing gzip.
func Open(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f

	// Check for gzip magic number (0x1f, 0x8b) rather than trusting the
	// file extension.
	magic := make([]byte, 2)
	n, err := f.Read(magic)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek chain file: %w", err)
	}
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return Read(r)
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) consume(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		if p.cur != nil && trimmed == "" {
			return p.errorf("blank line inside chain %d before its final block", p.cur.ID)
		}
		return nil
	}

	fields := strings.Fields(trimmed)
	if fields[0] == "chain" {
		if p.cur != nil {
			return p.errorf("new chain header before chain %d was closed", p.cur.ID)
		}
		return p.header(fields)
	}
	if p.cur == nil {
		return p.errorf("alignment line outside of a chain record")
	}
	return p.block(fields)
}

func (p *parser) header(fields []string) error {
	if len(fields) != 13 {
		return p.errorf("chain header has %d fields, expected 13", len(fields))
	}

	ints := make([]int64, 0, 9)
	for _, idx := range []int{1, 3, 5, 6, 8, 10, 11, 12} {
		v, err := strconv.ParseInt(fields[idx], 10, 64)
		if err != nil {
			return p.errorf("invalid integer %q in chain header", fields[idx])
		}
		ints = append(ints, v)
	}

	c := &Chain{
		Score:  ints[0],
		TName:  fields[2],
		TSize:  ints[1],
		TStart: ints[2],
		TEnd:   ints[3],
		QName:  fields[7],
		QSize:  ints[4],
		QStart: ints[5],
		QEnd:   ints[6],
		ID:     ints[7],
	}

	if fields[4] != "+" {
		return p.errorf("target strand %q is not supported, must be +", fields[4])
	}
	switch fields[9] {
	case "+", "-":
		c.QStrand = fields[9][0]
	default:
		return p.errorf("invalid query strand %q", fields[9])
	}

	if c.TStart < 0 || c.TStart >= c.TEnd || c.TEnd > c.TSize {
		return p.errorf("chain %d target range %d-%d outside sequence of size %d",
			c.ID, c.TStart, c.TEnd, c.TSize)
	}
	if c.QStart < 0 || c.QStart >= c.QEnd || c.QEnd > c.QSize {
		return p.errorf("chain %d query range %d-%d outside sequence of size %d",
			c.ID, c.QStart, c.QEnd, c.QSize)
	}

	p.cur = c
	p.tCur = c.TStart
	p.qCur = c.QStart
	return nil
}

func (p *parser) block(fields []string) error {
	c := p.cur

	switch len(fields) {
	case 3:
		size, err1 := strconv.ParseInt(fields[0], 10, 64)
		dt, err2 := strconv.ParseInt(fields[1], 10, 64)
		dq, err3 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return p.errorf("invalid alignment line %q", strings.Join(fields, " "))
		}
		if size <= 0 {
			return p.errorf("chain %d has alignment block of size %d", c.ID, size)
		}
		if dt < 0 || dq < 0 {
			return p.errorf("chain %d has negative gap (dt=%d dq=%d)", c.ID, dt, dq)
		}
		c.Blocks = append(c.Blocks, Block{TStart: p.tCur, QStart: p.qCur, Size: size})
		p.tCur += size + dt
		p.qCur += size + dq
		return nil

	case 1:
		size, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || size <= 0 {
			return p.errorf("invalid final block size %q", fields[0])
		}
		c.Blocks = append(c.Blocks, Block{TStart: p.tCur, QStart: p.qCur, Size: size})
		// The accumulated blocks and gaps must land exactly on the spans
		// declared in the header.
		if got := p.tCur + size; got != c.TEnd {
			return p.errorf("chain %d blocks cover target up to %d, header declares %d",
				c.ID, got, c.TEnd)
		}
		if got := p.qCur + size; got != c.QEnd {
			return p.errorf("chain %d blocks cover query up to %d, header declares %d",
				c.ID, got, c.QEnd)
		}
		p.set.add(c)
		p.cur = nil
		return nil

	default:
		return p.errorf("alignment line has %d fields, expected 3 or 1", len(fields))
	}
}
