package genepred

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-lift/internal/chain"
	"github.com/inodb/vibe-lift/internal/liftover"
)

const codingRow = "tx1\tchr1\t+\t1100\t1900\t1150\t1850\t3\t1100,1400,1800,\t1200,1500,1900,"

func parseOne(t *testing.T, line string) *Record {
	t.Helper()
	p := NewParserFromReader(strings.NewReader(line + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.(*Record)
}

func TestParser_Basic(t *testing.T) {
	r := parseOne(t, codingRow)
	assert.Equal(t, "tx1", r.Name)
	assert.Equal(t, "chr1", r.Chrom)
	assert.Equal(t, []int64{1100, 1400, 1800}, r.ExonStarts)
	assert.Equal(t, []int64{1200, 1500, 1900}, r.ExonEnds)

	f := r.Feature()
	assert.Equal(t, []liftover.Span{
		{Start: 1100, End: 1200},
		{Start: 1400, End: 1500},
		{Start: 1800, End: 1900},
	}, f.Blocks)
	assert.Equal(t, []int64{1150, 1849}, f.Markers, "cdsEnd probes its last base")
}

func TestParser_NonCodingHasNoMarkers(t *testing.T) {
	r := parseOne(t, "nc1\tchr1\t+\t1100\t1900\t1900\t1900\t1\t1100,\t1900,")
	assert.Empty(t, r.Feature().Markers)
}

func TestParser_ExtendedColumnsPassThrough(t *testing.T) {
	r := parseOne(t, codingRow+"\t0\tGENE1\tcmpl\tcmpl\t0,1,2,")
	assert.Equal(t, []string{"0", "GENE1", "cmpl", "cmpl", "0,1,2,"}, r.Rest)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "too few columns", line: "tx1\tchr1\t+\t100\t200", want: "at least 10 columns"},
		{name: "bad exon count", line: "tx1\tchr1\t+\t100\t200\t100\t200\tx\t100,\t200,", want: "invalid exonCount"},
		{name: "list length mismatch", line: "tx1\tchr1\t+\t100\t200\t100\t200\t2\t100,\t200,", want: "invalid exonStarts"},
		{name: "empty exon", line: "tx1\tchr1\t+\t100\t200\t100\t200\t1\t150,\t150,", want: "empty or reversed"},
		{name: "overlapping exons", line: "tx1\tchr1\t+\t100\t400\t100\t400\t2\t100,150,\t200,400,", want: "exons overlap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParserFromReader(strings.NewReader(tt.line + "\n"))
			_, err := p.Next()
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Contains(t, pe.Error(), tt.want)
		})
	}
}

const forwardChain = `chain 1000 chr1 10000000 + 1000 2000 chr1 20000000 + 5000 6000 1
1000
`

// Three aligned stretches on chr4 with the 1200-1500 range unchained.
const gapChain = `chain 1000 chr4 10000000 + 1000 2200 chr4 20000000 + 5000 6100 2
200	300	250
200	300	250
200
`

func lift(t *testing.T, chainText, row string, opts liftover.Options, preserveInput bool) string {
	t.Helper()
	set, err := chain.Read(strings.NewReader(chainText))
	require.NoError(t, err)
	m := liftover.New(set)

	p := NewParserFromReader(strings.NewReader(row + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)
	res, err := m.MapFeature(rec.Feature(), opts)
	require.NoError(t, err)

	var sb strings.Builder
	wr := NewWriter(&sb)
	wr.PreserveInput = preserveInput
	require.NoError(t, wr.Write(rec, res))
	require.NoError(t, wr.Flush())
	return sb.String()
}

func TestWriter_RebuildsGeneModel(t *testing.T) {
	out := lift(t, forwardChain, codingRow, liftover.DefaultOptions(), false)
	assert.Equal(t,
		"tx1\tchr1\t+\t5100\t5900\t5150\t5850\t3\t5100,5400,5800,\t5200,5500,5900,\n",
		out)
}

func TestWriter_DropsUnmappedExons(t *testing.T) {
	// The middle exon sits in the unchained 1200-1500 gap; non-coding so
	// no CDS markers constrain the result.
	row := "tx2\tchr4\t+\t1000\t2200\t2200\t2200\t3\t1000,1250,2000,\t1200,1450,2200,"
	opts := liftover.DefaultOptions()
	opts.MinBlocks = 0.5

	out := lift(t, gapChain, row, opts, false)
	assert.Equal(t,
		"tx2\tchr4\t+\t5000\t6100\t6100\t6100\t2\t5000,5900,\t5200,6100,\n",
		out, "the gap exon disappears and exonCount shrinks")
}

// Two chains that split chr8 at 1400/1600, mapping to different
// destination sequences.
const splitChains = `chain 1000 chr8 10000000 + 1000 1600 chrA 20000000 + 5000 5600 21
600

chain 1000 chr8 10000000 + 1400 2000 chrB 20000000 + 7000 7600 22
600
`

func TestWriter_MultipleEmitsOneRowPerRegion(t *testing.T) {
	row := "gene1\tchr8\t+\t1000\t2000\t2000\t2000\t2\t1000,1500,\t1400,2000,"
	set, err := chain.Read(strings.NewReader(splitChains))
	require.NoError(t, err)
	m := liftover.New(set)

	p := NewParserFromReader(strings.NewReader(row + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)

	opts := liftover.DefaultOptions()
	opts.Multiple = true
	opts.MinMatch = 0.1
	res, err := m.MapFeature(rec.(*Record).Feature(), opts)
	require.NoError(t, err)
	require.Len(t, res.Regions, 2)

	var sb strings.Builder
	wr := NewWriter(&sb)
	wr.Multiple = true
	require.NoError(t, wr.Write(rec, res))
	require.NoError(t, wr.Flush())

	// Exon structure cannot be reassembled across split regions, so each
	// region becomes a single-exon non-coding row with a serial suffix.
	assert.Equal(t,
		"gene1-1\tchrA\t+\t5000\t5600\t5600\t5600\t1\t5000,\t5600,\n"+
			"gene1-2\tchrB\t+\t7200\t7600\t7600\t7600\t1\t7200,\t7600,\n",
		sb.String())
}

func TestWriter_MultipleNoSerial(t *testing.T) {
	rec := parseOne(t, "gene1\tchr8\t+\t1000\t2000\t2000\t2000\t1\t1000,\t2000,")
	res := &liftover.Mapped{Regions: []liftover.Region{
		{Seq: "chrA", Start: 5000, End: 5600, Strand: '+'},
	}}

	var sb strings.Builder
	wr := NewWriter(&sb)
	wr.Multiple = true
	wr.NoSerial = true
	require.NoError(t, wr.Write(rec, res))
	require.NoError(t, wr.Flush())

	assert.True(t, strings.HasPrefix(sb.String(), "gene1\tchrA\t"), "got %q", sb.String())
}

func TestWriter_PreserveInput(t *testing.T) {
	out := lift(t, forwardChain, codingRow, liftover.DefaultOptions(), true)
	assert.True(t, strings.HasPrefix(out, "tx1|chr1:1101-1900\t"), "got %q", out)
}
