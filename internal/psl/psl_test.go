package psl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-lift/internal/chain"
	"github.com/inodb/vibe-lift/internal/liftover"
)

const forwardRow = "200\t0\t0\t0\t0\t0\t0\t0\t+\tquery1\t500\t0\t200\tchr1\t10000000\t1100\t1900\t2\t100,100,\t0,100,\t1100,1800,"

func parseOne(t *testing.T, line string) *Record {
	t.Helper()
	p := NewParserFromReader(strings.NewReader(line + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.(*Record)
}

func TestParser_Basic(t *testing.T) {
	r := parseOne(t, forwardRow)
	assert.Equal(t, "+", r.Strand)
	assert.Equal(t, "query1", r.QName)
	assert.Equal(t, "chr1", r.TName)
	assert.Equal(t, int64(1100), r.TStart)
	assert.Equal(t, int64(1900), r.TEnd)
	assert.Equal(t, []int64{100, 100}, r.BlockSizes)
	assert.Equal(t, []int64{1100, 1800}, r.TStarts)

	f := r.Feature()
	assert.Equal(t, []liftover.Span{
		{Start: 1100, End: 1200},
		{Start: 1800, End: 1900},
	}, f.Blocks, "the lift is target-side")
}

func TestParser_HeaderPassthrough(t *testing.T) {
	in := strings.Join([]string{
		"psLayout version 3",
		"",
		"match\tmis- \trep. \tN's",
		"---------------------------------",
		forwardRow,
	}, "\n") + "\n"

	p := NewParserFromReader(strings.NewReader(in))
	for i := 0; i < 3; i++ {
		rec, err := p.Next()
		require.NoError(t, err)
		assert.Nil(t, rec.Feature(), "header line %d", i)
	}

	rec, err := p.Next()
	require.NoError(t, err)
	assert.NotNil(t, rec.Feature())
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "too few columns",
			line: "200\t0\t0\t0\t0\t0\t0\t0\t+\tq\t500\t0\t200\tchr1\t1000",
			want: "expected 21 columns",
		},
		{
			name: "reverse target strand",
			line: strings.Replace(forwardRow, "\t+\t", "\t+-\t", 1),
			want: "reverse target strand",
		},
		{
			name: "bad block sizes",
			line: strings.Replace(forwardRow, "\t100,100,\t", "\t100,\t", 1),
			want: "invalid blockSizes",
		},
		{
			name: "tStarts out of order",
			line: strings.Replace(forwardRow, "\t1100,1800,", "\t1800,1100,", 1),
			want: "out of order",
		},
		{
			name: "block outside tStart-tEnd",
			line: strings.Replace(forwardRow, "\t1100,1800,", "\t1100,1850,", 1),
			want: "outside tStart-tEnd",
		},
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

func lift(t *testing.T, chainText, row string) string {
	t.Helper()
	set, err := chain.Read(strings.NewReader(chainText))
	require.NoError(t, err)
	m := liftover.New(set)

	p := NewParserFromReader(strings.NewReader(row + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)
	res, err := m.MapFeature(rec.Feature(), liftover.DefaultOptions())
	require.NoError(t, err)

	var sb strings.Builder
	wr := NewWriter(&sb)
	require.NoError(t, wr.Write(rec, res))
	require.NoError(t, wr.Flush())
	return sb.String()
}

func TestWriter_Forward(t *testing.T) {
	chainText := `chain 1000 chr1 10000000 + 1000 2000 chr1 20000000 + 5000 6000 1
1000
`
	out := lift(t, chainText, forwardRow)
	assert.Equal(t,
		"200\t0\t0\t0\t0\t0\t0\t0\t+\tquery1\t500\t0\t200\tchr1\t20000000\t5100\t5900\t2\t100,100,\t0,100,\t5100,5800,\n",
		out, "tName, tSize, tStart/tEnd and tStarts move to the new assembly")
}

func TestWriter_PartiallyCoveredBlockStaysConsistent(t *testing.T) {
	// The chain starts at 1150, clipping the first 50 bases of block one.
	// The emitted size must shrink to the destination footprint and the
	// paired qStart advance past the clip, so tStart+size still meets the
	// next block and the last block ends exactly at tEnd.
	chainText := `chain 1000 chr1 10000000 + 1150 1900 chr1 20000000 + 5150 5900 1
750
`
	set, err := chain.Read(strings.NewReader(chainText))
	require.NoError(t, err)
	m := liftover.New(set)

	p := NewParserFromReader(strings.NewReader(forwardRow + "\n"))
	rec, err := p.Next()
	require.NoError(t, err)

	opts := liftover.DefaultOptions()
	opts.MinMatch = 0.5
	res, err := m.MapFeature(rec.Feature(), opts)
	require.NoError(t, err)

	var sb strings.Builder
	wr := NewWriter(&sb)
	require.NoError(t, wr.Write(rec, res))
	require.NoError(t, wr.Flush())

	fields := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\t")
	require.Len(t, fields, 21)
	assert.Equal(t, "5150", fields[15])
	assert.Equal(t, "5900", fields[16])
	assert.Equal(t, "50,100,", fields[18], "clipped block shrinks")
	assert.Equal(t, "50,100,", fields[19], "qStart advances past the clip")
	assert.Equal(t, "5150,5800,", fields[20])
}

func TestWriter_ReverseRegion(t *testing.T) {
	chainText := `chain 1000 chr6a 10000000 + 1000 2000 chr6b 8000 - 3000 4000 3
1000
`
	row := "250\t0\t0\t0\t0\t0\t0\t0\t+\tquery1\t500\t0\t250\tchr6a\t10000000\t1200\t1500\t2\t150,100,\t0,150,\t1200,1400,"
	out := lift(t, chainText, row)

	fields := strings.Split(strings.TrimSuffix(out, "\n"), "\t")
	require.Len(t, fields, 21)
	assert.Equal(t, "+-", fields[8], "the target side of the strand flips")
	assert.Equal(t, "chr6b", fields[13])
	assert.Equal(t, "8000", fields[14])
	assert.Equal(t, "4500", fields[15])
	assert.Equal(t, "4800", fields[16])
	assert.Equal(t, "3200,3400,", fields[20],
		"tStarts are reverse-strand coordinates on the new assembly")
}
