package liftover

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two chains that each cover one end of chr8:1000-2000, overlapping in the
// middle 1400-1600 stretch.
const splitChains = `chain 600 chr8 10000000 + 1000 1600 chrA 20000000 + 5000 5600 21
600

chain 600 chr8 10000000 + 1400 2000 chrB 20000000 + 7000 7600 22
600
`

func multiOpts() Options {
	opts := DefaultOptions()
	opts.Multiple = true
	opts.MinMatch = 0.1
	return opts
}

func TestMapMultiple_SplitsAcrossChains(t *testing.T) {
	m := mapperFor(t, splitChains)

	res, err := m.MapFeature(simpleFeature("chr8", 1000, 2000), multiOpts())
	require.NoError(t, err)
	require.Len(t, res.Regions, 2)

	// Chain 21 ranks first (equal matched, smaller id) and claims the
	// overlap; chain 22 keeps only what is left.
	r0, r1 := res.Regions[0], res.Regions[1]
	assert.Equal(t, "chrA", r0.Seq)
	assert.Equal(t, int64(5000), r0.Start)
	assert.Equal(t, int64(5600), r0.End)
	assert.Equal(t, int64(1000), r0.SrcStart)
	assert.Equal(t, int64(1600), r0.SrcEnd)

	assert.Equal(t, "chrB", r1.Seq)
	assert.Equal(t, int64(7200), r1.Start)
	assert.Equal(t, int64(7600), r1.End)
	assert.Equal(t, int64(1600), r1.SrcStart)
	assert.Equal(t, int64(2000), r1.SrcEnd)

	// Regions are disjoint in source space and account for every base.
	assert.LessOrEqual(t, r0.SrcEnd, r1.SrcStart)
	assert.Equal(t, int64(1000), r0.Matched+r1.Matched)
}

func TestMapMultiple_MatchedNeverExceedsFeatureLength(t *testing.T) {
	m := mapperFor(t, splitChains)

	// Sweep windows across the overlap; claimed bases must never be
	// double-counted.
	for start := int64(1000); start < 2000; start += 137 {
		end := start + 400
		if end > 2000 {
			end = 2000
		}
		res, err := m.MapFeature(simpleFeature("chr8", start, end), multiOpts())
		require.NoError(t, err, "window %d-%d", start, end)

		var sum int64
		for i, r := range res.Regions {
			sum += r.Matched
			if i > 0 {
				assert.GreaterOrEqual(t, r.SrcStart, res.Regions[i-1].SrcEnd,
					"window %d-%d: regions overlap in source space", start, end)
			}
		}
		assert.LessOrEqual(t, sum, end-start, "window %d-%d", start, end)
	}
}

func TestMapMultiple_MinMatchFiltersChains(t *testing.T) {
	m := mapperFor(t, splitChains)

	// Each chain covers 60% of the feature; at minMatch 0.7 neither
	// qualifies.
	opts := multiOpts()
	opts.MinMatch = 0.7
	_, err := m.MapFeature(simpleFeature("chr8", 1000, 2000), opts)
	require.Error(t, err)
	assert.Equal(t, BelowMinMatch, reasonOf(t, err))

	opts.MinMatch = 0.6
	res, err := m.MapFeature(simpleFeature("chr8", 1000, 2000), opts)
	require.NoError(t, err)
	assert.Len(t, res.Regions, 2)
}

func TestMapMultiple_ChainSizeFilters(t *testing.T) {
	m := mapperFor(t, splitChains)
	f := simpleFeature("chr8", 1000, 2000)

	opts := multiOpts()
	opts.MinChainSizeSource = 700 // both chains span only 600 source bases
	_, err := m.MapFeature(f, opts)
	require.Error(t, err)
	assert.Equal(t, FilteredByChainSize, reasonOf(t, err))

	opts = multiOpts()
	opts.MinChainSizeDest = 700
	_, err = m.MapFeature(f, opts)
	require.Error(t, err)
	assert.Equal(t, FilteredByChainSize, reasonOf(t, err))

	// A region-size floor drops only the trimmed chrB region.
	opts = multiOpts()
	opts.MinRegionSizeDest = 500
	res, err := m.MapFeature(f, opts)
	require.NoError(t, err)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, "chrA", res.Regions[0].Seq)
}

func TestMapMultiple_ClaimSplitsLowerChainRun(t *testing.T) {
	// Chain 91 aligns two exon-sized pieces (1400-1600 and 3000-4200) and
	// outranks chain 92, which covers 1000-2000 in one block. Claiming the
	// middle 1400-1600 splits chain 92's run into two regions.
	text := `chain 1400 chr10 10000000 + 1400 4200 chrQ1 20000000 + 5000 7800 91
200	1400	1400
1200

chain 1000 chr10 10000000 + 1000 2000 chrQ2 20000000 + 9000 10000 92
1000
`
	m := mapperFor(t, text)

	f := &Feature{Seq: "chr10", Blocks: []Span{{Start: 1000, End: 2000}, {Start: 3000, End: 4200}}}
	res, err := m.MapFeature(f, multiOpts())
	require.NoError(t, err)
	require.Len(t, res.Regions, 3)

	assert.Equal(t, []Region{
		{Seq: "chrQ2", SeqSize: 20000000, Start: 9000, End: 9400, Strand: '+', ChainID: 92,
			Matched: 400, Coverage: 400.0 / 2200.0, SrcStart: 1000, SrcEnd: 1400},
		{Seq: "chrQ1", SeqSize: 20000000, Start: 5000, End: 7800, Strand: '+', ChainID: 91,
			Matched: 1400, Coverage: 1400.0 / 2200.0, SrcStart: 1400, SrcEnd: 4200},
		{Seq: "chrQ2", SeqSize: 20000000, Start: 9600, End: 10000, Strand: '+', ChainID: 92,
			Matched: 400, Coverage: 400.0 / 2200.0, SrcStart: 1600, SrcEnd: 2000},
	}, res.Regions)

	assert.Equal(t, 1.0, res.BlockCoverage, "both sub-blocks contribute to a region")
}

func TestMapMultiple_Extension(t *testing.T) {
	// Chain 95 carries only its first block in the file; the extension
	// lookup recovers the second.
	text := `chain 400 chr11 10000000 + 1000 1400 chrE 20000000 + 5000 5400 95
400
`
	m := mapperFor(t, text)

	var asked []int64
	opts := multiOpts()
	opts.Extension = func(chainID int64) ([]Block, error) {
		asked = append(asked, chainID)
		return []Block{{TStart: 1600, QStart: 5600, Size: 400}}, nil
	}

	res, err := m.MapFeature(simpleFeature("chr11", 1000, 2000), opts)
	require.NoError(t, err)
	assert.Equal(t, []int64{95}, asked)

	require.Len(t, res.Regions, 1)
	reg := res.Regions[0]
	assert.Equal(t, int64(5000), reg.Start)
	assert.Equal(t, int64(6000), reg.End, "recovered block extends the region")
	assert.Equal(t, int64(800), reg.Matched)
	assert.Equal(t, int64(1000), reg.SrcStart)
	assert.Equal(t, int64(2000), reg.SrcEnd)

	// Without the extension only the primary block maps.
	plain, err := m.MapFeature(simpleFeature("chr11", 1000, 2000), multiOpts())
	require.NoError(t, err)
	assert.Equal(t, int64(400), plain.Regions[0].Matched)
}

func TestMapMultiple_ExtensionErrorIsFatal(t *testing.T) {
	m := mapperFor(t, splitChains)

	opts := multiOpts()
	opts.Extension = func(chainID int64) ([]Block, error) {
		return nil, fmt.Errorf("store closed")
	}

	_, err := m.MapFeature(simpleFeature("chr8", 1000, 2000), opts)
	require.Error(t, err)
	var ue *UnmappedError
	assert.False(t, errors.As(err, &ue), "lookup failures are faults, not unmapped outcomes")
	assert.Contains(t, err.Error(), "store closed")
}

func TestMapMultiple_NoOverlap(t *testing.T) {
	m := mapperFor(t, splitChains)

	_, err := m.MapFeature(simpleFeature("chr8", 5000, 6000), multiOpts())
	require.Error(t, err)
	assert.Equal(t, NoOverlap, reasonOf(t, err))
}
