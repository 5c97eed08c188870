package liftover

import (
	"fmt"
	"sort"

	"github.com/inodb/vibe-lift/internal/chain"
)

// chainHits accumulates one chain's matched sub-spans across all of a
// feature's sub-blocks.
type chainHits struct {
	chain   *chain.Chain
	spans   []matchSpan
	matched int64
}

// mapMultiple implements multiple-region mapping: instead of one-or-
// nothing, the feature's matched sub-spans are grouped by chain and
// destination adjacency into as many disjoint output regions as survive
// the size filters. Better chains claim source bases first, so emitted
// regions never overlap in source coordinates and their summed matched
// bases never exceed the feature length.
func (m *Mapper) mapMultiple(f *Feature, opts Options) (*Mapped, error) {
	totalLen := f.Length()

	hits, err := m.collectHits(f, opts)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		sp := f.Span()
		return nil, unmapped(NoOverlap, "no chain overlaps %s:%d-%d", f.Seq, sp.Start, sp.End)
	}

	// Candidate order: coverage desc, matched desc, chain id asc. Chains
	// below minMatch are out before any source bases are claimed.
	kept := hits[:0]
	for _, h := range hits {
		if float64(h.matched)/float64(totalLen) >= opts.MinMatch && h.matched > 0 {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return nil, unmapped(BelowMinMatch, "best candidate below minMatch %.2f", opts.MinMatch)
	}
	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.matched != b.matched {
			return a.matched > b.matched
		}
		return a.chain.ID < b.chain.ID
	})

	var regions []Region
	var claimed []Span
	filtered := false

	for _, h := range kept {
		if opts.MinChainSizeSource > 0 && h.chain.TSpan() < opts.MinChainSizeSource {
			filtered = true
			continue
		}
		if opts.MinChainSizeDest > 0 && h.chain.QSpan() < opts.MinChainSizeDest {
			filtered = true
			continue
		}

		for _, run := range splitRuns(h.spans, claimed) {
			reg := runRegion(h.chain, run, totalLen)
			if opts.MinRegionSizeDest > 0 && reg.Len() < opts.MinRegionSizeDest {
				filtered = true
				continue
			}
			for _, s := range run {
				claimed = claim(claimed, s.src)
			}
			regions = append(regions, reg)
		}
	}

	if len(regions) == 0 {
		if filtered {
			return nil, unmapped(FilteredByChainSize, "all regions excluded by chain/region size filters")
		}
		return nil, unmapped(BelowMinMatch, "all candidate spans claimed by better chains")
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].SrcStart < regions[j].SrcStart })

	return &Mapped{
		Regions:       regions,
		BlockCoverage: blockCoverage(f, regions),
	}, nil
}

// collectHits queries the index for every sub-block and merges the
// resulting spans per chain. When an extension lookup is configured, each
// hit chain is augmented with its recovered blocks before regions form.
func (m *Mapper) collectHits(f *Feature, opts Options) ([]*chainHits, error) {
	byChain := make(map[*chain.Chain]*chainHits)
	var order []*chainHits

	addSpan := func(c *chain.Chain, s matchSpan) {
		h, ok := byChain[c]
		if !ok {
			h = &chainHits{chain: c}
			byChain[c] = h
			order = append(order, h)
		}
		h.spans = append(h.spans, s)
	}

	for _, b := range f.Blocks {
		for _, e := range m.index.Query(f.Seq, b.Start, b.End) {
			s0, s1 := b.Start, b.End
			if e.Block.TStart > s0 {
				s0 = e.Block.TStart
			}
			if e.Block.TEnd() < s1 {
				s1 = e.Block.TEnd()
			}
			addSpan(e.Chain, matchSpan{
				src: Span{Start: s0, End: s1},
				dst: e.Block.QStart + (s0 - e.Block.TStart),
			})
		}
	}

	if opts.Extension != nil {
		for _, h := range order {
			extra, err := opts.Extension(h.chain.ID)
			if err != nil {
				return nil, fmt.Errorf("chain extension lookup for chain %d: %w", h.chain.ID, err)
			}
			for _, eb := range extra {
				cb := chain.Block{TStart: eb.TStart, QStart: eb.QStart, Size: eb.Size}
				for _, b := range f.Blocks {
					s0, s1 := b.Start, b.End
					if cb.TStart > s0 {
						s0 = cb.TStart
					}
					if cb.TEnd() < s1 {
						s1 = cb.TEnd()
					}
					if s0 >= s1 {
						continue
					}
					h.spans = append(h.spans, matchSpan{
						src: Span{Start: s0, End: s1},
						dst: cb.QStart + (s0 - cb.TStart),
					})
				}
			}
		}
	}

	for _, h := range order {
		sort.Slice(h.spans, func(i, j int) bool { return h.spans[i].src.Start < h.spans[j].src.Start })
		h.spans = dropOverlaps(h.spans)
		h.spans = coalesce(h.spans)
		for _, s := range h.spans {
			h.matched += s.src.Len()
		}
	}
	return order, nil
}

// dropOverlaps clips spans that overlap an earlier span on the source
// side. Overlap can only come from extension blocks duplicating part of a
// primary block; the primary alignment wins.
func dropOverlaps(spans []matchSpan) []matchSpan {
	out := spans[:0]
	var maxEnd int64 = -1
	for _, s := range spans {
		if s.src.End <= maxEnd {
			continue
		}
		if s.src.Start < maxEnd {
			clip := maxEnd - s.src.Start
			s.src.Start += clip
			s.dst += clip
		}
		out = append(out, s)
		maxEnd = s.src.End
	}
	return out
}

// splitRuns trims a chain's spans to the source ranges not yet claimed by
// a better chain, then groups the survivors into maximal runs: a run
// breaks wherever claiming removed bases between two surviving pieces,
// while natural chain gaps (indels) stay bridged inside one run.
func splitRuns(spans []matchSpan, claimed []Span) [][]matchSpan {
	var runs [][]matchSpan
	var cur []matchSpan
	brk := false // pending break before the next surviving piece

	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}

	for _, s := range spans {
		pieces, headTrim, tailTrim := subtract(s, claimed)
		if len(pieces) == 0 {
			// Whole span claimed: any run in progress ends here.
			brk = true
			continue
		}
		for i, p := range pieces {
			if brk || (i == 0 && headTrim && len(cur) > 0) || i > 0 {
				flush()
				brk = false
			}
			cur = append(cur, p)
		}
		brk = tailTrim
	}
	flush()
	return runs
}

// subtract removes the claimed ranges from one span, returning the
// surviving pieces plus whether the span lost bases at its head or tail.
func subtract(s matchSpan, claimed []Span) (pieces []matchSpan, headTrim, tailTrim bool) {
	cur := s
	for _, c := range claimed {
		if c.End <= cur.src.Start || c.Start >= cur.src.End {
			continue
		}
		if c.Start > cur.src.Start {
			keep := cur.src.Start + (c.Start - cur.src.Start)
			pieces = append(pieces, matchSpan{
				src: Span{Start: cur.src.Start, End: keep},
				dst: cur.dst,
			})
		} else {
			headTrim = true
		}
		if c.End >= cur.src.End {
			cur.src.Start = cur.src.End // fully consumed
			break
		}
		adv := c.End - cur.src.Start
		cur.src.Start += adv
		cur.dst += adv
	}
	if cur.src.Start < cur.src.End {
		pieces = append(pieces, cur)
	} else if len(claimed) > 0 {
		tailTrim = true
	}
	if len(pieces) > 0 && pieces[len(pieces)-1].src.End < s.src.End {
		tailTrim = true
	}
	if len(pieces) > 0 && pieces[0].src.Start > s.src.Start {
		headTrim = true
	}
	if len(pieces) == 0 {
		headTrim, tailTrim = true, true
	}
	return pieces, headTrim, tailTrim
}

// claim inserts a source range into the claimed set, keeping it sorted
// and non-overlapping.
func claim(claimed []Span, s Span) []Span {
	i := sort.Search(len(claimed), func(i int) bool { return claimed[i].End >= s.Start })
	merged := s
	j := i
	for j < len(claimed) && claimed[j].Start <= merged.End {
		if claimed[j].Start < merged.Start {
			merged.Start = claimed[j].Start
		}
		if claimed[j].End > merged.End {
			merged.End = claimed[j].End
		}
		j++
	}
	out := make([]Span, 0, len(claimed)-(j-i)+1)
	out = append(out, claimed[:i]...)
	out = append(out, merged)
	out = append(out, claimed[j:]...)
	return out
}

// runRegion builds the emitted region for one run of surviving spans.
func runRegion(c *chain.Chain, run []matchSpan, totalLen int64) Region {
	first, last := run[0], run[len(run)-1]
	start, end := c.QForward(first.dst, last.dstEnd())
	var matched int64
	for _, s := range run {
		matched += s.src.Len()
	}
	return Region{
		Seq:      c.QName,
		SeqSize:  c.QSize,
		Start:    start,
		End:      end,
		Strand:   c.QStrand,
		ChainID:  c.ID,
		Matched:  matched,
		Coverage: float64(matched) / float64(totalLen),
		SrcStart: first.src.Start,
		SrcEnd:   last.src.End,
	}
}

// blockCoverage reports the fraction of the feature's sub-blocks that
// contributed at least one base to a surviving region.
func blockCoverage(f *Feature, regions []Region) float64 {
	covered := 0
	for _, b := range f.Blocks {
		for _, r := range regions {
			if r.SrcStart < b.End && r.SrcEnd > b.Start {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(f.Blocks))
}
