package liftover

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/vibe-lift/internal/chain"
)

// Mapper projects source intervals through a chain set. It holds only
// read-only state and may be shared between goroutines.
type Mapper struct {
	index  *Index
	logger *zap.Logger
}

// New creates a mapper over the given chain set, building its range index.
func New(set *chain.Set) *Mapper {
	return &Mapper{index: NewIndex(set), logger: zap.NewNop()}
}

// SetLogger sets the logger for per-feature diagnostics.
func (m *Mapper) SetLogger(l *zap.Logger) {
	m.logger = l
}

// Index returns the mapper's range index.
func (m *Mapper) Index() *Index { return m.index }

// matchSpan is one intersected sub-span of a query interval against a
// chain block: src on the old assembly, dst the corresponding start in
// query-strand coordinates on the new assembly.
type matchSpan struct {
	src Span
	dst int64
}

func (s matchSpan) dstEnd() int64 { return s.dst + s.src.Len() }

// Candidate is one chain's projection of a query interval: the matched
// sub-spans in source order, the matched base count, and the coverage
// ratio against the queried length.
type Candidate struct {
	Chain    *chain.Chain
	Spans    []matchSpan
	Matched  int64
	Coverage float64
}

// DestSpan returns the bridged destination interval in forward-strand
// coordinates: the endpoints of the first and last matched sub-spans,
// joined across any insertion/deletion gaps between them.
func (cd *Candidate) DestSpan() Span {
	first, last := cd.Spans[0], cd.Spans[len(cd.Spans)-1]
	start, end := cd.Chain.QForward(first.dst, last.dstEnd())
	return Span{Start: start, End: end}
}

// SrcSpan returns the source footprint of the matched sub-spans.
func (cd *Candidate) SrcSpan() Span {
	return Span{Start: cd.Spans[0].src.Start, End: cd.Spans[len(cd.Spans)-1].src.End}
}

// mapPoint returns the forward-strand destination coordinate of the
// source base at p, if p lies inside one of the matched sub-spans.
func (cd *Candidate) mapPoint(p int64) (int64, bool) {
	for _, s := range cd.Spans {
		if p >= s.src.Start && p < s.src.End {
			d := s.dst + (p - s.src.Start)
			fwd, _ := cd.Chain.QForward(d, d+1)
			return fwd, true
		}
	}
	return 0, false
}

// region converts the candidate into a Region; totalLen is the feature's
// full source length, used for the coverage summary.
func (cd *Candidate) region(totalLen int64) Region {
	dst := cd.DestSpan()
	src := cd.SrcSpan()
	return Region{
		Seq:      cd.Chain.QName,
		SeqSize:  cd.Chain.QSize,
		Start:    dst.Start,
		End:      dst.End,
		Strand:   cd.Chain.QStrand,
		ChainID:  cd.Chain.ID,
		Matched:  cd.Matched,
		Coverage: float64(cd.Matched) / float64(totalLen),
		SrcStart: src.Start,
		SrcEnd:   src.End,
	}
}

// MapInterval projects [start, end) on the named source sequence through
// every overlapping chain and returns one candidate per chain, best first
// (coverage desc, then matched bases desc, then chain id asc). An empty
// result means no chain overlaps the interval at all.
func (m *Mapper) MapInterval(seq string, start, end int64) []Candidate {
	entries := m.index.Query(seq, start, end)
	if len(entries) == 0 {
		return nil
	}

	byChain := make(map[*chain.Chain][]matchSpan)
	for _, e := range entries {
		b := e.Block
		s0, s1 := start, end
		if b.TStart > s0 {
			s0 = b.TStart
		}
		if b.TEnd() < s1 {
			s1 = b.TEnd()
		}
		byChain[e.Chain] = append(byChain[e.Chain], matchSpan{
			src: Span{Start: s0, End: s1},
			dst: b.QStart + (s0 - b.TStart),
		})
	}

	length := end - start
	cands := make([]Candidate, 0, len(byChain))
	for c, spans := range byChain {
		sort.Slice(spans, func(i, j int) bool { return spans[i].src.Start < spans[j].src.Start })
		spans = coalesce(spans)
		var matched int64
		for _, s := range spans {
			matched += s.src.Len()
		}
		cands = append(cands, Candidate{
			Chain:    c,
			Spans:    spans,
			Matched:  matched,
			Coverage: float64(matched) / float64(length),
		})
	}

	sort.Slice(cands, func(i, j int) bool { return betterCandidate(&cands[i], &cands[j]) })
	return cands
}

// betterCandidate is the deterministic candidate order: higher coverage,
// then more matched bases, then smaller chain id.
func betterCandidate(a, b *Candidate) bool {
	if a.Coverage != b.Coverage {
		return a.Coverage > b.Coverage
	}
	if a.Matched != b.Matched {
		return a.Matched > b.Matched
	}
	return a.Chain.ID < b.Chain.ID
}

// coalesce merges sub-spans that are truly contiguous on both assemblies.
// Spans separated by a source or destination gap stay distinct; the gap
// is bridged later when endpoints are joined, but its bases are never
// counted as matched.
func coalesce(spans []matchSpan) []matchSpan {
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.src.Start == last.src.End && s.dst == last.dstEnd() {
			last.src.End = s.src.End
			continue
		}
		out = append(out, s)
	}
	return out
}

// MapFeature maps one feature and returns its destination interval(s), or
// an *UnmappedError describing why no acceptable mapping exists. Any other
// error kind indicates a malformed feature, not a mapping outcome.
func (m *Mapper) MapFeature(f *Feature, opts Options) (*Mapped, error) {
	if len(f.Blocks) == 0 {
		return nil, fmt.Errorf("feature on %s has no intervals", f.Seq)
	}
	for i, b := range f.Blocks {
		if b.Start < 0 || b.Start >= b.End {
			return nil, fmt.Errorf("feature on %s: invalid interval %d-%d", f.Seq, b.Start, b.End)
		}
		if i > 0 && b.Start < f.Blocks[i-1].End {
			return nil, fmt.Errorf("feature on %s: intervals out of order at %d-%d", f.Seq, b.Start, b.End)
		}
	}

	if !m.index.HasSequence(f.Seq) {
		return nil, unmapped(NoChainForSequence, "no chain maps from %s", f.Seq)
	}

	if opts.Multiple {
		return m.mapMultiple(f, opts)
	}
	return m.mapSingle(f, opts)
}

// mapSingle implements one-or-nothing mapping: every sub-block picks its
// best accepted chain independently, then the accepted set must agree on
// destination sequence, orientation, and block order.
func (m *Mapper) mapSingle(f *Feature, opts Options) (*Mapped, error) {
	totalLen := f.Length()
	blocks := make([]MappedBlock, len(f.Blocks))
	winners := make([]*Candidate, len(f.Blocks))

	anyOverlap := false
	accepted := 0
	for i, b := range f.Blocks {
		blocks[i] = MappedBlock{Src: b}
		cands := m.MapInterval(f.Seq, b.Start, b.End)
		if len(cands) == 0 {
			continue
		}
		anyOverlap = true
		best := &cands[0]
		if best.Matched == 0 || best.Coverage < opts.MinMatch {
			continue
		}
		blocks[i].SrcUsed = best.SrcSpan()
		blocks[i].Dst = best.DestSpan()
		blocks[i].ChainID = best.Chain.ID
		blocks[i].Ok = true
		winners[i] = best
		accepted++
	}

	if !anyOverlap {
		return nil, unmapped(NoOverlap, "no chain overlaps %s:%d-%d", f.Seq, f.Span().Start, f.Span().End)
	}
	if accepted == 0 {
		return nil, unmapped(BelowMinMatch, "best candidate below minMatch %.2f", opts.MinMatch)
	}
	if ratio := float64(accepted) / float64(len(f.Blocks)); ratio < opts.MinBlocks {
		return nil, unmapped(BelowMinMatch, "%d of %d sub-blocks mapped, below minBlocks %.2f",
			accepted, len(f.Blocks), opts.MinBlocks)
	}

	if err := checkBlockOrder(blocks, winners, opts); err != nil {
		return nil, err
	}

	// The feature's region is attributed to the dominant chain: most
	// matched bases, smaller id on ties.
	var dominant *Candidate
	var matched int64
	dst := Span{Start: -1, End: -1}
	srcStart, srcEnd := int64(-1), int64(-1)
	for i := range blocks {
		if !blocks[i].Ok {
			continue
		}
		w := winners[i]
		matched += w.Matched
		if dominant == nil || w.Matched > dominant.Matched ||
			(w.Matched == dominant.Matched && w.Chain.ID < dominant.Chain.ID) {
			dominant = w
		}
		if dst.Start < 0 || blocks[i].Dst.Start < dst.Start {
			dst.Start = blocks[i].Dst.Start
		}
		if blocks[i].Dst.End > dst.End {
			dst.End = blocks[i].Dst.End
		}
		if srcStart < 0 {
			srcStart = blocks[i].Src.Start
		}
		srcEnd = blocks[i].Src.End
	}

	markers, err := m.mapMarkers(f, blocks, winners, opts)
	if err != nil {
		return nil, err
	}

	return &Mapped{
		Regions: []Region{{
			Seq:      dominant.Chain.QName,
			SeqSize:  dominant.Chain.QSize,
			Start:    dst.Start,
			End:      dst.End,
			Strand:   dominant.Chain.QStrand,
			ChainID:  dominant.Chain.ID,
			Matched:  matched,
			Coverage: float64(matched) / float64(totalLen),
			SrcStart: srcStart,
			SrcEnd:   srcEnd,
		}},
		Blocks:        blocks,
		Markers:       markers,
		BlockCoverage: float64(accepted) / float64(len(f.Blocks)),
	}, nil
}

// checkBlockOrder enforces the single-region consistency rules: one
// destination sequence, one orientation, and source block order preserved
// on the new assembly.
func checkBlockOrder(blocks []MappedBlock, winners []*Candidate, opts Options) error {
	var prev *Candidate
	var prevDst Span
	for i := range blocks {
		if !blocks[i].Ok {
			continue
		}
		w := winners[i]
		if prev != nil {
			if w.Chain.QName != prev.Chain.QName || w.Chain.QStrand != prev.Chain.QStrand {
				return unmapped(BelowMinMatch, "sub-blocks map to %s%c and %s%c",
					prev.Chain.QName, prev.Chain.QStrand, w.Chain.QName, w.Chain.QStrand)
			}
			// Order is checked in strand space: forward chains must not
			// decrease, reverse chains must not increase.
			ordered := blocks[i].Dst.Start >= prevDst.Start
			if opts.MonotonicBlocks {
				ordered = blocks[i].Dst.Start >= prevDst.End
			}
			if w.Chain.QStrand == '-' {
				ordered = blocks[i].Dst.End <= prevDst.End
				if opts.MonotonicBlocks {
					ordered = blocks[i].Dst.End <= prevDst.Start
				}
			}
			if !ordered {
				return unmapped(BelowMinMatch, "sub-block order not preserved on %s", w.Chain.QName)
			}
		}
		prev = w
		prevDst = blocks[i].Dst
	}
	return nil
}

// mapMarkers projects each point marker through the accepted sub-blocks'
// chains. A marker inside a matched span maps exactly; one falling in an
// unchained gap is snapped to the nearest mapped source base when
// FudgeMarkers is set, reported as -1 when DropUnmappedMarkers is set, and
// otherwise rejects the feature.
func (m *Mapper) mapMarkers(f *Feature, blocks []MappedBlock, winners []*Candidate, opts Options) ([]int64, error) {
	if len(f.Markers) == 0 {
		return nil, nil
	}

	out := make([]int64, len(f.Markers))
	for i, p := range f.Markers {
		if d, ok := mapMarkerExact(p, blocks, winners); ok {
			out[i] = d
			continue
		}
		if opts.FudgeMarkers {
			if d, ok := mapMarkerNearest(p, blocks, winners); ok {
				out[i] = d
				continue
			}
		}
		if opts.DropUnmappedMarkers {
			out[i] = -1
			continue
		}
		return nil, unmapped(BelowMinMatch, "marker %s:%d falls in an unmapped gap", f.Seq, p)
	}
	return out, nil
}

func mapMarkerExact(p int64, blocks []MappedBlock, winners []*Candidate) (int64, bool) {
	for i := range blocks {
		if !blocks[i].Ok {
			continue
		}
		if d, ok := winners[i].mapPoint(p); ok {
			return d, true
		}
	}
	return 0, false
}

// mapMarkerNearest snaps p to the closest mapped source base across all
// accepted sub-blocks, preferring the leftward base on distance ties.
func mapMarkerNearest(p int64, blocks []MappedBlock, winners []*Candidate) (int64, bool) {
	bestDist := int64(-1)
	bestBase := int64(0)
	var bestCand *Candidate
	for i := range blocks {
		if !blocks[i].Ok {
			continue
		}
		for _, s := range winners[i].Spans {
			base, dist := p, int64(0)
			switch {
			case p < s.src.Start:
				base, dist = s.src.Start, s.src.Start-p
			case p >= s.src.End:
				base, dist = s.src.End-1, p-(s.src.End-1)
			}
			if bestDist < 0 || dist < bestDist || (dist == bestDist && base < bestBase) {
				bestDist, bestBase, bestCand = dist, base, winners[i]
			}
		}
	}
	if bestCand == nil {
		return 0, false
	}
	return bestCand.mapPoint(bestBase)
}
