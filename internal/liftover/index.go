package liftover

import (
	"github.com/inodb/vibe-lift/internal/chain"
)

// binSize partitions each source sequence into fixed 64 KiB coordinate
// bins. Chain blocks are rarely longer than a few bins, so a query visits
// a handful of small slices instead of scanning every chain on the
// sequence.
const binSize = 1 << 16

// Entry is one chain block returned by an index query, paired with its
// owning chain.
type Entry struct {
	Chain *chain.Chain
	Block chain.Block
}

// Index answers "which chain blocks overlap [start, end) on this source
// sequence" in time proportional to the answer, not to the chain count.
// It is built once from a chain.Set and never mutated, so it is safe to
// share between goroutines.
type Index struct {
	set  *chain.Set
	seqs map[string]*seqIndex
}

type seqIndex struct {
	bins [][]Entry
}

// NewIndex builds the per-sequence binned block index for a chain set.
func NewIndex(set *chain.Set) *Index {
	ix := &Index{set: set, seqs: make(map[string]*seqIndex)}
	for _, name := range set.SequenceNames() {
		si := &seqIndex{}
		for _, c := range set.Chains(name) {
			for _, b := range c.Blocks {
				si.register(c, b)
			}
		}
		ix.seqs[name] = si
	}
	return ix
}

// Set returns the chain set the index was built from.
func (ix *Index) Set() *chain.Set { return ix.set }

// HasSequence reports whether any chain maps from the named source
// sequence.
func (ix *Index) HasSequence(seq string) bool {
	_, ok := ix.seqs[seq]
	return ok
}

// register adds a block to every bin it intersects.
func (si *seqIndex) register(c *chain.Chain, b chain.Block) {
	first := int(b.TStart / binSize)
	last := int((b.TEnd() - 1) / binSize)
	if last >= len(si.bins) {
		bins := make([][]Entry, last+1)
		copy(bins, si.bins)
		si.bins = bins
	}
	for i := first; i <= last; i++ {
		si.bins[i] = append(si.bins[i], Entry{Chain: c, Block: b})
	}
}

// Query returns every chain block overlapping the half-open interval
// [start, end) on the named source sequence. Blocks spanning several bins
// are reported once: in every bin after the first one visited, entries
// that start before the bin floor are skipped because an earlier bin
// already yielded them. The order of ties is unspecified.
func (ix *Index) Query(seq string, start, end int64) []Entry {
	si, ok := ix.seqs[seq]
	if !ok || start >= end || end <= 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}

	first := int(start / binSize)
	last := int((end - 1) / binSize)
	if first >= len(si.bins) {
		return nil
	}
	if last >= len(si.bins) {
		last = len(si.bins) - 1
	}

	var out []Entry
	for i := first; i <= last; i++ {
		floor := int64(i) * binSize
		for _, e := range si.bins[i] {
			if i > first && e.Block.TStart < floor {
				continue // already seen in an earlier bin
			}
			if e.Block.TStart < end && e.Block.TEnd() > start {
				out = append(out, e)
			}
		}
	}
	return out
}
