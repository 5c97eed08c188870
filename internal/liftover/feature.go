// Package liftover maps genomic intervals from one assembly to another
// through a set of pairwise alignment chains.
//
// The package is format-agnostic: callers decode their records into a
// Feature, call Mapper.MapFeature, and re-encode the Mapped result. The
// chain.Set and the Index built from it are immutable after construction,
// so one Mapper can serve any number of goroutines.
package liftover

import "fmt"

// Span is a half-open interval [Start, End).
type Span struct {
	Start int64
	End   int64
}

// Len returns the number of bases in the span.
func (s Span) Len() int64 { return s.End - s.Start }

// Feature is the unit of work submitted to the mapper: a source sequence
// name, one or more ordered sub-intervals (a single interval for simple
// records, an exon list for block-structured records), and optional point
// markers (e.g. thickStart/thickEnd) that must map consistently with the
// enclosing blocks.
type Feature struct {
	Seq     string
	Blocks  []Span
	Markers []int64
}

// Length returns the total number of source bases across all sub-blocks.
func (f *Feature) Length() int64 {
	var n int64
	for _, b := range f.Blocks {
		n += b.Len()
	}
	return n
}

// Span returns the overall source footprint of the feature.
func (f *Feature) Span() Span {
	if len(f.Blocks) == 0 {
		return Span{}
	}
	return Span{Start: f.Blocks[0].Start, End: f.Blocks[len(f.Blocks)-1].End}
}

// Options controls the acceptance policy for one MapFeature call. The zero
// value is not useful; start from DefaultOptions.
type Options struct {
	// MinMatch is the minimum fraction of a feature's (or sub-block's)
	// bases that must map for acceptance.
	MinMatch float64

	// MinBlocks is the minimum fraction of a block-structured feature's
	// sub-blocks that must individually map for the feature to be accepted.
	MinBlocks float64

	// Multiple allows one feature to produce several disjoint destination
	// regions instead of one-or-nothing.
	Multiple bool

	// MinChainSizeSource and MinChainSizeDest filter multiple-mode regions
	// by the footprint of their contributing chain on each assembly.
	MinChainSizeSource int64
	MinChainSizeDest   int64

	// MinRegionSizeDest filters multiple-mode regions by their own length
	// on the new assembly.
	MinRegionSizeDest int64

	// FudgeMarkers snaps a point marker that falls in an unchained gap to
	// the nearest mapped source base instead of rejecting the feature.
	FudgeMarkers bool

	// DropUnmappedMarkers reports an unmappable marker as -1 in
	// Mapped.Markers instead of rejecting the feature. Used by formats
	// whose per-point data is optional (sample points).
	DropUnmappedMarkers bool

	// MonotonicBlocks additionally requires mapped sub-blocks to be
	// strictly increasing (non-overlapping) on the new assembly.
	MonotonicBlocks bool

	// Extension recovers chain blocks pruned from the primary chain file
	// (e.g. duplicated segments dropped by netting). Consulted only in
	// multiple mode, for chains that already have at least one hit.
	Extension func(chainID int64) ([]Block, error)
}

// Block mirrors chain.Block for the Extension callback so that extension
// sources do not need to depend on the chain package internals.
type Block struct {
	TStart int64
	QStart int64
	Size   int64
}

// DefaultOptions returns the mapping policy used when no flags are given:
// 95% of bases must map, no sub-block quorum, single-region output.
func DefaultOptions() Options {
	return Options{MinMatch: 0.95}
}

// Region is one mapped destination interval, in forward-strand coordinates
// on the new assembly.
type Region struct {
	Seq     string
	SeqSize int64
	Start   int64
	End     int64
	Strand  byte // orientation of the contributing chain, '+' or '-'
	ChainID int64

	// Matched counts the source bases that aligned inside this region;
	// Coverage is Matched over the feature's total source length.
	Matched  int64
	Coverage float64

	// SrcStart and SrcEnd delimit the source bases this region accounts
	// for. Multiple-mode regions never overlap each other in these
	// coordinates.
	SrcStart int64
	SrcEnd   int64
}

// Len returns the region's length on the new assembly.
func (r Region) Len() int64 { return r.End - r.Start }

// MappedBlock records the fate of one input sub-block.
type MappedBlock struct {
	Src     Span
	SrcUsed Span // accepted source footprint within Src, valid only when Ok
	Dst     Span // forward coordinates, valid only when Ok
	ChainID int64
	Ok      bool
}

// Mapped is the outcome of successfully mapping one feature. In single
// region mode Regions has exactly one element; in multiple mode it holds
// every surviving region in source-coordinate order and Blocks/Markers are
// nil (per-block reassembly is not meaningful across split regions).
type Mapped struct {
	Regions []Region

	// Blocks has one entry per input sub-block, in input order. Markers
	// has one entry per input marker (-1 for a dropped marker when
	// Options.DropUnmappedMarkers is set).
	Blocks  []MappedBlock
	Markers []int64

	// BlockCoverage is acceptedBlocks/totalBlocks for block-structured
	// features, 1.0 for simple intervals.
	BlockCoverage float64
}

// Best returns the highest-coverage region. For single-region results this
// is the only region.
func (m *Mapped) Best() Region { return m.Regions[0] }

// Reason classifies why a feature could not be mapped.
type Reason int

const (
	// NoChainForSequence: the chain file has no chain on the feature's
	// source sequence.
	NoChainForSequence Reason = iota
	// NoOverlap: chains exist for the sequence but none overlap the
	// feature's coordinates.
	NoOverlap
	// BelowMinMatch: overlapping chains exist but no candidate meets the
	// MinMatch/MinBlocks thresholds.
	BelowMinMatch
	// FilteredByChainSize: multiple mode found regions but every one was
	// excluded by the chain/region size filters.
	FilteredByChainSize
)

func (r Reason) String() string {
	switch r {
	case NoChainForSequence:
		return "NoChainForSequence"
	case NoOverlap:
		return "NoOverlap"
	case BelowMinMatch:
		return "BelowMinMatch"
	case FilteredByChainSize:
		return "FilteredByChainSize"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// UnmappedError reports a per-feature mapping failure. It is an expected
// outcome, not a fault: batch callers record it against the record and
// continue with the next feature.
type UnmappedError struct {
	Reason Reason
	Detail string
}

func (e *UnmappedError) Error() string {
	if e.Detail == "" {
		return e.Reason.String()
	}
	return e.Reason.String() + ": " + e.Detail
}

func unmapped(reason Reason, format string, args ...interface{}) *UnmappedError {
	return &UnmappedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
