// Package chain provides UCSC chain file parsing functionality.
//
// A chain describes a local pairwise alignment between two assemblies. For
// liftover purposes the target ("t") side is the old assembly the input
// annotations live on, and the query ("q") side is the new assembly they are
// lifted to.
package chain

import "fmt"

// Block is a contiguous ungapped aligned span within a chain.
// QStart is expressed in strand coordinates: for a reverse-strand chain it
// counts from the end of the query sequence, exactly as in the chain file.
type Block struct {
	TStart int64 // offset on the old (target) assembly
	QStart int64 // offset on the new (query) assembly, strand coordinates
	Size   int64 // aligned bases, always > 0
}

// TEnd returns the half-open end of the block on the target side.
func (b Block) TEnd() int64 { return b.TStart + b.Size }

// QEnd returns the half-open end of the block on the query side, in strand
// coordinates.
func (b Block) QEnd() int64 { return b.QStart + b.Size }

// Chain is one alignment record: a header plus an ordered list of blocks.
// Blocks are strictly increasing on both sides; the gaps between them are
// insertions or deletions that are not directly aligned.
type Chain struct {
	Score   int64
	TName   string // old assembly sequence name
	TSize   int64
	TStart  int64
	TEnd    int64
	QName   string // new assembly sequence name
	QSize   int64
	QStrand byte  // '+' or '-'
	QStart  int64 // strand coordinates
	QEnd    int64
	ID      int64
	Blocks  []Block
}

// TSpan returns the length of the chain's footprint on the old assembly.
func (c *Chain) TSpan() int64 { return c.TEnd - c.TStart }

// QSpan returns the length of the chain's footprint on the new assembly.
func (c *Chain) QSpan() int64 { return c.QEnd - c.QStart }

// QForward converts a half-open query interval from strand coordinates to
// forward-strand coordinates. For '+' chains this is the identity.
func (c *Chain) QForward(start, end int64) (int64, int64) {
	if c.QStrand == '+' {
		return start, end
	}
	return c.QSize - end, c.QSize - start
}

// String returns a short description, useful in logs and errors.
func (c *Chain) String() string {
	return fmt.Sprintf("chain %d %s:%d-%d -> %s:%d-%d %c",
		c.ID, c.TName, c.TStart, c.TEnd, c.QName, c.QStart, c.QEnd, c.QStrand)
}
