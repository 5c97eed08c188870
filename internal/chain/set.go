package chain

import "sort"

// Set holds all chains from one chain file, grouped by old-assembly sequence
// name. It is built once by Read and never modified afterwards, so it is safe
// to share between goroutines.
type Set struct {
	bySeq map[string][]*Chain
	count int
}

func newSet() *Set {
	return &Set{bySeq: make(map[string][]*Chain)}
}

func (s *Set) add(c *Chain) {
	s.bySeq[c.TName] = append(s.bySeq[c.TName], c)
	s.count++
}

// Chains returns all chains whose old-assembly side is on the named sequence.
// The returned slice is owned by the Set and must not be modified.
func (s *Set) Chains(seqName string) []*Chain {
	return s.bySeq[seqName]
}

// HasSequence reports whether any chain maps from the named sequence.
func (s *Set) HasSequence(seqName string) bool {
	return len(s.bySeq[seqName]) > 0
}

// SequenceNames returns the old-assembly sequence names present in the set,
// sorted for deterministic iteration.
func (s *Set) SequenceNames() []string {
	names := make([]string, 0, len(s.bySeq))
	for name := range s.bySeq {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of chains in the set.
func (s *Set) Len() int {
	return s.count
}
