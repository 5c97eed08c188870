package liftover

import (
	"runtime"
	"sync"
)

// WorkItem holds a parsed feature ready for mapping. Line is the input
// line the feature was parsed from, captured at parse time; once items
// are in flight the parser has read ahead and can no longer say which
// line a given feature came from.
type WorkItem struct {
	Seq     int
	Line    int
	Feature *Feature
	Extra   any // caller-specific data (e.g. the originating record)
}

// WorkResult holds the mapping outcome for a single feature.
type WorkResult struct {
	Seq     int
	Line    int
	Feature *Feature
	Mapped  *Mapped
	Err     error
	Extra   any
}

// ParallelMap maps work items using a pool of workers. The chain set and
// index are read-only, so workers share the mapper without locking.
// Results are sent to the returned channel in arrival order (not sequence
// order); use OrderedCollect to consume them in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (m *Mapper) ParallelMap(items <-chan WorkItem, opts Options, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range items {
				// Items without a feature (passthrough records) keep
				// their slot in the output order but skip mapping.
				if item.Feature == nil {
					results <- WorkResult{Seq: item.Seq, Line: item.Line, Extra: item.Extra}
					continue
				}
				mapped, err := m.MapFeature(item.Feature, opts)
				results <- WorkResult{
					Seq:     item.Seq,
					Line:    item.Line,
					Feature: item.Feature,
					Mapped:  mapped,
					Err:     err,
					Extra:   item.Extra,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
