package format

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/inodb/vibe-lift/internal/liftover"
)

// Stats summarizes one run: record counts by outcome and, in multiple
// mode, how many regions the mapped records produced.
type Stats struct {
	Read     int
	Mapped   int
	Regions  int
	Unmapped int
	ByReason map[liftover.Reason]int
}

// Run drives one liftover pass: parse records, map their features across
// a worker pool, and write results in input order. Per-record mapping
// failures go to the unmapped writer and the run continues; only I/O and
// parse errors stop it.
func Run(m *liftover.Mapper, p Parser, w Writer, uw *UnmappedWriter, opts liftover.Options, workers int, logger *zap.Logger) (*Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := &Stats{ByReason: make(map[liftover.Reason]int)}

	items := make(chan liftover.WorkItem, 2*runtime.NumCPU())
	var parseErr error

	go func() {
		defer close(items)
		seq := 0
		for {
			rec, err := p.Next()
			if err != nil {
				parseErr = fmt.Errorf("read record: %w", err)
				return
			}
			if rec == nil {
				return
			}
			// The line number has to be captured here, while this
			// goroutine still owns the parser; by the time a result
			// comes back the parser has read ahead.
			items <- liftover.WorkItem{Seq: seq, Line: p.LineNumber(), Feature: rec.Feature(), Extra: rec}
			seq++
		}
	}()

	results := m.ParallelMap(items, opts, workers)

	err := liftover.OrderedCollect(results, func(r liftover.WorkResult) error {
		rec := r.Extra.(Record)

		// Passthrough lines (comments, headers) skip the mapper entirely.
		if r.Feature == nil {
			return w.Write(rec, nil)
		}
		stats.Read++

		if r.Err != nil {
			var ue *liftover.UnmappedError
			if !errors.As(r.Err, &ue) {
				return fmt.Errorf("map record at line %d: %w", r.Line, r.Err)
			}
			stats.Unmapped++
			stats.ByReason[ue.Reason]++
			logger.Debug("record not mapped",
				zap.String("seq", r.Feature.Seq),
				zap.Int64("start", r.Feature.Span().Start),
				zap.Int64("end", r.Feature.Span().End),
				zap.String("reason", ue.Reason.String()))
			return uw.Write(rec, ue)
		}

		stats.Mapped++
		stats.Regions += len(r.Mapped.Regions)
		return w.Write(rec, r.Mapped)
	})
	if err != nil {
		return stats, err
	}
	if parseErr != nil {
		return stats, parseErr
	}

	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}
	if err := uw.Flush(); err != nil {
		return stats, fmt.Errorf("flush unmapped output: %w", err)
	}

	logger.Info("liftover finished",
		zap.Int("records", stats.Read),
		zap.Int("mapped", stats.Mapped),
		zap.Int("unmapped", stats.Unmapped))

	return stats, nil
}
