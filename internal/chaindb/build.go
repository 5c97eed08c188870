package chaindb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-lift/internal/chain"
)

// Ingest batch-inserts a parsed chain set using the DuckDB Appender API
// and records the source file's fingerprint. Existing rows are cleared
// first; a chain database always reflects exactly one chain file.
func (s *Store) Ingest(set *chain.Set, fp FileFingerprint) error {
	for _, table := range []string{"chain_blocks", "chains", "chain_files"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	appender := func(table string) (*goduckdb.Appender, error) {
		var a *goduckdb.Appender
		err := conn.Raw(func(driverConn any) error {
			var err error
			a, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
			return err
		})
		return a, err
	}

	chains, err := appender("chains")
	if err != nil {
		return fmt.Errorf("create chains appender: %w", err)
	}
	defer chains.Close()

	blocks, err := appender("chain_blocks")
	if err != nil {
		return fmt.Errorf("create blocks appender: %w", err)
	}
	defer blocks.Close()

	for _, name := range set.SequenceNames() {
		for _, c := range set.Chains(name) {
			if err := chains.AppendRow(
				c.ID, c.Score,
				c.TName, c.TSize, c.TStart, c.TEnd,
				c.QName, c.QSize, string(c.QStrand), c.QStart, c.QEnd,
			); err != nil {
				return fmt.Errorf("append chain %d: %w", c.ID, err)
			}
			for _, b := range c.Blocks {
				if err := blocks.AppendRow(c.ID, b.TStart, b.QStart, b.Size); err != nil {
					return fmt.Errorf("append block of chain %d: %w", c.ID, err)
				}
			}
		}
	}

	if err := chains.Flush(); err != nil {
		return fmt.Errorf("flush chains: %w", err)
	}
	if err := blocks.Flush(); err != nil {
		return fmt.Errorf("flush blocks: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO chain_files (path, size, mod_time, ingested_at) VALUES (?, ?, ?, ?)`,
		fp.Path, fp.Size, fp.ModTime, time.Now(),
	); err != nil {
		return fmt.Errorf("record source file: %w", err)
	}

	return nil
}
