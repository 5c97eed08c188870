// Package chaindb stores full (un-netted) chain sets in DuckDB so that
// multiple-region liftover can recover blocks pruned from the primary
// chain file, e.g. duplicated segments dropped by netting.
package chaindb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-lift/internal/liftover"
)

// Store manages a DuckDB connection holding chain headers and blocks.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chains (
		id BIGINT PRIMARY KEY,
		score BIGINT,
		t_name VARCHAR,
		t_size BIGINT,
		t_start BIGINT,
		t_end BIGINT,
		q_name VARCHAR,
		q_size BIGINT,
		q_strand VARCHAR,
		q_start BIGINT,
		q_end BIGINT
	)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chain_blocks (
		chain_id BIGINT,
		t_start BIGINT,
		q_start BIGINT,
		size BIGINT
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chain_files (
		path VARCHAR,
		size BIGINT,
		mod_time TIMESTAMP,
		ingested_at TIMESTAMP
	)`)
	return err
}

// BlocksForChain returns the stored blocks of one chain, in target order.
// The signature matches liftover.Options.Extension so a bound method can
// be injected directly.
func (s *Store) BlocksForChain(chainID int64) ([]liftover.Block, error) {
	rows, err := s.db.Query(
		`SELECT t_start, q_start, size FROM chain_blocks WHERE chain_id=? ORDER BY t_start`,
		chainID)
	if err != nil {
		return nil, fmt.Errorf("query chain blocks: %w", err)
	}
	defer rows.Close()

	var blocks []liftover.Block
	for rows.Next() {
		var b liftover.Block
		if err := rows.Scan(&b.TStart, &b.QStart, &b.Size); err != nil {
			return nil, fmt.Errorf("scan chain block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain blocks: %w", err)
	}
	return blocks, nil
}

// Counts returns the number of stored chains and blocks.
func (s *Store) Counts() (chains, blocks int64, err error) {
	if err = s.db.QueryRow(`SELECT count(*) FROM chains`).Scan(&chains); err != nil {
		return 0, 0, fmt.Errorf("count chains: %w", err)
	}
	if err = s.db.QueryRow(`SELECT count(*) FROM chain_blocks`).Scan(&blocks); err != nil {
		return 0, 0, fmt.Errorf("count blocks: %w", err)
	}
	return chains, blocks, nil
}

// FileFingerprint holds stat-based identity for an ingested chain file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
