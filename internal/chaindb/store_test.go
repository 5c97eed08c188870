package chaindb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inodb/vibe-lift/internal/chain"
	"github.com/inodb/vibe-lift/internal/liftover"
)

const testChains = `chain 1000 chr1 10000000 + 1000 2000 chr1 20000000 + 5000 6000 1
400	100	100
500

chain 800 chr2 10000000 + 100 700 chr2 20000000 + 100 700 2
600
`

func testSet(t *testing.T) *chain.Set {
	t.Helper()
	set, err := chain.Read(strings.NewReader(testChains))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return set
}

func testFingerprint() FileFingerprint {
	return FileFingerprint{Path: "test.chain", Size: 123, ModTime: time.Now()}
}

func TestStore_IngestAndQuery(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "chains.duckdb")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Ingest(testSet(t), testFingerprint()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	chains, blocks, err := store.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if chains != 2 {
		t.Errorf("chains = %d, want 2", chains)
	}
	if blocks != 3 {
		t.Errorf("blocks = %d, want 3", blocks)
	}

	got, err := store.BlocksForChain(1)
	if err != nil {
		t.Fatalf("BlocksForChain: %v", err)
	}
	want := []liftover.Block{
		{TStart: 1000, QStart: 5000, Size: 400},
		{TStart: 1500, QStart: 5500, Size: 500},
	}
	if len(got) != len(want) {
		t.Fatalf("len(blocks) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Unknown chain id returns no blocks, not an error.
	none, err := store.BlocksForChain(99)
	if err != nil {
		t.Fatalf("BlocksForChain(99): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("blocks for unknown chain = %d, want 0", len(none))
	}
}

func TestStore_IngestReplacesExistingData(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := Open(filepath.Join(tmpDir, "chains.duckdb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Ingest(testSet(t), testFingerprint()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if err := store.Ingest(testSet(t), testFingerprint()); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	chains, blocks, err := store.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if chains != 2 || blocks != 3 {
		t.Errorf("after re-ingest chains=%d blocks=%d, want 2 and 3", chains, blocks)
	}
}

func TestStore_ReopenDB(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "persist.duckdb")

	store1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store1.Ingest(testSet(t), testFingerprint()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	store1.Close()

	store2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer store2.Close()

	blocks, err := store2.BlocksForChain(2)
	if err != nil {
		t.Fatalf("BlocksForChain: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Size != 600 {
		t.Errorf("blocks after reopen = %+v, want one block of size 600", blocks)
	}
}

func TestStore_ExtensionSignature(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := Open(filepath.Join(tmpDir, "chains.duckdb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	// The bound method must satisfy the mapper's extension hook.
	var opts liftover.Options
	opts.Extension = store.BlocksForChain
	if opts.Extension == nil {
		t.Fatal("BlocksForChain does not satisfy Options.Extension")
	}
}

func TestStore_FileExists(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.duckdb")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("DuckDB file was not created")
	}
}

func TestStatFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a.chain")
	if err := os.WriteFile(path, []byte(testChains), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fp, err := StatFile(path)
	if err != nil {
		t.Fatalf("StatFile: %v", err)
	}
	if fp.Path != path {
		t.Errorf("Path = %q, want %q", fp.Path, path)
	}
	if fp.Size != int64(len(testChains)) {
		t.Errorf("Size = %d, want %d", fp.Size, len(testChains))
	}
}
