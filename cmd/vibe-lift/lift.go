package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-lift/internal/bed"
	"github.com/inodb/vibe-lift/internal/chain"
	"github.com/inodb/vibe-lift/internal/chaindb"
	"github.com/inodb/vibe-lift/internal/format"
	"github.com/inodb/vibe-lift/internal/genepred"
	"github.com/inodb/vibe-lift/internal/gff"
	"github.com/inodb/vibe-lift/internal/liftover"
	"github.com/inodb/vibe-lift/internal/positions"
	"github.com/inodb/vibe-lift/internal/psl"
	"github.com/inodb/vibe-lift/internal/sample"
)

// liftFlags collects every lift option so the run function stays
// readable. Values come from flags, with viper supplying config-file and
// environment defaults for unset flags.
type liftFlags struct {
	format        string
	bedPlus       int
	hasBin        bool
	tab           bool
	minMatch      float64
	minBlocks     float64
	fudgeThick    bool
	multiple      bool
	noSerial      bool
	minChainT     int64
	minChainQ     int64
	minSizeQ      int64
	chainDB       string
	ends          int64
	preserveInput bool
	workers       int
	errorHelp     bool
}

func newLiftCmd() *cobra.Command {
	var f liftFlags

	cmd := &cobra.Command{
		Use:   "lift [flags] <oldFile> <map.chain> <newFile> <unMapped>",
		Short: "Lift annotations from the old assembly to the new one",
		Long: `Lift reads annotations on the old assembly, maps them through the chain
file and writes successfully mapped records to newFile. Records that fail
to map go to unMapped, each preceded by a comment naming the reason.`,
		Example: `  vibe-lift lift old.bed hg19ToHg38.over.chain.gz new.bed unmapped.bed
  vibe-lift lift --multiple --min-match 0.1 dups.bed map.chain new.bed un.bed
  vibe-lift lift --format gff genes.gff map.chain new.gff un.gff`,
		Args: cobra.MaximumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.errorHelp {
				printErrorHelp(cmd.OutOrStdout())
				return nil
			}
			if len(args) != 4 {
				return fmt.Errorf("expected 4 arguments, got %d (see --help)", len(args))
			}
			return runLift(&f, args)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.format, "format", "", "input format: bed, gff, genepred, psl, sample, positions (default: by extension)")
	fs.IntVar(&f.bedPlus, "bed-plus", 0, "treat input as bedN+: first N fields standard, rest passthrough")
	fs.BoolVar(&f.hasBin, "has-bin", false, "input has a leading bin column (requires --bed-plus)")
	fs.BoolVar(&f.tab, "tab", false, "fields are tab-separated only (requires --bed-plus)")
	fs.Float64Var(&f.minMatch, "min-match", 0.95, "minimum fraction of bases that must map")
	fs.Float64Var(&f.minBlocks, "min-blocks", 0.0, "minimum fraction of sub-blocks that must map")
	fs.BoolVar(&f.fudgeThick, "fudge-thick", false, "snap thickStart/thickEnd to the nearest mapped base instead of failing")
	fs.BoolVar(&f.multiple, "multiple", false, "allow one record to produce several output regions")
	fs.BoolVar(&f.noSerial, "no-serial", false, "do not number multiple-region output records")
	fs.Int64Var(&f.minChainT, "min-chain-source", 0, "multiple mode: minimum chain span on the old assembly")
	fs.Int64Var(&f.minChainQ, "min-chain-dest", 0, "multiple mode: minimum chain span on the new assembly")
	fs.Int64Var(&f.minSizeQ, "min-region-dest", 0, "multiple mode: minimum region size on the new assembly")
	fs.StringVar(&f.chainDB, "chain-db", "", "multiple mode: DuckDB chain database for extension lookups (see 'chaindb build')")
	fs.Int64Var(&f.ends, "ends", 0, "lift only the first and last N bases and recombine (BED only)")
	fs.BoolVar(&f.preserveInput, "preserve-input", false, "append the source position to item names")
	fs.IntVar(&f.workers, "workers", 0, "mapping worker count (0 = all CPUs)")
	fs.BoolVar(&f.errorHelp, "error-help", false, "explain the unmapped reason codes and exit")

	// Config-file and environment defaults for unset flags.
	viper.BindPFlag("lift.min-match", fs.Lookup("min-match"))
	viper.BindPFlag("lift.min-blocks", fs.Lookup("min-blocks"))
	viper.BindPFlag("lift.workers", fs.Lookup("workers"))

	return cmd
}

func runLift(f *liftFlags, args []string) error {
	oldFile, chainFile, newFile, unmappedFile := args[0], args[1], args[2], args[3]

	inFormat := f.format
	if inFormat == "" {
		inFormat = detectFormat(oldFile)
	}
	if err := validateLiftFlags(f, inFormat); err != nil {
		return err
	}

	opts := liftover.Options{
		MinMatch:           viper.GetFloat64("lift.min-match"),
		MinBlocks:          viper.GetFloat64("lift.min-blocks"),
		Multiple:           f.multiple,
		MinChainSizeSource: f.minChainT,
		MinChainSizeDest:   f.minChainQ,
		MinRegionSizeDest:  f.minSizeQ,
		FudgeMarkers:       f.fudgeThick,
	}
	if inFormat == "sample" {
		opts.DropUnmappedMarkers = true
	}
	if f.ends > 0 {
		// Both end fragments must map for the recombined record to make
		// sense.
		opts.MinBlocks = 1.0
	}

	set, err := chain.Open(chainFile)
	if err != nil {
		return err
	}
	logger.Info("chain file loaded",
		zap.String("file", chainFile),
		zap.Int("chains", set.Len()))

	mapper := liftover.New(set)
	mapper.SetLogger(logger)

	if f.chainDB != "" {
		store, err := chaindb.Open(f.chainDB)
		if err != nil {
			return fmt.Errorf("open chain database: %w", err)
		}
		defer store.Close()
		opts.Extension = store.BlocksForChain
	}

	out, err := os.Create(newFile)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	un, err := os.Create(unmappedFile)
	if err != nil {
		return fmt.Errorf("create unmapped file: %w", err)
	}
	defer un.Close()

	parser, writer, err := buildAdapter(f, inFormat, oldFile, out)
	if err != nil {
		return err
	}
	defer parser.Close()

	stats, err := format.Run(mapper, parser, writer, format.NewUnmappedWriter(un), opts,
		viper.GetInt("lift.workers"), logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Read %d records: %d mapped", stats.Read, stats.Mapped)
	if f.multiple {
		fmt.Fprintf(os.Stderr, " (%d regions)", stats.Regions)
	}
	fmt.Fprintf(os.Stderr, ", %d unmapped\n", stats.Unmapped)
	for reason, n := range stats.ByReason {
		fmt.Fprintf(os.Stderr, "  %s: %d\n", reason, n)
	}

	return nil
}

// validateLiftFlags rejects option combinations that cannot work
// together, before any file is touched.
func validateLiftFlags(f *liftFlags, inFormat string) error {
	switch inFormat {
	case "bed", "gff", "genepred", "psl", "sample", "positions":
	default:
		return fmt.Errorf("unknown format %q (use --format)", inFormat)
	}

	if !f.multiple {
		switch {
		case f.minChainT > 0 || f.minChainQ > 0:
			return fmt.Errorf("--min-chain-source/--min-chain-dest require --multiple")
		case f.minSizeQ > 0:
			return fmt.Errorf("--min-region-dest requires --multiple")
		case f.chainDB != "":
			return fmt.Errorf("--chain-db requires --multiple")
		case f.noSerial:
			return fmt.Errorf("--no-serial requires --multiple")
		}
	}
	if f.multiple {
		switch inFormat {
		case "gff", "psl", "sample":
			return fmt.Errorf("--multiple is not supported for %s input", inFormat)
		}
		if inFormat == "bed" && f.bedPlus > 6 {
			return fmt.Errorf("--multiple supports bed 3-6 only (got --bed-plus %d)", f.bedPlus)
		}
		if f.ends > 0 {
			return fmt.Errorf("--ends cannot be combined with --multiple")
		}
	}
	if (f.hasBin || f.tab) && f.bedPlus == 0 {
		return fmt.Errorf("--has-bin and --tab require --bed-plus")
	}
	if f.ends > 0 && inFormat != "bed" {
		return fmt.Errorf("--ends is only supported for bed input")
	}
	return nil
}

// buildAdapter constructs the per-format parser and writer pair.
func buildAdapter(f *liftFlags, inFormat, oldFile string, out io.Writer) (format.Parser, format.Writer, error) {
	switch inFormat {
	case "bed":
		bedOpts := bed.Options{Plus: f.bedPlus, HasBin: f.hasBin, Tab: f.tab, Ends: f.ends}
		if f.multiple && f.bedPlus == 0 {
			// Multiple mode emits one plain line per region; fields past
			// bed6 pass through rather than being re-assembled.
			bedOpts.Plus = 6
		}
		p, err := bed.NewParser(oldFile, bedOpts)
		if err != nil {
			return nil, nil, err
		}
		w := bed.NewWriter(out, bedOpts)
		w.Multiple = f.multiple
		w.NoSerial = f.noSerial
		w.PreserveInput = f.preserveInput
		return p, w, nil

	case "gff":
		p, err := gff.NewParser(oldFile)
		if err != nil {
			return nil, nil, err
		}
		return p, gff.NewWriter(out), nil

	case "genepred":
		p, err := genepred.NewParser(oldFile)
		if err != nil {
			return nil, nil, err
		}
		w := genepred.NewWriter(out)
		w.Multiple = f.multiple
		w.NoSerial = f.noSerial
		w.PreserveInput = f.preserveInput
		return p, w, nil

	case "psl":
		p, err := psl.NewParser(oldFile)
		if err != nil {
			return nil, nil, err
		}
		return p, psl.NewWriter(out), nil

	case "sample":
		p, err := sample.NewParser(oldFile)
		if err != nil {
			return nil, nil, err
		}
		w := sample.NewWriter(out)
		w.PreserveInput = f.preserveInput
		return p, w, nil

	case "positions":
		p, err := positions.NewParser(oldFile)
		if err != nil {
			return nil, nil, err
		}
		w := positions.NewWriter(out)
		w.Multiple = f.multiple
		return p, w, nil
	}
	return nil, nil, fmt.Errorf("unknown format %q", inFormat)
}

// detectFormat guesses the input format from the file extension.
func detectFormat(path string) string {
	lower := strings.ToLower(path)
	lower = strings.TrimSuffix(lower, ".gz")

	switch filepath.Ext(lower) {
	case ".bed":
		return "bed"
	case ".gff", ".gff3", ".gtf":
		return "gff"
	case ".gp", ".genepred":
		return "genepred"
	case ".psl":
		return "psl"
	case ".sample":
		return "sample"
	case ".pos", ".positions", ".txt":
		return "positions"
	}
	return "bed"
}

func printErrorHelp(w io.Writer) {
	fmt.Fprint(w, `Records that cannot be lifted are written to the unMapped file with one
of these reasons:

  NoChainForSequence   the chain file has no chain on the record's sequence;
                       check that both files use the same naming (chr1 vs 1).
  NoOverlap            chains exist for the sequence but none cover the
                       record's coordinates (the region was deleted in the
                       new assembly, or never aligned).
  BelowMinMatch        part of the record maps, but less than --min-match
                       of its bases (or fewer than --min-blocks of its
                       blocks). Lower the thresholds to accept partial maps,
                       or use --multiple if the region was split.
  FilteredByChainSize  --multiple found regions, but all were excluded by
                       --min-chain-source/--min-chain-dest/--min-region-dest.
`)
}
