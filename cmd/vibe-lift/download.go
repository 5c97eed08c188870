package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const goldenPathBaseURL = "https://hgdownload.soe.ucsc.edu/goldenPath"

// overChainURL returns the UCSC goldenPath URL and file name of the
// liftover chain file between two assemblies, e.g. hg19 -> hg38 gives
// hg19ToHg38.over.chain.gz.
func overChainURL(from, to string) (url, name string) {
	capTo := to
	if capTo != "" {
		capTo = strings.ToUpper(capTo[:1]) + capTo[1:]
	}
	name = fmt.Sprintf("%sTo%s.over.chain.gz", from, capTo)
	url = fmt.Sprintf("%s/%s/liftOver/%s", goldenPathBaseURL, from, name)
	return url, name
}

func newDownloadCmd() *cobra.Command {
	var (
		from      string
		to        string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "download --from <assembly> --to <assembly>",
		Short: "Download a liftover chain file from UCSC",
		Long: `Download the over.chain file between two assemblies from the UCSC
goldenPath mirror into ~/.vibe-lift/ (or --output).`,
		Example: `  vibe-lift download --from hg19 --to hg38
  vibe-lift download --from mm10 --to mm39 --output /data/chains`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(from, to, outputDir)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source assembly, e.g. hg19 (required)")
	cmd.Flags().StringVar(&to, "to", "", "destination assembly, e.g. hg38 (required)")
	cmd.Flags().StringVar(&outputDir, "output", "", "output directory (default: ~/.vibe-lift/)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

func runDownload(from, to, outputDir string) error {
	if outputDir == "" {
		outputDir = defaultDataDir()
		if outputDir == "" {
			return fmt.Errorf("cannot determine home directory; use --output")
		}
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", outputDir, err)
	}

	url, name := overChainURL(from, to)
	dest := filepath.Join(outputDir, name)

	fmt.Printf("Downloading %s -> %s chain file...\n", from, to)
	if err := downloadFile(url, dest); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	fmt.Printf("\nDownload complete. To lift annotations, run:\n")
	fmt.Printf("  vibe-lift lift old.bed %s new.bed unmapped.bed\n", dest)
	return nil
}

// downloadFile downloads a file from URL to the destination path with progress.
func downloadFile(url, destPath string) error {
	// Check if file already exists
	if info, err := os.Stat(destPath); err == nil {
		fmt.Printf("  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Printf("  Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{
		Timeout: 30 * time.Minute, // chain files can be large
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	var downloaded int64
	pw := &progressWriter{
		total:      resp.ContentLength,
		downloaded: &downloaded,
		lastPrint:  time.Now(),
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Printf("    Done: %s\n", formatSize(downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	total      int64
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(*pw.downloaded) / float64(pw.total) * 100
			fmt.Printf("\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(*pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Printf("\r    Progress: %s  ", formatSize(*pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
