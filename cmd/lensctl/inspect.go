package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-lens/internal/infrastructure/extractor/local"
	"github.com/kirillkom/legal-lens/internal/infrastructure/redflag"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [patterns...]",
	Short: "Hash, extract, chunk and flag local documents without calling a model",
	Long: `Inspect runs the offline half of the upload pipeline over every file
matching the given doublestar patterns, relative to --dir. Nothing is cached
and no model is called.

Examples:
  lensctl inspect "*.pdf"
  lensctl inspect --dir ./contracts "**/*.{pdf,txt}" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringP("dir", "d", ".", "root directory the patterns are matched against")
	inspectCmd.Flags().Bool("json", false, "print reports as JSON")
	inspectCmd.Flags().Bool("no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(inspectCmd)
}

type inspectReport struct {
	File        string           `json:"file"`
	ContentHash string           `json:"content_hash,omitempty"`
	PageCount   int              `json:"page_count"`
	Chunks      int              `json:"chunks"`
	RedFlags    []domain.RedFlag `json:"red_flags"`
	Error       string           `json:"error,omitempty"`
}

type inspector struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	scanner   ports.RedFlagScanner
}

func runInspect(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	asJSON, _ := cmd.Flags().GetBool("json")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid dir: %w", err)
	}
	fsys := os.DirFS(root)

	files, err := matchFiles(fsys, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files under %s match %v", root, args)
	}

	var bar *progressbar.ProgressBar
	if !noProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Inspecting"),
			progressbar.OptionClearOnFinish(),
		)
	}

	in := inspector{
		extractor: local.NewExtractor(),
		chunker:   chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinChars),
		scanner:   redflag.NewScanner(nil),
	}
	reports := make([]inspectReport, 0, len(files))
	for _, name := range files {
		reports = append(reports, in.inspect(cmd.Context(), fsys, name))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return writeReportTable(cmd.OutOrStdout(), reports)
}

// matchFiles returns the regular files matching any pattern, sorted and deduplicated.
func matchFiles(fsys fs.FS, patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (in inspector) inspect(ctx context.Context, fsys fs.FS, name string) inspectReport {
	report := inspectReport{File: name, RedFlags: []domain.RedFlag{}}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.ContentHash = domain.ContentHash(data)

	extraction, err := in.extractor.Extract(ctx, data, mime.TypeByExtension(filepath.Ext(name)), filepath.Base(name))
	if err != nil {
		report.Error = err.Error()
		return report
	}
	chunks := in.chunker.Split(extraction.Text)
	report.PageCount = extraction.PageCount
	report.Chunks = len(chunks)
	if flags := in.scanner.Scan(chunks); flags != nil {
		report.RedFlags = flags
	}
	return report
}

func writeReportTable(w io.Writer, reports []inspectReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tHASH\tPAGES\tCHUNKS\tRED FLAGS\tERROR")
	for _, r := range reports {
		hash := r.ContentHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", r.File, hash, r.PageCount, r.Chunks, flagSummary(r.RedFlags), r.Error)
	}
	return tw.Flush()
}

func flagSummary(flags []domain.RedFlag) string {
	if len(flags) == 0 {
		return "-"
	}
	counts := map[string]int{}
	var order []string
	for _, f := range flags {
		if counts[f.Keyword] == 0 {
			order = append(order, f.Keyword)
		}
		counts[f.Keyword]++
	}
	out := ""
	for i, kw := range order {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s(%d)", kw, counts[kw])
	}
	return out
}
