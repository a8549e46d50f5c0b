package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/KaramelBytes/dropsight/internal/analysis"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
	"github.com/KaramelBytes/dropsight/internal/table"
	"github.com/KaramelBytes/dropsight/internal/upload"
	"github.com/KaramelBytes/dropsight/internal/utils"
	"github.com/spf13/cobra"
)

var (
	insJSON       bool
	insAll        bool
	insMaxSize    int64
	insOutlierThr float64
	insMinCorr    float64
	insOutput     string
	insName       string
	insDecimal    string
	insThousands  string
)

// insightReport is the --json output.
type insightReport struct {
	State      string               `json:"state"`
	File       *upload.UploadedFile `json:"file,omitempty"`
	FileSize   string               `json:"fileSize,omitempty"`
	ElapsedMs  *float64             `json:"elapsedMs,omitempty"`
	Elapsed    string               `json:"elapsed,omitempty"`
	Insight    *analysis.Insight    `json:"insight,omitempty"`
	Message    string               `json:"message,omitempty"`
	Candidates []analysis.Insight   `json:"candidates,omitempty"`
}

// recordingExtractor keeps the full ranked list next to the pipeline's top pick.
type recordingExtractor struct {
	inner analysis.Extractor
	mu    sync.Mutex
	all   []analysis.Insight
}

func (r *recordingExtractor) Extract(ctx context.Context, ds *table.Dataset) ([]analysis.Insight, error) {
	out, err := r.inner.Extract(ctx, ds)
	r.mu.Lock()
	r.all = out
	r.mu.Unlock()
	return out, err
}

func (r *recordingExtractor) candidates() []analysis.Insight {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all
}

var insightCmd = &cobra.Command{
	Use:   "insight <file|->",
	Short: "Find the top insight in a CSV/TSV/XLSX file",
	Long:  `Runs the file through the same pipeline as the drop page and prints the highest-ranked insight. Use "-" to read from stdin. Exits non-zero when no insight can be produced.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		opt := extractorOptions(c)
		if insOutlierThr > 0 {
			opt.OutlierThreshold = insOutlierThr
		}
		if insMinCorr > 0 {
			opt.MinCorrelation = insMinCorr
		}
		if err := applyLocale(&opt, insDecimal, insThousands); err != nil {
			return err
		}

		limit := c.MaxUploadBytes
		if insMaxSize > 0 {
			limit = insMaxSize
		}
		cand, err := openCandidate(args[0], cmd.InOrStdin(), limit)
		if err != nil {
			return err
		}

		rec := &recordingExtractor{inner: analysis.NewStatsExtractor(opt)}
		ctrl, err := newController(c, rec, limit, "")
		if err != nil {
			return err
		}
		defer ctrl.Close()

		done, err := ctrl.Select(cmd.Context(), cand)
		if err != nil {
			return err
		}
		snap, ok := <-done
		if !ok {
			return errors.New("pipeline was interrupted")
		}

		report := insightReport{
			State:     snap.Kind.String(),
			File:      snap.File,
			ElapsedMs: snap.ProcessingTimeMs,
			Insight:   snap.Insight,
			Message:   snap.Message,
		}
		if snap.File != nil {
			report.FileSize = utils.FormatBytes(snap.File.SizeBytes)
		}
		if snap.ProcessingTimeMs != nil {
			report.Elapsed = utils.FormatSeconds(*snap.ProcessingTimeMs)
		}
		if insAll {
			report.Candidates = rec.candidates()
		}

		var out []byte
		if insJSON {
			b, err := utils.PrettyJSON(report)
			if err != nil {
				return err
			}
			out = append(b, '\n')
		} else {
			out = []byte(renderReport(report))
		}

		if insOutput != "" {
			if err := utils.SafeWriteFile(insOutput, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote insight to %s\n", insOutput)
		} else if _, err := cmd.OutOrStdout().Write(out); err != nil {
			return err
		}

		if snap.Kind == pipeline.ShowingError {
			return errors.New(snap.Message)
		}
		return nil
	},
}

// openCandidate resolves a path, or "-" for stdin, into a pipeline candidate.
func openCandidate(arg string, stdin io.Reader, limit int64) (upload.Candidate, error) {
	if arg != "-" {
		return upload.NewLocalFile(arg)
	}
	// Read one byte past the cap so oversize input still fails validation.
	b, err := io.ReadAll(io.LimitReader(stdin, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	name := insName
	if name == "" {
		name = "stdin"
	}
	return &upload.MemFile{FileName: name, Data: b}, nil
}

func renderReport(r insightReport) string {
	var b strings.Builder
	if r.File != nil {
		typ := r.File.MIMEType
		if typ == "" {
			typ = "unknown type"
		}
		fmt.Fprintf(&b, "File: %s (%s, %s)\n", r.File.Name, r.FileSize, typ)
	}
	if r.Elapsed != "" {
		fmt.Fprintf(&b, "Processed in %s\n", r.Elapsed)
	}
	b.WriteString("\n")
	if r.Insight == nil {
		fmt.Fprintf(&b, "[ERROR]\n%s\n", r.Message)
		return b.String()
	}
	b.WriteString(r.Insight.Markdown())
	if len(r.Candidates) > 1 {
		b.WriteString("\n[OTHER CANDIDATES]\n")
		for i, in := range r.Candidates[1:] {
			fmt.Fprintf(&b, "%d. (%s, %.3f) %s\n", i+2, in.Type, in.Score, in.Summary)
		}
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(insightCmd)
	insightCmd.Flags().BoolVar(&insJSON, "json", false, "print the result as JSON")
	insightCmd.Flags().BoolVar(&insAll, "all", false, "also list the other ranked candidates")
	insightCmd.Flags().Int64Var(&insMaxSize, "max-size", 0, "maximum file size in bytes (overrides config)")
	insightCmd.Flags().Float64Var(&insOutlierThr, "outlier-threshold", 0, "robust |z| threshold for outliers (MAD-based)")
	insightCmd.Flags().Float64Var(&insMinCorr, "min-correlation", 0, "smallest |r| reported as a correlation")
	insightCmd.Flags().StringVarP(&insOutput, "output", "o", "", "optional path to write the result")
	insightCmd.Flags().StringVar(&insName, "name", "", "file name to assume when reading stdin (e.g. data.csv)")
	insightCmd.Flags().StringVar(&insDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	insightCmd.Flags().StringVar(&insThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
}
