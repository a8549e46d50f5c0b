package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/KaramelBytes/dropsight/internal/analysis"
	cfgpkg "github.com/KaramelBytes/dropsight/internal/config"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
	"github.com/KaramelBytes/dropsight/internal/table"
)

// extractorOptions maps configuration onto extraction thresholds.
func extractorOptions(c *cfgpkg.Global) analysis.Options {
	opt := analysis.DefaultOptions()
	if c.MaxRows > 0 {
		opt.MaxRows = c.MaxRows
	}
	if c.OutlierThreshold > 0 {
		opt.OutlierThreshold = c.OutlierThreshold
	}
	if c.MinCorrelation > 0 {
		opt.MinCorrelation = c.MinCorrelation
	}
	if c.MinTrendR2 > 0 {
		opt.MinTrendR2 = c.MinTrendR2
	}
	if c.MinMajorityShare > 0 {
		opt.MinMajorityShare = c.MinMajorityShare
	}
	return opt
}

// applyLocale sets the numeric separators from --decimal/--thousands values.
func applyLocale(opt *analysis.Options, decimal, thousands string) error {
	switch strings.ToLower(strings.TrimSpace(decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", decimal)
	}
	switch strings.ToLower(strings.TrimSpace(thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", thousands)
	}
	return nil
}

// newController wires the decoder, an extractor and the configured limits.
func newController(c *cfgpkg.Global, ex analysis.Extractor, maxSize int64, overlap string) (*pipeline.Controller, error) {
	policy, err := pipeline.ParseOverlap(overlap)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		maxSize = c.MaxUploadBytes
	}
	return pipeline.New(pipeline.Options{
		Decoder:      table.NewDecoder(),
		Extractor:    ex,
		MaxSizeBytes: maxSize,
		Overlap:      policy,
		Logger:       slog.Default(),
	})
}
