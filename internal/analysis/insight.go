// Package analysis discovers ranked patterns ("insights") in decoded tables.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/dropsight/internal/table"
)

// Type names a kind of discovered pattern.
type Type string

const (
	TypeOutlier     Type = "outlier"
	TypeCorrelation Type = "correlation"
	TypeTrend       Type = "trend"
	TypeMajority    Type = "majority"
)

// Insight is one ranked candidate pattern. Presenters render it without
// further interpretation.
type Insight struct {
	Type    Type           `json:"type" msgpack:"type"`
	Columns []string       `json:"columns" msgpack:"columns"`
	Score   float64        `json:"score" msgpack:"score"`
	Summary string         `json:"summary" msgpack:"summary"`
	Details map[string]any `json:"details,omitempty" msgpack:"details,omitempty"`
}

// Extractor returns candidate insights ranked highest first. An empty result
// is not an error.
type Extractor interface {
	Extract(ctx context.Context, ds *table.Dataset) ([]Insight, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, ds *table.Dataset) ([]Insight, error)

func (f ExtractorFunc) Extract(ctx context.Context, ds *table.Dataset) ([]Insight, error) {
	return f(ctx, ds)
}

// StatsExtractor finds outliers, correlations, trends and dominant categories.
type StatsExtractor struct {
	Options Options
}

// NewStatsExtractor returns an extractor using opt, with unset thresholds defaulted.
func NewStatsExtractor(opt Options) *StatsExtractor {
	return &StatsExtractor{Options: opt.withDefaults()}
}

type generator func(p *Profile, opt Options) []Insight

var generators = []generator{outlierInsights, correlationInsights, trendInsights, majorityInsights}

func (e *StatsExtractor) Extract(ctx context.Context, ds *table.Dataset) ([]Insight, error) {
	if ds.Len() == 0 {
		return nil, nil
	}
	opt := e.Options.withDefaults()
	prof := profileDataset(ds, opt)
	var out []Insight
	for _, g := range generators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, g(prof, opt)...)
	}
	Rank(out)
	if opt.MaxInsights > 0 && len(out) > opt.MaxInsights {
		out = out[:opt.MaxInsights]
	}
	return out, nil
}

var typeOrder = map[Type]int{TypeOutlier: 0, TypeCorrelation: 1, TypeTrend: 2, TypeMajority: 3}

// Rank sorts insights by score, highest first. Ties break on type, then columns,
// so the order is deterministic.
func Rank(ins []Insight) {
	sort.SliceStable(ins, func(i, j int) bool {
		if ins[i].Score != ins[j].Score {
			return ins[i].Score > ins[j].Score
		}
		if typeOrder[ins[i].Type] != typeOrder[ins[j].Type] {
			return typeOrder[ins[i].Type] < typeOrder[ins[j].Type]
		}
		return strings.Join(ins[i].Columns, "\x00") < strings.Join(ins[j].Columns, "\x00")
	})
}

func outlierInsights(p *Profile, opt Options) []Insight {
	var out []Insight
	for _, c := range p.Cols {
		if c.Kind != KindNumeric {
			continue
		}
		vals := make([]float64, 0, len(c.values))
		for _, v := range c.values {
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) < opt.MinOutlierValues {
			continue
		}
		median, mad := medianMAD(vals)
		if mad == 0 {
			continue
		}
		thr := opt.OutlierThreshold
		var rows []int
		var examples []float64
		maxAbsZ := 0.0
		for i, v := range c.values {
			if math.IsNaN(v) {
				continue
			}
			az := math.Abs(0.6745 * (v - median) / mad)
			if az > thr {
				rows = append(rows, i+1)
				if len(examples) < 5 {
					examples = append(examples, v)
				}
			}
			if az > maxAbsZ {
				maxAbsZ = az
			}
		}
		if len(rows) == 0 {
			continue
		}
		n := float64(len(vals))
		strength := math.Min(1, (maxAbsZ-thr)/thr)
		score := (0.5 + 0.5*strength) * (1 - float64(len(rows))/n)
		noun := "value"
		if len(rows) > 1 {
			noun = "values"
		}
		out = append(out, Insight{
			Type:    TypeOutlier,
			Columns: []string{c.Name},
			Score:   round4(score),
			Summary: fmt.Sprintf("%s has %d outlying %s (max |z|≈%.2f above threshold %.1f; median %.4g)",
				c.DisplayName(), len(rows), noun, maxAbsZ, thr, median),
			Details: map[string]any{
				"count":     len(rows),
				"rows":      rows,
				"examples":  examples,
				"median":    median,
				"mad":       mad,
				"maxAbsZ":   round4(maxAbsZ),
				"threshold": thr,
			},
		})
	}
	return out
}

// pairAcc holds exact pairwise sums over rows where both columns are numeric.
type pairAcc struct {
	n     float64
	sumX  float64
	sumY  float64
	sumXX float64
	sumYY float64
	sumXY float64
}

func (pa *pairAcc) add(x, y float64) {
	pa.n++
	pa.sumX += x
	pa.sumY += y
	pa.sumXX += x * x
	pa.sumYY += y * y
	pa.sumXY += x * y
}

// r returns the Pearson coefficient, or false when undefined.
func (pa *pairAcc) r() (float64, bool) {
	if pa.n < 2 {
		return 0, false
	}
	denom := math.Sqrt((pa.n*pa.sumXX - pa.sumX*pa.sumX) * (pa.n*pa.sumYY - pa.sumY*pa.sumY))
	if denom == 0 {
		return 0, false
	}
	r := (pa.n*pa.sumXY - pa.sumX*pa.sumY) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

func correlationInsights(p *Profile, opt Options) []Insight {
	var nums []*ColumnProfile
	for _, c := range p.Cols {
		if c.Kind == KindNumeric {
			nums = append(nums, c)
		}
	}
	var out []Insight
	for a := 0; a < len(nums); a++ {
		for b := a + 1; b < len(nums); b++ {
			ca, cb := nums[a], nums[b]
			var pa pairAcc
			for i := range ca.values {
				x, y := ca.values[i], cb.values[i]
				if math.IsNaN(x) || math.IsNaN(y) {
					continue
				}
				pa.add(x, y)
			}
			if pa.n < 3 {
				continue
			}
			r, ok := pa.r()
			if !ok || math.Abs(r) < opt.MinCorrelation {
				continue
			}
			dir := "positively"
			if r < 0 {
				dir = "negatively"
			}
			out = append(out, Insight{
				Type:    TypeCorrelation,
				Columns: []string{ca.Name, cb.Name},
				Score:   round4(math.Abs(r) * (1 - 1/pa.n)),
				Summary: fmt.Sprintf("%s and %s are %s correlated (r=%.3f over %d rows)",
					ca.DisplayName(), cb.DisplayName(), dir, r, int(pa.n)),
				Details: map[string]any{
					"r":    round4(r),
					"rows": int(pa.n),
				},
			})
		}
	}
	return out
}

func trendInsights(p *Profile, opt Options) []Insight {
	var out []Insight
	for _, c := range p.Cols {
		if c.Kind != KindNumeric || c.Std == 0 || c.numericCount() < 3 || isCounter(c.values) {
			continue
		}
		var pa pairAcc
		for i, v := range c.values {
			if math.IsNaN(v) {
				continue
			}
			pa.add(float64(i), v)
		}
		r, ok := pa.r()
		if !ok {
			continue
		}
		r2 := r * r
		if r2 < opt.MinTrendR2 {
			continue
		}
		slope := (pa.n*pa.sumXY - pa.sumX*pa.sumY) / (pa.n*pa.sumXX - pa.sumX*pa.sumX)
		dir := "increases"
		if slope < 0 {
			dir = "decreases"
		}
		out = append(out, Insight{
			Type:    TypeTrend,
			Columns: []string{c.Name},
			Score:   round4(r2 * (1 - 1/pa.n)),
			Summary: fmt.Sprintf("%s steadily %s across rows (%.4g per row, R²=%.2f)", c.DisplayName(), dir, slope, r2),
			Details: map[string]any{
				"slope": slope,
				"r2":    round4(r2),
				"rows":  int(pa.n),
				"first": firstValue(c.values),
				"last":  lastValue(c.values),
			},
		})
	}
	return out
}

func majorityInsights(p *Profile, opt Options) []Insight {
	var out []Insight
	for _, c := range p.Cols {
		if c.Kind != KindCategorical || c.Unique < 2 || c.NonNull < 4 || len(c.TopValues) == 0 {
			continue
		}
		top := c.TopValues[0]
		share := float64(top.Count) / float64(c.NonNull)
		if share < opt.MinMajorityShare {
			continue
		}
		out = append(out, Insight{
			Type:    TypeMajority,
			Columns: []string{c.Name},
			Score:   round4(share * 0.8),
			Summary: fmt.Sprintf("%q dominates %s with %.0f%% of %d values", safeVal(top.Value), c.DisplayName(), share*100, c.NonNull),
			Details: map[string]any{
				"value":  top.Value,
				"count":  top.Count,
				"share":  round4(share),
				"unique": c.Unique,
				"top":    c.TopValues,
			},
		})
	}
	return out
}

// isCounter reports whether the column is a running index (1, 2, 3, ...),
// which trends perfectly by construction.
func isCounter(vals []float64) bool {
	prev := math.NaN()
	for _, v := range vals {
		if math.IsNaN(v) {
			return false
		}
		if !math.IsNaN(prev) && v-prev != 1 {
			return false
		}
		prev = v
	}
	return true
}

func firstValue(vals []float64) float64 {
	for _, v := range vals {
		if !math.IsNaN(v) {
			return v
		}
	}
	return 0
}

func lastValue(vals []float64) float64 {
	for i := len(vals) - 1; i >= 0; i-- {
		if !math.IsNaN(vals[i]) {
			return vals[i]
		}
	}
	return 0
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }

// Markdown renders an insight card for terminals and text exports.
func (in *Insight) Markdown() string {
	var b strings.Builder
	b.WriteString("[INSIGHT]\n")
	b.WriteString(fmt.Sprintf("Type: %s\n", in.Type))
	if len(in.Columns) > 0 {
		b.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(in.Columns, ", ")))
	}
	b.WriteString(fmt.Sprintf("Score: %.3f\n\n", in.Score))
	b.WriteString(in.Summary)
	b.WriteString("\n")
	if len(in.Details) > 0 {
		b.WriteString("\n[DETAILS]\n")
		keys := make([]string, 0, len(in.Details))
		for k := range in.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("- %s: %v\n", k, formatDetail(in.Details[k])))
		}
	}
	return b.String()
}

func formatDetail(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4g", x)
	case []CategoryCount:
		parts := make([]string, len(x))
		for i, kv := range x {
			parts[i] = fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", x)
	}
}
