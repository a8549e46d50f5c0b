package analysis

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/dropsight/internal/table"
)

// Column kinds inferred by the profiler.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindUnknown     = "unknown"
)

// ColumnProfile captures inferred type and statistics per column.
type ColumnProfile struct {
	Name    string // header as decoded
	Label   string // header without unit suffix
	Kind    string
	Unit    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Categorical top values
	TopValues []CategoryCount

	// values is aligned to row index; NaN where the cell is missing or not numeric.
	values []float64
}

type CategoryCount struct {
	Value string `json:"value" msgpack:"value"`
	Count int    `json:"count" msgpack:"count"`
}

// Profile summarises a dataset column by column.
type Profile struct {
	Rows int
	Cols []*ColumnProfile
}

type colAcc struct {
	unit     string
	origUnit string
	nonNil   int
	miss     int

	// numeric stats via Welford
	n      int
	mean   float64
	m2     float64
	min    float64
	max    float64
	numCnt int
	dtCnt  int
	txtCnt int
	cats   map[string]int
	vals   []float64
}

// profileDataset infers a kind per column and collects the statistics the
// insight generators work from.
func profileDataset(ds *table.Dataset, opt Options) *Profile {
	rows := ds.Rows
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}
	prof := &Profile{Rows: len(rows)}
	for _, name := range ds.Columns {
		label, unit := splitUnits(name)
		c := &colAcc{unit: unit, origUnit: unit, min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int), vals: make([]float64, len(rows))}
		for i, row := range rows {
			c.vals[i] = math.NaN()
			v, ok := row[name]
			if !ok || v.IsEmpty() {
				c.miss++
				continue
			}
			c.nonNil++
			c.observe(i, v, opt)
		}
		prof.Cols = append(prof.Cols, c.summarize(name, label))
	}
	return prof
}

func (c *colAcc) observe(i int, v table.Value, opt Options) {
	var x float64
	var ok bool
	switch v.Kind {
	case table.KindNumber:
		x, ok = v.Num, true
	case table.KindText:
		s := strings.TrimSpace(v.Text)
		if strings.Contains(s, "%") && c.unit == "" {
			c.unit = "%"
			if c.origUnit == "" {
				c.origUnit = "%"
			}
		}
		x, ok = parseNumeric(s, opt)
	}
	if ok {
		if opt.UnitNormalize && c.origUnit != "" {
			if nx, nu, okc := normalizeUnit(x, c.origUnit, opt); okc {
				x = nx
				c.unit = nu
			}
		}
		c.numCnt++
		c.n++
		if x < c.min {
			c.min = x
		}
		if x > c.max {
			c.max = x
		}
		delta := x - c.mean
		c.mean += delta / float64(c.n)
		c.m2 += delta * (x - c.mean)
		c.vals[i] = x
		return
	}
	s := v.String()
	if v.Kind == table.KindText {
		if _, ok := parseTimeMaybe(strings.TrimSpace(s)); ok {
			c.dtCnt++
			return
		}
	}
	c.txtCnt++
	if len(c.cats) <= 10000 && len(s) <= 64 { // guard memory; short tokens are categories
		c.cats[s]++
	}
}

func (c *colAcc) summarize(name, label string) *ColumnProfile {
	p := &ColumnProfile{Name: name, Label: label, Unit: c.unit, NonNull: c.nonNil, Missing: c.miss, Kind: KindUnknown}
	switch {
	case c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt && c.numCnt > 0:
		p.Kind = KindNumeric
		p.Min, p.Max, p.Mean = c.min, c.max, c.mean
		if c.n > 1 {
			p.Std = math.Sqrt(c.m2 / float64(c.n-1))
		}
		p.values = c.vals
	case c.dtCnt >= c.txtCnt && c.dtCnt > 0:
		p.Kind = KindDatetime
	case len(c.cats) > 0 && len(c.cats) < c.txtCnt:
		p.Kind = KindCategorical
		tops := make([]CategoryCount, 0, len(c.cats))
		for k, v := range c.cats {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		if len(tops) > 8 {
			tops = tops[:8]
		}
		p.TopValues = tops
		p.Unique = len(c.cats)
	case c.txtCnt > 0:
		p.Kind = KindText
		p.Unique = len(c.cats)
	}
	return p
}

// numericCount returns how many rows hold a numeric value.
func (p *ColumnProfile) numericCount() int {
	n := 0
	for _, v := range p.values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// DisplayName renders the column with its unit, e.g. "Temp [°C]".
func (p *ColumnProfile) DisplayName() string {
	name := safeName(p.Label)
	if p.Unit != "" {
		return name + " [" + p.Unit + "]"
	}
	return name
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	if strings.Contains(raw, "%") {
		raw = strings.ReplaceAll(raw, "%", "")
	}
	// Normalize spaces
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	// Decide decimal separator
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	// Remove thousands separators (common: ',', '.', space) if they differ from decimal
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !(c >= '0' && c <= '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func normalizeUnit(x float64, unit string, opt Options) (float64, string, bool) {
	if opt.UnitTargets == nil {
		return x, unit, false
	}
	target, ok := opt.UnitTargets[unit]
	if !ok {
		return x, unit, false
	}
	switch unit + ">" + target {
	case "g/L>mg/L":
		return x * 1000, target, true
	case "ug/L>mg/L":
		return x / 1000, target, true
	case "°F>°C":
		return (x - 32) * 5.0 / 9.0, target, true
	default:
		return x, unit, false
	}
}

var unitPatterns = []struct {
	re   *regexp.Regexp
	pick int
}{
	{regexp.MustCompile(`^(.*)\s*\(([^)]+)\)\s*$`), 2},  // e.g., Alpha (%)
	{regexp.MustCompile(`^(.*)\s*\[([^\]]+)\]\s*$`), 2}, // e.g., Mass [mg/L]
	{regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|°[CF]|Brix|%|ppm|ppb)$`), 2},
}

func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, p := range unitPatterns {
		if m := p.re.FindStringSubmatch(s); len(m) >= 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[p.pick])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
