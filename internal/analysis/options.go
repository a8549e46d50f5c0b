package analysis

// Options controls profiling and which patterns qualify as insights.
type Options struct {
	// MaxRows limits rows profiled; 0 means unlimited.
	MaxRows int
	// MaxInsights caps the ranked result; 0 means unlimited.
	MaxInsights int
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune // optional; if 0, auto-detect common separators (',' '.' space)
	// Outliers are values whose robust Z-score (MAD) exceeds OutlierThreshold.
	OutlierThreshold float64
	// MinOutlierValues is the smallest numeric column checked for outliers.
	MinOutlierValues int
	// MinCorrelation is the smallest |r| reported between two numeric columns.
	MinCorrelation float64
	// MinTrendR2 is the smallest R² of a linear fit over row order reported as a trend.
	MinTrendR2 float64
	// MinMajorityShare is the smallest share of one category reported as dominant.
	MinMajorityShare float64
	// Unit normalization: convert values to target units using simple mappings.
	UnitNormalize bool
	UnitTargets   map[string]string // map[fromUnit]toUnit, e.g., {"g/L":"mg/L", "°F":"°C"}
}

// DefaultOptions returns reasonable defaults for insight extraction.
func DefaultOptions() Options {
	return Options{
		MaxRows:          100000,
		MaxInsights:      10,
		OutlierThreshold: 3.5,
		MinOutlierValues: 8,
		MinCorrelation:   0.6,
		MinTrendR2:       0.6,
		MinMajorityShare: 0.5,
		UnitNormalize:    true,
		UnitTargets: map[string]string{
			"g/L":  "mg/L",
			"ug/L": "mg/L",
			"°F":   "°C",
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.OutlierThreshold <= 0 {
		o.OutlierThreshold = d.OutlierThreshold
	}
	if o.MinOutlierValues <= 0 {
		o.MinOutlierValues = d.MinOutlierValues
	}
	if o.MinCorrelation <= 0 {
		o.MinCorrelation = d.MinCorrelation
	}
	if o.MinTrendR2 <= 0 {
		o.MinTrendR2 = d.MinTrendR2
	}
	if o.MinMajorityShare <= 0 {
		o.MinMajorityShare = d.MinMajorityShare
	}
	return o
}
