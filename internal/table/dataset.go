package table

import "strconv"

// Row maps column name to cell value. Empty cells are omitted.
type Row map[string]Value

// Dataset is the ordered set of records decoded from a single sheet.
type Dataset struct {
	// Sheet is the source sheet name ("" for delimited text).
	Sheet string `json:"sheet,omitempty"`
	// Columns lists header names in sheet order.
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// buildDataset turns a header plus typed cells into records. The widest row
// decides the column count; cells beyond the header get generated names.
func buildDataset(sheet string, header []string, records [][]Value) *Dataset {
	width := len(header)
	for _, r := range records {
		if len(r) > width {
			width = len(r)
		}
	}
	padded := make([]string, width)
	copy(padded, header)
	cols := normalizeHeader(padded)

	ds := &Dataset{Sheet: sheet, Columns: cols, Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		row := make(Row, len(rec))
		for j, v := range rec {
			if v.IsEmpty() {
				continue
			}
			row[cols[j]] = v
		}
		if len(row) == 0 {
			continue
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

// normalizeHeader names blank headers __EMPTY, __EMPTY_1, ... and suffixes
// duplicates with _1, _2, ... so every column key is unique.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	next := make(map[string]int, len(header))
	for i, h := range header {
		base := h
		if base == "" {
			base = "__EMPTY"
		}
		name := base
		for seen[name] {
			next[base]++
			name = base + "_" + strconv.Itoa(next[base])
		}
		seen[name] = true
		out[i] = name
	}
	return out
}
