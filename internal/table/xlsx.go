package table

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

type xlsxFormat struct{}

func (xlsxFormat) Name() string { return "xlsx" }

func (xlsxFormat) Sniff(name string, head []byte) bool {
	return bytes.HasPrefix(head, zipMagic) || hasExt(name, ".xlsx", ".xlsm")
}

// Decode reads the first sheet by position. Numeric cells whose formatted text
// is also numeric become numbers; dates, percentages and other formatted
// numbers keep their display text.
func (xlsxFormat) Decode(raw []byte) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook contains no sheets", ErrUnsupportedFormat)
	}
	sheet := sheets[0]
	shown, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	rawRows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	start := 0
	for start < len(shown) && blankStrings(shown[start]) {
		start++
	}
	if start == len(shown) {
		return &Dataset{Sheet: sheet}, nil
	}
	header := shown[start]
	records := make([][]Value, 0, len(shown)-start-1)
	for i := start + 1; i < len(shown); i++ {
		var rawRow []string
		if i < len(rawRows) {
			rawRow = rawRows[i]
		}
		rec := make([]Value, len(shown[i]))
		for j, text := range shown[i] {
			rv := text
			if j < len(rawRow) {
				rv = rawRow[j]
			}
			rec[j] = xlsxCell(text, rv)
		}
		records = append(records, rec)
	}
	return buildDataset(sheet, header, records), nil
}

func xlsxCell(shown, raw string) Value {
	if strings.TrimSpace(shown) == "" {
		return Value{}
	}
	switch strings.ToUpper(shown) {
	case "TRUE", "FALSE":
		if raw == "1" || raw == "0" {
			return Bool(raw == "1")
		}
	}
	if n, ok := parseStrictFloat(strings.TrimSpace(raw)); ok {
		if _, ok := parseStrictFloat(strings.TrimSpace(shown)); ok {
			return Number(n)
		}
		return Text(shown)
	}
	return ParseCell(shown)
}

func blankStrings(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type xlsFormat struct{}

func (xlsFormat) Name() string { return "xls" }

func (xlsFormat) Sniff(name string, head []byte) bool {
	return bytes.HasPrefix(head, ole2Magic) || hasExt(name, ".xls")
}

// oleMinSize is the compound file header plus one sector.
const oleMinSize = 1024

// Decode reads the first sheet of a BIFF workbook by position. The reader
// renders every cell as text, so values go through ParseCell like CSV cells.
// Formula cells carry no cached result and read as empty.
func (xlsFormat) Decode(raw []byte) (ds *Dataset, err error) {
	if len(raw) < oleMinSize || !bytes.HasPrefix(raw, ole2Magic) {
		return nil, fmt.Errorf("%w: not a compound document workbook", ErrUnsupportedFormat)
	}
	defer func() {
		if r := recover(); r != nil {
			ds, err = nil, fmt.Errorf("%w: malformed workbook: %v", ErrUnsupportedFormat, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: workbook contains no sheets", ErrUnsupportedFormat)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%w: workbook contains no sheets", ErrUnsupportedFormat)
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		rows = append(rows, xlsRow(sheet, i))
	}

	start := 0
	for start < len(rows) && blankStrings(rows[start]) {
		start++
	}
	if start == len(rows) {
		return &Dataset{Sheet: sheet.Name}, nil
	}
	records := make([][]Value, 0, len(rows)-start-1)
	for _, r := range rows[start+1:] {
		rec := make([]Value, len(r))
		for j, text := range r {
			rec[j] = ParseCell(text)
		}
		records = append(records, rec)
	}
	return buildDataset(sheet.Name, rows[start], records), nil
}

// xlsRow returns the cells of row i, or nil when the sheet has no such row.
func xlsRow(sheet *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()
	row := sheet.Row(i)
	if row == nil || row.LastCol() <= 0 {
		return nil
	}
	cells = make([]string, row.LastCol())
	for j := row.FirstCol(); j < row.LastCol(); j++ {
		if text := row.Col(j); text != "FormulaCol" {
			cells[j] = text
		}
	}
	return cells
}
