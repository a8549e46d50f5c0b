package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvFormat struct{}

func (csvFormat) Name() string { return "csv" }

func (csvFormat) Sniff(name string, head []byte) bool {
	if hasExt(name, ".csv", ".tsv", ".txt") {
		return true
	}
	return looksLikeText(head)
}

func (csvFormat) Decode(raw []byte) (*Dataset, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) || bytes.IndexByte(raw, 0) >= 0 {
		return nil, fmt.Errorf("%w: content is not delimited text", ErrUnsupportedFormat)
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = sniffDelimiter(raw)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Dataset{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	var records [][]Value
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		vals := make([]Value, len(rec))
		for j, s := range rec {
			vals[j] = ParseCell(s)
		}
		records = append(records, vals)
	}
	return buildDataset("", header, records), nil
}

// sniffDelimiter picks among ',', ';' and tab by counting unquoted
// occurrences on the first line. Ties keep the comma.
func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	counts := map[byte]int{}
	inQuote := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ',' || c == ';' || c == '\t'):
			counts[c]++
		}
	}
	best := byte(',')
	for _, c := range []byte{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return rune(best)
}

// looksLikeText reports whether head is printable UTF-8 without NUL bytes.
func looksLikeText(head []byte) bool {
	if len(head) == 0 {
		return true
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	// a sniff window may cut a multi-byte rune at the end
	for i := 0; i < utf8.UTFMax && len(head) > 0 && !utf8.Valid(head); i++ {
		head = head[:len(head)-1]
	}
	if !utf8.Valid(head) {
		return false
	}
	ctrl := 0
	for _, c := range head {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			ctrl++
		}
	}
	return ctrl*20 < len(head)
}
